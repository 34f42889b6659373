package server

import (
	"io"
	"time"

	"github.com/yhtsnda/cometd"
)

// BatchWriter frames queued messages and replies as one JSON array
type BatchWriter struct {
	codec    cometd.Codec
	interval time.Duration
}

// NewBatchWriter creates a BatchWriter. interval is passed to
// Session.StartIntervalTimeout.
func NewBatchWriter(codec cometd.Codec, interval time.Duration) *BatchWriter {
	return &BatchWriter{codec: codec, interval: interval}
}

// Write writes `[`, the messages, the non-nil replies and `]` to w, comma
// separated. When startInterval is set the session liveness timer starts as
// soon as the messages are written, even if that failed, so a client that
// cannot be written to is still swept.
func (bw *BatchWriter) Write(w io.Writer, session *Session, startInterval bool, messages []cometd.Message, replies []*cometd.Message) error {
	if err := bw.writeMessages(w, session, startInterval, messages); err != nil {
		return err
	}

	needsComma := len(messages) > 0
	for _, reply := range replies {
		if reply == nil {
			continue
		}
		if needsComma {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		needsComma = true
		if err := bw.writeMessage(w, reply); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

func (bw *BatchWriter) writeMessages(w io.Writer, session *Session, startInterval bool, messages []cometd.Message) error {
	defer func() {
		if startInterval && session != nil && session.IsConnected() {
			session.StartIntervalTimeout(bw.interval)
		}
	}()

	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i := range messages {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if err := bw.writeMessage(w, &messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (bw *BatchWriter) writeMessage(w io.Writer, m *cometd.Message) error {
	b, err := bw.codec.Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
