package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yhtsnda/cometd"
)

const (
	messageParam = "message"
	maxBodyBytes = 1 << 20
)

var errMissingMessages = errors.New("missing '" + messageParam + "' request parameter")

// LongPollingTransport serves Bayeux over HTTP long-polling. A
// /meta/connect for a session with nothing queued is held until a message
// is delivered to the session or the timeout fires.
type LongPollingTransport struct {
	engine   *Engine
	options  *Options
	logger   cometd.Logger
	writer   *BatchWriter
	browsers *browserRegistry
}

// NewLongPollingTransport creates the transport serving engine
func NewLongPollingTransport(engine *Engine) *LongPollingTransport {
	options := engine.options
	return &LongPollingTransport{
		engine:   engine,
		options:  options,
		logger:   options.Logger.WithField("transport", cometd.ConnectionTypeLongPolling),
		writer:   NewBatchWriter(options.Codec, options.Interval),
		browsers: newBrowserRegistry(options.MaxSessionsPerBrowser, 2*options.Timeout),
	}
}

// ServeHTTP implements http.Handler
func (t *LongPollingTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := t.logger.WithField("at", "serve")
	start := time.Now()
	logger.Debug("starting")

	ms, err := t.parseMessages(w, r)
	if err != nil {
		logger.WithError(err).Info("unparsable request")
		t.error(w, http.StatusBadRequest)
		return
	}
	browser := browserID(w, r, t.options.BrowserCookie)

	var (
		session *Session
		connect *cometd.Message
		replies = make([]*cometd.Message, 0, len(ms))
	)
	for i := range ms {
		s, reply := t.engine.handle(&ms[i])
		if s != nil {
			session = s
		}
		if ms[i].Channel == cometd.MetaConnect && reply.Successful {
			connect = reply
		}
		replies = append(replies, reply)
	}

	if connect != nil && session != nil {
		session.cancelIntervalTimeout()
		if session.Queued() == 0 && ms[len(ms)-1].Channel == cometd.MetaConnect {
			if t.browsers.increment(browser) {
				t.suspend(w, r, session, connect, browser, replies)
				logger.Debug("finishing", "duration", time.Since(start))
				return
			}
			logger.Info("too many long-polls for browser", "browser", browser)
			connect.Advice = &cometd.Advice{
				Reconnect:       cometd.ReconnectRetry,
				Interval:        int(t.options.MultiSessionInterval / time.Millisecond),
				MultipleClients: true,
			}
		}
	}

	var queued []cometd.Message
	if session != nil {
		queued = session.takeQueue()
	}
	t.write(w, session, connect != nil, queued, replies)
	logger.Debug("finishing", "duration", time.Since(start))
}

// suspend holds the request until the session has something to send
func (t *LongPollingTransport) suspend(w http.ResponseWriter, r *http.Request, session *Session, connect *cometd.Message, browser string, replies []*cometd.Message) {
	sc := newLongPollScheduler(session, connect, browser, func() {
		t.browsers.decrement(browser)
	})
	defer sc.complete()
	sc.arm(t.options.Scheduler, t.options.Timeout)

	if old := session.suspend(sc); old != nil {
		t.logger.Debug("replacing suspended connect", "session", session.id)
		old.resume(resumedByMessage)
	}
	// a message may have been queued before sc was registered
	if session.Queued() > 0 || !session.IsConnected() {
		sc.resume(resumedByMessage)
	}
	if sc.currentState() != suspended {
		session.detach(sc)
	}

	cause := sc.wait(r.Context())
	t.logger.Debug("resumed", "session", session.id, "cause", cause)
	if cause == resumedByError {
		t.error(w, http.StatusInternalServerError)
		return
	}
	if !session.IsConnected() {
		connect.Advice = &cometd.Advice{Reconnect: cometd.ReconnectNone}
	}
	t.write(w, session, true, session.takeQueue(), replies)
}

// write frames the reply in memory first: the status stays unwritten until
// the whole frame encoded, so a failure can still become a 500.
func (t *LongPollingTransport) write(w http.ResponseWriter, session *Session, startInterval bool, messages []cometd.Message, replies []*cometd.Message) {
	var buf bytes.Buffer
	if err := t.writer.Write(&buf, session, startInterval, messages, replies); err != nil {
		t.logger.WithError(err).Warn("writing reply")
		t.error(w, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		t.logger.WithError(err).Debug("sending reply")
	}
}

func (t *LongPollingTransport) error(w http.ResponseWriter, code int) {
	http.Error(w, http.StatusText(code), code)
}

// parseMessages reads the request batches: either a JSON body or one or
// more `message` form parameters, each holding a batch
func (t *LongPollingTransport) parseMessages(w http.ResponseWriter, r *http.Request) ([]cometd.Message, error) {
	contentType := r.Header.Get("Content-Type")
	if r.Method == http.MethodGet || strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		batches := r.Form[messageParam]
		if len(batches) == 0 {
			return nil, errMissingMessages
		}
		var ms []cometd.Message
		for _, batch := range batches {
			if batch == "" {
				continue
			}
			parsed, err := t.options.Codec.Decode([]byte(batch))
			if err != nil {
				return nil, err
			}
			ms = append(ms, parsed...)
		}
		if len(ms) == 0 {
			return nil, errMissingMessages
		}
		return ms, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return t.options.Codec.Decode(body)
}
