package cometd

import (
	"errors"
	"fmt"
)

// MessageExtender defines the interface that extensions are expected to
// implement. Incoming and Outgoing may edit the message they are given.
// Returning ErrVetoed (or an error wrapping it) drops the message. Any other
// error, or a panic, discards the edits made by that extension and the
// message carries on through the rest of the chain.
//
// Extensions are compared by identity, so implementations should be pointer
// types.
type MessageExtender interface {
	Outgoing(*Message) error
	Incoming(*Message) error
	Registered(session *ClientSession)
	Unregistered()
}

// extensionPipeline runs extensions in registration order. A delivery in
// progress keeps iterating over the snapshot it started with.
type extensionPipeline struct {
	exts cowList[MessageExtender]
}

func (p *extensionPipeline) add(ext MessageExtender) error {
	if !p.exts.addUnique(ext) {
		return AlreadyRegisteredError{ext}
	}
	return nil
}

func (p *extensionPipeline) remove(ext MessageExtender) bool {
	removed, _ := p.exts.remove(ext)
	return removed
}

// incoming filters a received batch. Vetoed messages are removed; the rest
// of the batch is unaffected.
func (p *extensionPipeline) incoming(logger Logger, ms []Message) []Message {
	result := make([]Message, 0, len(ms))
	for i := range ms {
		if m, ok := p.apply(logger, &ms[i], false); ok {
			result = append(result, *m)
		}
	}
	return result
}

func (p *extensionPipeline) outgoing(logger Logger, m *Message) (*Message, bool) {
	return p.apply(logger, m, true)
}

func (p *extensionPipeline) apply(logger Logger, m *Message, outgoing bool) (*Message, bool) {
	for _, ext := range p.exts.snapshot() {
		candidate := m.Clone()
		err := invokeExtension(ext, candidate, outgoing)
		switch {
		case err == nil:
			m = candidate
		case errors.Is(err, ErrVetoed):
			logger.Debug("extension vetoed message", "extension", fmt.Sprintf("%T", ext), "channel", m.Channel)
			return nil, false
		default:
			logger.WithError(ExtensionError{ext, outgoing, err}).Warn("ignoring failing extension")
		}
	}
	return m, true
}

func invokeExtension(ext MessageExtender, m *Message, outgoing bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if outgoing {
		return ext.Outgoing(m)
	}
	return ext.Incoming(m)
}
