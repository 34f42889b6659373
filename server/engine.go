package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/yhtsnda/cometd"
)

// Bayeux error codes used in unsuccessful replies
const (
	errorVersion         = 300
	errorConnectionTypes = 301
	errorUnknownClient   = 402
	errorNotSubscribed   = 403
	errorInvalidChannel  = 405
)

// Engine is a minimal in-memory Bayeux server: it owns the sessions and
// answers the meta channels and publishes. Transports feed it messages.
type Engine struct {
	options *Options
	logger  cometd.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewEngine creates an Engine
func NewEngine(opts ...Option) *Engine {
	options := newOptions(opts)
	return &Engine{
		options:  options,
		logger:   options.Logger.WithField("component", "engine"),
		sessions: make(map[string]*Session),
	}
}

// Session returns the session with the given client id
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	return s, ok
}

// SessionCount returns the number of live sessions
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

func (e *Engine) addSession() *Session {
	s := newSession(uuid.NewV4().String(), e.options, e.removeSession)
	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()
	return s
}

func (e *Engine) removeSession(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if current, ok := e.sessions[s.id]; ok && current == s {
		delete(e.sessions, s.id)
	}
}

// Publish delivers data on channel to every subscribed session and returns
// how many sessions it reached
func (e *Engine) Publish(channel cometd.Channel, data json.RawMessage) (int, error) {
	if !channel.IsValid() || channel.HasWildcard() || channel.IsMeta() {
		return 0, cometd.InvalidChannelError{Channel: channel}
	}
	return e.broadcast(cometd.Message{Channel: channel, Data: data}), nil
}

func (e *Engine) broadcast(m cometd.Message) int {
	e.mu.RLock()
	recipients := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		if s.subscribed(m.Channel) {
			recipients = append(recipients, s)
		}
	}
	e.mu.RUnlock()

	for _, s := range recipients {
		s.Deliver(m)
	}
	return len(recipients)
}

func (e *Engine) advice() *cometd.Advice {
	return &cometd.Advice{
		Reconnect: cometd.ReconnectRetry,
		Interval:  int(e.options.Interval / time.Millisecond),
		Timeout:   int(e.options.Timeout / time.Millisecond),
	}
}

// handle processes one request message and returns the session it belongs
// to (nil when unknown) and the reply
func (e *Engine) handle(m *cometd.Message) (*Session, *cometd.Message) {
	reply := &cometd.Message{Channel: m.Channel, ID: m.ID}
	if m.Channel == cometd.MetaHandshake {
		return e.handshake(m, reply), reply
	}

	session, ok := e.Session(m.ClientID)
	if !ok || !session.IsConnected() {
		reply.Error = bayeuxError(errorUnknownClient, nil, "Unknown client")
		reply.Advice = &cometd.Advice{Reconnect: cometd.ReconnectHandshake}
		return nil, reply
	}
	reply.ClientID = session.id

	switch m.Channel {
	case cometd.MetaConnect:
		e.connect(m, reply)
	case cometd.MetaSubscribe:
		e.subscribe(session, m, reply)
	case cometd.MetaUnsubscribe:
		e.unsubscribe(session, m, reply)
	case cometd.MetaDisconnect:
		if session.disconnect() {
			e.removeSession(session)
		}
		reply.Successful = true
	default:
		e.publish(m, reply)
	}
	return session, reply
}

func (e *Engine) handshake(m *cometd.Message, reply *cometd.Message) *Session {
	if major, ok := majorVersion(m.Version); !ok || major != 1 {
		reply.Error = bayeuxError(errorVersion, []string{m.Version}, "unsupported version")
		reply.Advice = &cometd.Advice{Reconnect: cometd.ReconnectNone}
		return nil
	}
	supported := false
	for _, ct := range m.SupportedConnectionTypes {
		if ct == cometd.ConnectionTypeLongPolling {
			supported = true
		}
	}
	if !supported {
		reply.Error = bayeuxError(errorConnectionTypes, m.SupportedConnectionTypes, "unsupported connection types")
		reply.Advice = &cometd.Advice{Reconnect: cometd.ReconnectNone}
		return nil
	}

	session := e.addSession()
	session.StartIntervalTimeout(e.options.Interval)
	e.logger.Debug("handshake", "session", session.id)

	reply.ClientID = session.id
	reply.Version = cometd.BayeuxVersion
	reply.SupportedConnectionTypes = []string{cometd.ConnectionTypeLongPolling}
	reply.Successful = true
	reply.Advice = e.advice()
	return session
}

func (e *Engine) connect(m *cometd.Message, reply *cometd.Message) {
	if m.ConnectionType != cometd.ConnectionTypeLongPolling {
		reply.Error = bayeuxError(errorConnectionTypes, []string{m.ConnectionType}, "unsupported connection type")
		return
	}
	reply.Successful = true
	reply.Advice = e.advice()
}

func (e *Engine) subscribe(session *Session, m *cometd.Message, reply *cometd.Message) {
	reply.Subscription = m.Subscription
	if !m.Subscription.IsValid() || m.Subscription.IsMeta() {
		reply.Error = bayeuxError(errorInvalidChannel, []string{string(m.Subscription)}, "invalid channel")
		return
	}
	session.subscribe(m.Subscription)
	reply.Successful = true
}

func (e *Engine) unsubscribe(session *Session, m *cometd.Message, reply *cometd.Message) {
	reply.Subscription = m.Subscription
	if !session.unsubscribe(m.Subscription) {
		reply.Error = bayeuxError(errorNotSubscribed, []string{string(m.Subscription)}, "not subscribed")
		return
	}
	reply.Successful = true
}

func (e *Engine) publish(m *cometd.Message, reply *cometd.Message) {
	if !m.Channel.IsValid() || m.Channel.HasWildcard() {
		reply.Error = bayeuxError(errorInvalidChannel, []string{string(m.Channel)}, "invalid channel")
		return
	}
	reply.Successful = true
	if m.Channel.IsService() {
		return
	}
	e.broadcast(cometd.Message{Channel: m.Channel, Data: m.Data, ID: m.ID, Ext: m.Ext})
}

// bayeuxError formats an error field as code:args:message
func bayeuxError(code int, args []string, message string) string {
	return fmt.Sprintf("%d:%s:%s", code, strings.Join(args, ","), message)
}

func majorVersion(version string) (int, bool) {
	var major int
	if _, err := fmt.Sscanf(version, "%d", &major); err != nil {
		return 0, false
	}
	return major, true
}
