package cometd

// SessionListener is notified of what a ClientSession cannot return to a
// caller: unsuccessful replies and failures detected while receiving.
type SessionListener interface {
	Unsuccessful(session *ClientSession, m Message)
	Failure(session *ClientSession, err error)
}

// UnsuccessfulHandler is the policy applied to replies carrying
// successful=false. It runs on the delivery path of the session.
type UnsuccessfulHandler func(session *ClientSession, m Message)

// NotifyUnsuccessful is the default UnsuccessfulHandler. It notifies the
// session listeners and nothing else: retries only ever happen when the
// server advice asks for them.
func NotifyUnsuccessful(session *ClientSession, m Message) {
	session.notifyUnsuccessful(m)
}

// MessageListener receives messages delivered on a SessionChannel.
// Listeners are compared by identity when removed, so implementations should
// be pointer types.
type MessageListener interface {
	OnMessage(channel *SessionChannel, m Message)
}

type chanListener struct {
	ch chan<- Message
}

// NewChanListener returns a MessageListener forwarding every message to ch.
// Delivery blocks while ch is full, so ch should be buffered or drained
// promptly.
func NewChanListener(ch chan<- Message) MessageListener {
	return &chanListener{ch}
}

func (l *chanListener) OnMessage(_ *SessionChannel, m Message) {
	l.ch <- m
}
