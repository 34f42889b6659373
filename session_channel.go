package cometd

import "fmt"

// SessionChannel is the client side view of a channel. It is created lazily
// by ClientSession.Channel and lives as long as its session.
type SessionChannel struct {
	id Channel
	// session is a non-owning back reference; the session owns the channel
	session     *ClientSession
	subscribers cowList[MessageListener]
	listeners   cowList[MessageListener]
}

func newSessionChannel(session *ClientSession, id Channel) *SessionChannel {
	return &SessionChannel{id: id, session: session}
}

// ID returns the channel id
func (c *SessionChannel) ID() Channel { return c.id }

// Session returns the session owning the channel
func (c *SessionChannel) Session() *ClientSession { return c.session }

// IsMeta reports whether the channel is a /meta/ channel
func (c *SessionChannel) IsMeta() bool { return c.id.IsMeta() }

// IsService reports whether the channel is a /service/ channel
func (c *SessionChannel) IsService() bool { return c.id.IsService() }

// IsWild reports whether the channel ends with `*`
func (c *SessionChannel) IsWild() bool { return c.id.IsWild() }

// IsDeepWild reports whether the channel ends with `**`
func (c *SessionChannel) IsDeepWild() bool { return c.id.IsDeepWild() }

// Publish sends data on this channel. The session must have completed its
// handshake.
func (c *SessionChannel) Publish(data interface{}) error {
	clientID := c.session.ClientID()
	if clientID == "" {
		return c.session.notHandshaken(c.id)
	}
	builder := NewPublishRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddChannel(c.id); err != nil {
		return err
	}
	if err := builder.AddData(data); err != nil {
		return err
	}
	ms, err := builder.Build()
	if err != nil {
		return err
	}
	return c.session.Send(ms[0])
}

// Subscribe adds l to the subscribers of the channel. Only the first
// subscriber causes a /meta/subscribe request.
func (c *SessionChannel) Subscribe(l MessageListener) error {
	clientID := c.session.ClientID()
	if clientID == "" {
		return c.session.notHandshaken(c.id)
	}
	if !c.id.IsValid() || c.id.IsMeta() {
		return InvalidChannelError{c.id}
	}
	if c.subscribers.add(l) != 1 {
		return nil
	}
	return c.sendSubscription(NewSubscribeRequestBuilder(), clientID)
}

// Unsubscribe removes l from the subscribers of the channel. Only removing
// the last subscriber causes a /meta/unsubscribe request.
func (c *SessionChannel) Unsubscribe(l MessageListener) error {
	clientID := c.session.ClientID()
	if clientID == "" {
		return c.session.notHandshaken(c.id)
	}
	if removed, remaining := c.subscribers.remove(l); !removed || remaining > 0 {
		return nil
	}
	return c.sendSubscription(NewUnsubscribeRequestBuilder(), clientID)
}

// UnsubscribeAll removes every subscriber, sending a single
// /meta/unsubscribe if there was any.
func (c *SessionChannel) UnsubscribeAll() error {
	clientID := c.session.ClientID()
	if clientID == "" {
		return c.session.notHandshaken(c.id)
	}
	if len(c.subscribers.snapshot()) == 0 {
		return nil
	}
	c.subscribers.clear()
	return c.sendSubscription(NewUnsubscribeRequestBuilder(), clientID)
}

type subscriptionBuilder interface {
	AddClientID(string)
	AddSubscription(Channel) error
	Build() ([]Message, error)
}

func (c *SessionChannel) sendSubscription(builder subscriptionBuilder, clientID string) error {
	builder.AddClientID(clientID)
	if err := builder.AddSubscription(c.id); err != nil {
		return err
	}
	ms, err := builder.Build()
	if err != nil {
		return err
	}
	return c.session.Send(ms[0])
}

// Subscribers returns a snapshot of the current subscribers
func (c *SessionChannel) Subscribers() []MessageListener {
	return c.subscribers.snapshot()
}

// AddListener registers a local listener. Unlike Subscribe it never talks
// to the server; it is how callers observe meta channels.
func (c *SessionChannel) AddListener(l MessageListener) {
	c.listeners.add(l)
}

// RemoveListener removes a local listener
func (c *SessionChannel) RemoveListener(l MessageListener) {
	c.listeners.remove(l)
}

func (c *SessionChannel) notify(logger Logger, m Message) {
	for _, l := range c.listeners.snapshot() {
		c.invoke(logger, l, m)
	}
	for _, l := range c.subscribers.snapshot() {
		c.invoke(logger, l, m)
	}
}

func (c *SessionChannel) invoke(logger Logger, l MessageListener, m Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithError(fmt.Errorf("panic: %v", r)).Warn("message listener failed", "channel", c.id)
		}
	}()
	l.OnMessage(c, m)
}

func (c *SessionChannel) release() {
	c.subscribers.clear()
}
