package cometd

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	backoffIncrement = time.Second
	maxBackoff       = 30 * time.Second
)

// ClientSession is the client side of a Bayeux conversation. It sequences
// handshake, connect and disconnect, negotiates the transport, follows the
// server advice and dispatches received messages to its channels.
//
// A ClientSession is safe for concurrent use.
type ClientSession struct {
	servers      []string
	server       atomic.Int32
	version      string
	logger       Logger
	stateMachine *ConnectionStateMachine
	state        *clientState
	transports   *TransportRegistry
	unsuccessful UnsuccessfulHandler
	advice       atomic.Pointer[Advice]

	transportMu       sync.RWMutex
	transport         ClientTransport
	transportListener *sessionTransportListener

	// receiveMu serializes the processing of received batches
	receiveMu sync.Mutex
	failures  atomic.Int32

	batchDepth atomic.Int32
	queueMu    sync.Mutex
	queue      []Message
	// draining is set while a closed batch is being sent; sends made
	// meanwhile join the queue so they keep their order
	draining   bool

	messageIDs atomic.Uint64
	reconnect  reconnectTask
	extensions extensionPipeline
	listeners  cowList[SessionListener]
	channels   sync.Map
	attributes sync.Map

	changedMu sync.Mutex
	changed   chan struct{}
}

// NewClientSession creates a Disconnected session for the given server
// addresses. The first address is used until UseServer selects another.
func NewClientSession(servers []string, opts ...Option) (*ClientSession, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	for _, s := range servers {
		if _, err := url.Parse(s); err != nil {
			return nil, err
		}
	}

	options := &Options{
		Scheduler:           TimeScheduler{},
		UnsuccessfulHandler: NotifyUnsuccessful,
		Version:             BayeuxVersion,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = NewNullLogger()
	}
	if _, ok := majorVersion(options.Version); !ok {
		return nil, BadConnectionVersionError{options.Version}
	}

	transports := options.Transports
	if len(transports) == 0 {
		client := options.HTTPClient
		if options.HTTPTransport != nil {
			if client == nil {
				var err error
				if client, err = newCookieClient(); err != nil {
					return nil, err
				}
			}
			client.Transport = options.HTTPTransport
		}
		lp, err := NewLongPollingTransport(client, options.Logger)
		if err != nil {
			return nil, err
		}
		transports = []ClientTransport{lp}
	}

	s := &ClientSession{
		servers:      servers,
		version:      options.Version,
		logger:       options.Logger,
		stateMachine: NewConnectionStateMachine(),
		state:        &clientState{},
		transports:   NewTransportRegistry(transports...),
		unsuccessful: options.UnsuccessfulHandler,
		reconnect:    reconnectTask{scheduler: options.Scheduler},
		changed:      make(chan struct{}),
	}
	s.transportListener = &sessionTransportListener{s}
	return s, nil
}

// UseServer selects the server address used by subsequent sends
func (s *ClientSession) UseServer(index int) error {
	if index < 0 || index >= len(s.servers) {
		return ServerIndexError{Index: index, Servers: len(s.servers)}
	}
	s.server.Store(int32(index))
	return nil
}

func (s *ClientSession) endpoint() string {
	return s.servers[s.server.Load()]
}

// State returns the current protocol state
func (s *ClientSession) State() State {
	return s.stateMachine.CurrentState()
}

// IsConnected reports whether the session completed its handshake and has
// not started disconnecting
func (s *ClientSession) IsConnected() bool {
	return s.stateMachine.IsConnected()
}

// ClientID returns the id assigned by the server, or "" before a successful
// handshake
func (s *ClientSession) ClientID() string {
	return s.state.GetClientID()
}

// Advice returns a copy of the last advice received from the server
func (s *ClientSession) Advice() (Advice, bool) {
	a := s.advice.Load()
	if a == nil {
		return Advice{}, false
	}
	return *a, true
}

// WaitFor blocks until the session is in one of states or ctx is done. It
// returns the state observed last.
func (s *ClientSession) WaitFor(ctx context.Context, states ...State) (State, error) {
	for {
		s.changedMu.Lock()
		changed := s.changed
		s.changedMu.Unlock()

		current := s.State()
		for _, st := range states {
			if st == current {
				return current, nil
			}
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return current, ctx.Err()
		}
	}
}

func (s *ClientSession) processEvent(e Event) error {
	before := s.State()
	if err := s.stateMachine.ProcessEvent(e); err != nil {
		return err
	}
	if after := s.State(); after != before {
		s.logger.Debug("state changed", "from", before, "to", after)
	}
	s.changedMu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.changedMu.Unlock()
	return nil
}

func (s *ClientSession) notHandshaken(channel Channel) error {
	return StateError{Channel: channel, Current: s.State(), Expected: []State{Connected}}
}

// AddListener registers a SessionListener
func (s *ClientSession) AddListener(l SessionListener) {
	s.listeners.addUnique(l)
}

// RemoveListener unregisters a SessionListener
func (s *ClientSession) RemoveListener(l SessionListener) {
	s.listeners.remove(l)
}

// UseExtension appends ext to the extension chain
func (s *ClientSession) UseExtension(ext MessageExtender) error {
	if err := s.extensions.add(ext); err != nil {
		return err
	}
	ext.Registered(s)
	return nil
}

// RemoveExtension removes ext from the extension chain
func (s *ClientSession) RemoveExtension(ext MessageExtender) bool {
	if !s.extensions.remove(ext) {
		return false
	}
	ext.Unregistered()
	return true
}

// Channel returns the SessionChannel for id, creating it on first use. All
// callers observe the same *SessionChannel for a given id.
func (s *ClientSession) Channel(id Channel) *SessionChannel {
	if ch, ok := s.channels.Load(id); ok {
		return ch.(*SessionChannel)
	}
	ch, _ := s.channels.LoadOrStore(id, newSessionChannel(s, id))
	return ch.(*SessionChannel)
}

// Publish sends data on channel. It is a shorthand for
// s.Channel(channel).Publish(data).
func (s *ClientSession) Publish(channel Channel, data interface{}) error {
	return s.Channel(channel).Publish(data)
}

func (s *ClientSession) releaseChannels() {
	s.channels.Range(func(_, value any) bool {
		value.(*SessionChannel).release()
		return true
	})
}

// SetAttribute stores a value on the session
func (s *ClientSession) SetAttribute(name string, value any) {
	s.attributes.Store(name, value)
}

// Attribute returns a value stored with SetAttribute
func (s *ClientSession) Attribute(name string) (any, bool) {
	return s.attributes.Load(name)
}

// RemoveAttribute deletes an attribute and returns its previous value
func (s *ClientSession) RemoveAttribute(name string) any {
	value, _ := s.attributes.LoadAndDelete(name)
	return value
}

// AttributeNames returns the names of the stored attributes, sorted
func (s *ClientSession) AttributeNames() []string {
	var names []string
	s.attributes.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Handshake starts the Bayeux conversation. The reply is processed
// asynchronously; use WaitFor or a listener on /meta/handshake to observe
// the outcome. The request bypasses any open batch.
func (s *ClientSession) Handshake() error {
	logger := s.logger.WithField("at", "handshake")
	start := time.Now()
	logger.Debug("starting")

	if s.ClientID() != "" {
		return StateError{Channel: MetaHandshake, Current: s.State(), Expected: []State{Disconnected}}
	}

	builder := NewHandshakeRequestBuilder()
	if err := builder.AddVersion(s.version); err != nil {
		return err
	}
	for _, name := range s.transports.Names() {
		if err := builder.AddSupportedConnectionType(name); err != nil {
			return err
		}
	}
	ms, err := builder.Build()
	if err != nil {
		return err
	}

	if s.currentTransport() == nil {
		t := s.transports.first(s.version)
		if t == nil {
			return NegotiationError{ClientTypes: s.transports.Names(), Version: s.version}
		}
		if err := s.bindTransport(t); err != nil {
			return err
		}
	}

	if err := s.processEvent(handshakeSent); err != nil {
		return err
	}
	if err := s.doSend(&ms[0]); err != nil {
		_ = s.processEvent(reset)
		logger.WithError(err).Debug("handshake not sent")
		return err
	}
	logger.Debug("finishing", "duration", time.Since(start))
	return nil
}

// Disconnect asks the server to end the session. The transition to
// Disconnected happens when the reply arrives.
func (s *ClientSession) Disconnect() error {
	logger := s.logger.WithField("at", "disconnect")
	start := time.Now()
	logger.Debug("starting")

	clientID := s.ClientID()
	if clientID == "" {
		return ErrClientNotConnected
	}
	builder := NewDisconnectRequestBuilder()
	builder.AddClientID(clientID)
	ms, err := builder.Build()
	if err != nil {
		return err
	}
	if err := s.processEvent(disconnectSent); err != nil {
		return err
	}
	s.reconnect.cancel()
	if err := s.Send(ms[0]); err != nil {
		logger.WithError(err).Debug("disconnect not sent, disconnecting locally")
		s.disconnected()
		return err
	}
	logger.Debug("finishing", "duration", time.Since(start))
	return nil
}

// StartBatch opens a batch: until the matching EndBatch, Send queues
// messages instead of transmitting them. Batches nest.
func (s *ClientSession) StartBatch() {
	s.batchDepth.Add(1)
}

// EndBatch closes a batch. Closing the outermost batch transmits the queued
// messages one by one, in the order they were sent. Sends made while the
// queue drains are appended to it rather than overtaking it. The first
// transmission error is returned after every queued message has been
// attempted.
func (s *ClientSession) EndBatch() error {
	s.queueMu.Lock()
	depth := s.batchDepth.Add(-1)
	if depth < 0 {
		s.batchDepth.Store(0)
		s.queueMu.Unlock()
		s.logger.Warn("unbalanced EndBatch ignored")
		return nil
	}
	if depth > 0 || s.draining {
		s.queueMu.Unlock()
		return nil
	}
	s.draining = true
	s.queueMu.Unlock()

	var firstErr error
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 || s.batchDepth.Load() > 0 {
			s.draining = false
			s.queueMu.Unlock()
			return firstErr
		}
		queued := s.queue
		s.queue = nil
		s.queueMu.Unlock()

		for i := range queued {
			if err := s.doSend(&queued[i]); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
}

// Batch runs fn inside a batch. The batch is closed even when fn returns an
// error or panics.
func (s *ClientSession) Batch(fn func() error) (err error) {
	s.StartBatch()
	defer func() {
		if endErr := s.EndBatch(); err == nil {
			err = endErr
		}
	}()
	return fn()
}

// Send transmits m to the current server, or queues it while a batch is
// open.
func (s *ClientSession) Send(m Message) error {
	s.queueMu.Lock()
	if s.batchDepth.Load() > 0 || s.draining {
		s.queue = append(s.queue, m)
		s.queueMu.Unlock()
		return nil
	}
	s.queueMu.Unlock()
	return s.doSend(&m)
}

func (s *ClientSession) newMessageID() string {
	return strconv.FormatUint(s.messageIDs.Add(1), 10)
}

func (s *ClientSession) doSend(m *Message) error {
	if m.ID == "" {
		m.ID = s.newMessageID()
	}
	out, ok := s.extensions.outgoing(s.logger.WithField("at", "send"), m)
	if !ok {
		s.vetoed(m.Channel)
		return ErrVetoed
	}
	t := s.currentTransport()
	if t == nil {
		return ErrNoTransport
	}
	return t.Send(s.endpoint(), *out)
}

// vetoed unwinds the state change made for a meta request that an
// extension dropped, since no reply will ever arrive for it
func (s *ClientSession) vetoed(channel Channel) {
	switch channel {
	case MetaHandshake:
		if s.State() == Handshaking {
			_ = s.processEvent(reset)
		}
	case MetaDisconnect:
		s.disconnected()
	}
}

// disconnected completes a disconnect that is in progress
func (s *ClientSession) disconnected() {
	if s.processEvent(disconnectSucceeded) != nil {
		return
	}
	s.reconnect.cancel()
	s.state.SetClientID("")
	s.releaseChannels()
}

func (s *ClientSession) currentTransport() ClientTransport {
	s.transportMu.RLock()
	defer s.transportMu.RUnlock()
	return s.transport
}

// bindTransport swaps the bound transport. The old one is unbound and
// destroyed before the new one is bound and initialized; readers only ever
// see a fully initialized transport or none.
func (s *ClientSession) bindTransport(next ClientTransport) error {
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	if s.transport == next {
		return nil
	}
	if s.transport != nil {
		s.transport.RemoveListener(s.transportListener)
		s.transport.Destroy()
		s.transport = nil
	}
	if next == nil {
		return nil
	}
	next.AddListener(s.transportListener)
	if err := next.Init(s); err != nil {
		next.RemoveListener(s.transportListener)
		return err
	}
	s.transport = next
	return nil
}

// Receive processes a batch of messages read from the server. Transports
// call it through their TransportListener; batches are processed one at a
// time. A protocol state violation or a failed negotiation is fatal: session
// listeners are notified, the session is torn down and the error returned.
func (s *ClientSession) Receive(ms []Message) error {
	s.receiveMu.Lock()
	defer s.receiveMu.Unlock()

	logger := s.logger.WithField("at", "receive")
	for _, m := range s.extensions.incoming(logger, ms) {
		if m.Advice != nil {
			advice := *m.Advice
			s.advice.Store(&advice)
		}
		var err error
		switch m.Channel {
		case emptyChannel:
			logger.Info("dropping message without channel", "id", m.ID)
		case MetaHandshake:
			err = s.receiveHandshake(m)
		case MetaConnect:
			err = s.receiveConnect(m)
		case MetaDisconnect:
			err = s.receiveDisconnect(m)
		default:
			s.receiveMessage(m)
		}
		if err != nil {
			logger.WithError(err).Error("session failed")
			s.fail(err)
			return err
		}
	}
	return nil
}

func (s *ClientSession) receiveHandshake(m Message) error {
	if err := s.stateMachine.Expect(MetaHandshake, Handshaking); err != nil {
		return err
	}
	if !m.Successful {
		_ = s.processEvent(reset)
		s.unsuccessful(s, m)
		s.notifyChannel(m)
		s.followAdvice()
		return nil
	}

	t := s.transports.Negotiate(m.SupportedConnectionTypes, s.version)
	if t == nil {
		return NegotiationError{
			ClientTypes: s.transports.Names(),
			ServerTypes: m.SupportedConnectionTypes,
			Version:     s.version,
		}
	}
	if err := s.bindTransport(t); err != nil {
		return err
	}
	s.state.SetClientID(m.ClientID)
	if err := s.processEvent(handshakeSucceeded); err != nil {
		return err
	}
	s.failures.Store(0)
	s.notifyChannel(m)
	s.followAdvice()
	return nil
}

func (s *ClientSession) receiveConnect(m Message) error {
	if err := s.stateMachine.Expect(MetaConnect, Connected, Disconnecting); err != nil {
		return err
	}
	if m.Successful {
		s.failures.Store(0)
		s.notifyChannel(m)
	} else {
		s.unsuccessful(s, m)
		s.notifyChannel(m)
	}
	s.followAdvice()
	return nil
}

func (s *ClientSession) receiveDisconnect(m Message) error {
	if err := s.stateMachine.Expect(MetaDisconnect, Disconnecting); err != nil {
		return err
	}
	if !m.Successful {
		s.unsuccessful(s, m)
		s.notifyChannel(m)
		s.followAdvice()
		return nil
	}
	s.disconnected()
	s.notifyChannel(m)
	return nil
}

func (s *ClientSession) receiveMessage(m Message) {
	switch {
	case m.IsMeta():
		if !m.Successful {
			s.unsuccessful(s, m)
		}
		s.notifyChannel(m)
	case m.Data != nil:
		s.deliver(m)
	case !m.Successful:
		s.unsuccessful(s, m)
	default:
		s.logger.Debug("publish acknowledged", "channel", m.Channel, "id", m.ID)
	}
}

// notifyChannel notifies the listeners of the channel the message arrived on
func (s *ClientSession) notifyChannel(m Message) {
	if ch, ok := s.channels.Load(m.Channel); ok {
		ch.(*SessionChannel).notify(s.logger, m)
	}
}

// deliver hands a broadcast message to every channel equal to or matching
// the message channel
func (s *ClientSession) deliver(m Message) {
	s.channels.Range(func(key, value any) bool {
		if key.(Channel).Match(m.Channel) {
			value.(*SessionChannel).notify(s.logger, m)
		}
		return true
	})
}

func (s *ClientSession) followAdvice() {
	a := s.advice.Load()
	if a == nil {
		return
	}
	switch a.Reconnect {
	case ReconnectRetry:
		s.scheduleConnect(a.IntervalAsDuration())
	case ReconnectHandshake:
		s.reconnect.cancel()
		s.state.SetClientID("")
		if err := s.bindTransport(nil); err != nil {
			s.logger.WithError(err).Warn("unbinding transport")
		}
		_ = s.processEvent(reset)
		s.notifyFailure(ErrRehandshakeRequired)
	case ReconnectNone, "":
	default:
		s.logger.Warn("ignoring unknown advice", "reconnect", a.Reconnect)
	}
}

func (s *ClientSession) scheduleConnect(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.logger.Debug("scheduling connect", "delay", delay)
	s.reconnect.schedule(delay, s.connect)
}

func (s *ClientSession) connect() {
	logger := s.logger.WithField("at", "connect")
	if !s.IsConnected() {
		logger.Debug("skipping connect", "state", s.State())
		return
	}
	t := s.currentTransport()
	if t == nil {
		logger.WithError(ErrNoTransport).Warn("skipping connect")
		return
	}
	builder := NewConnectRequestBuilder()
	builder.AddClientID(s.ClientID())
	if err := builder.AddConnectionType(t.Name()); err != nil {
		logger.WithError(err).Warn("skipping connect")
		return
	}
	ms, err := builder.Build()
	if err != nil {
		logger.WithError(err).Warn("skipping connect")
		return
	}
	if err := s.doSend(&ms[0]); err != nil {
		logger.WithError(err).Warn("connect not sent")
		s.notifyFailure(err)
	}
}

// transportFailed handles an exchange that produced no reply. A lost
// /meta/connect is retried with a growing backoff when the advice allows
// it; a lost handshake or disconnect returns the session to Disconnected.
func (s *ClientSession) transportFailed(err error, ms []Message) {
	s.receiveMu.Lock()
	defer s.receiveMu.Unlock()

	s.logger.WithError(err).Warn("transport failure", "messages", len(ms))
	s.notifyFailure(err)
	for _, m := range ms {
		switch m.Channel {
		case MetaHandshake:
			if s.State() == Handshaking {
				_ = s.processEvent(reset)
			}
		case MetaDisconnect:
			s.disconnected()
		case MetaConnect:
			a, _ := s.Advice()
			if !s.IsConnected() || a.MustNotRetryOrHandshake() || a.ShouldHandshake() {
				continue
			}
			backoff := time.Duration(s.failures.Add(1)) * backoffIncrement
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			s.scheduleConnect(a.IntervalAsDuration() + backoff)
		}
	}
}

// fail tears the session down after a fatal error
func (s *ClientSession) fail(err error) {
	s.notifyFailure(err)
	s.reconnect.cancel()
	s.state.SetClientID("")
	if unbindErr := s.bindTransport(nil); unbindErr != nil {
		s.logger.WithError(unbindErr).Warn("unbinding transport")
	}
	s.queueMu.Lock()
	s.queue = nil
	s.queueMu.Unlock()
	s.releaseChannels()
	_ = s.processEvent(reset)
}

func (s *ClientSession) notifyUnsuccessful(m Message) {
	for _, l := range s.listeners.snapshot() {
		func() {
			defer s.recoverListener("unsuccessful")
			l.Unsuccessful(s, m)
		}()
	}
}

func (s *ClientSession) notifyFailure(err error) {
	for _, l := range s.listeners.snapshot() {
		func() {
			defer s.recoverListener("failure")
			l.Failure(s, err)
		}()
	}
}

func (s *ClientSession) recoverListener(event string) {
	if r := recover(); r != nil {
		s.logger.WithError(fmt.Errorf("panic: %v", r)).Warn("session listener failed", "event", event)
	}
}

type sessionTransportListener struct {
	session *ClientSession
}

func (l *sessionTransportListener) OnMessages(ms []Message) {
	_ = l.session.Receive(ms)
}

func (l *sessionTransportListener) OnFailure(err error, ms []Message) {
	l.session.transportFailed(err, ms)
}

type clientState struct {
	clientID string
	lock     sync.RWMutex
}

func (cs *clientState) GetClientID() string {
	cs.lock.RLock()
	defer cs.lock.RUnlock()
	return cs.clientID
}

func (cs *clientState) SetClientID(clientID string) {
	cs.lock.Lock()
	defer cs.lock.Unlock()
	cs.clientID = clientID
}
