package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yhtsnda/cometd"
)

// Session is the server side state of one handshaken client
type Session struct {
	id          string
	scheduler   cometd.Scheduler
	maxInterval time.Duration
	logger      cometd.Logger
	onExpire    func(*Session)

	connected atomic.Bool
	// pending holds the long-poll currently suspended for this session
	pending atomic.Pointer[LongPollScheduler]

	mu            sync.Mutex
	queue         []cometd.Message
	subscriptions map[cometd.Channel]struct{}
	intervalTask  cometd.Task
}

func newSession(id string, options *Options, onExpire func(*Session)) *Session {
	s := &Session{
		id:            id,
		scheduler:     options.Scheduler,
		maxInterval:   options.MaxInterval,
		logger:        options.Logger.WithField("session", id),
		onExpire:      onExpire,
		subscriptions: make(map[cometd.Channel]struct{}),
	}
	s.connected.Store(true)
	return s
}

// ID returns the client id assigned at handshake
func (s *Session) ID() string { return s.id }

// IsConnected reports whether the session is neither disconnected nor
// expired
func (s *Session) IsConnected() bool { return s.connected.Load() }

// Deliver queues m for the client and wakes the suspended long-poll, if
// any. It never blocks on the network.
func (s *Session) Deliver(m cometd.Message) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	if sc := s.pending.Load(); sc != nil {
		sc.resume(resumedByMessage)
	}
}

// Queued returns the number of messages waiting for the next reply
func (s *Session) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Session) takeQueue() []cometd.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.queue
	s.queue = nil
	return queue
}

// StartIntervalTimeout arms the liveness timer: unless a connect arrives
// within interval plus the configured max interval, the session expires.
func (s *Session) StartIntervalTimeout(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.intervalTask != nil {
		s.intervalTask.Cancel()
	}
	s.intervalTask = s.scheduler.Schedule(interval+s.maxInterval, s.expire)
}

func (s *Session) cancelIntervalTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.intervalTask != nil {
		s.intervalTask.Cancel()
		s.intervalTask = nil
	}
}

func (s *Session) expire() {
	if !s.connected.CompareAndSwap(true, false) {
		return
	}
	s.logger.Info("session expired")
	s.closePending()
	if s.onExpire != nil {
		s.onExpire(s)
	}
}

func (s *Session) disconnect() bool {
	if !s.connected.CompareAndSwap(true, false) {
		return false
	}
	s.cancelIntervalTimeout()
	s.closePending()
	return true
}

func (s *Session) closePending() {
	if sc := s.pending.Load(); sc != nil {
		sc.resume(resumedByMessage)
	}
}

// suspend registers sc as the pending long-poll and returns the one it
// replaced
func (s *Session) suspend(sc *LongPollScheduler) *LongPollScheduler {
	return s.pending.Swap(sc)
}

func (s *Session) detach(sc *LongPollScheduler) {
	s.pending.CompareAndSwap(sc, nil)
}

func (s *Session) subscribe(channel cometd.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[channel] = struct{}{}
}

func (s *Session) unsubscribe(channel cometd.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[channel]; !ok {
		return false
	}
	delete(s.subscriptions, channel)
	return true
}

// subscribed reports whether one of the session subscriptions matches
// channel
func (s *Session) subscribed(channel cometd.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscriptions {
		if sub.Match(channel) {
			return true
		}
	}
	return false
}
