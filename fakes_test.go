package cometd

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type fakeTransport struct {
	name      string
	listeners cowList[TransportListener]
	sendErr   error
	// onSend runs before a send is recorded, outside the transport lock
	onSend    func(Message)

	mu        sync.Mutex
	sent      []Message
	endpoints []string
	inits     int
	destroys  int
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name}
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Accept(version string) bool {
	major, ok := majorVersion(version)
	return ok && major == 1
}

func (t *fakeTransport) Init(*ClientSession) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inits++
	return nil
}

func (t *fakeTransport) Send(endpoint string, ms ...Message) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	if t.onSend != nil {
		for _, m := range ms {
			t.onSend(m)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, ms...)
	t.endpoints = append(t.endpoints, endpoint)
	return nil
}

func (t *fakeTransport) NewMessage() *Message { return &Message{} }

func (t *fakeTransport) AddListener(l TransportListener) { t.listeners.addUnique(l) }

func (t *fakeTransport) RemoveListener(l TransportListener) { t.listeners.remove(l) }

func (t *fakeTransport) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroys++
}

func (t *fakeTransport) messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}

func (t *fakeTransport) sentOn(channel Channel) []Message {
	var ms []Message
	for _, m := range t.messages() {
		if m.Channel == channel {
			ms = append(ms, m)
		}
	}
	return ms
}

func (t *fakeTransport) counts() (inits, destroys int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inits, t.destroys
}

type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled atomic.Bool
}

func (t *fakeTask) Cancel() bool {
	return t.cancelled.CompareAndSwap(false, true)
}

// fakeScheduler records tasks instead of running them
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{delay: delay, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *fakeScheduler) pending() []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*fakeTask
	for _, task := range s.tasks {
		if !task.cancelled.Load() {
			pending = append(pending, task)
		}
	}
	return pending
}

type recordingSessionListener struct {
	mu           sync.Mutex
	unsuccessful []Message
	failures     []error
}

func (l *recordingSessionListener) Unsuccessful(_ *ClientSession, m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsuccessful = append(l.unsuccessful, m)
}

func (l *recordingSessionListener) Failure(_ *ClientSession, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, err)
}

func (l *recordingSessionListener) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.failures...)
}

func (l *recordingSessionListener) replies() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.unsuccessful...)
}

type recordingMessageListener struct {
	mu       sync.Mutex
	received []Message
}

func (l *recordingMessageListener) OnMessage(_ *SessionChannel, m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = append(l.received, m)
}

func (l *recordingMessageListener) messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.received...)
}

type roundTripFn func(*http.Request) (*http.Response, error)

func (fn roundTripFn) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}
