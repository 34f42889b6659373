package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yhtsnda/cometd"
)

type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled atomic.Bool
}

func (t *fakeTask) Cancel() bool {
	return t.cancelled.CompareAndSwap(false, true)
}

// fakeScheduler records tasks; tests fire them explicitly
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) cometd.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{delay: delay, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *fakeScheduler) pending(delay time.Duration) []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*fakeTask
	for _, task := range s.tasks {
		if task.delay == delay && !task.cancelled.Load() {
			pending = append(pending, task)
		}
	}
	return pending
}

// fire runs every pending task scheduled with delay
func (s *fakeScheduler) fire(delay time.Duration) int {
	pending := s.pending(delay)
	for _, task := range pending {
		if task.cancelled.CompareAndSwap(false, true) {
			task.fn()
		}
	}
	return len(pending)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
