package cometd

import (
	"sync"
	"time"
)

// Task is a handle on a deferred function scheduled by a Scheduler
type Task interface {
	// Cancel stops the task. It reports whether the call prevented the
	// function from running.
	Cancel() bool
}

// Scheduler runs functions after a delay. It backs delayed reconnects on the
// client and long-poll timeouts and session sweeping on the server.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Task
}

// TimeScheduler is a Scheduler built on time.AfterFunc
type TimeScheduler struct{}

// Schedule implements the Scheduler interface
func (TimeScheduler) Schedule(delay time.Duration, fn func()) Task {
	if delay < 0 {
		delay = 0
	}
	return timerTask{time.AfterFunc(delay, fn)}
}

type timerTask struct {
	*time.Timer
}

func (t timerTask) Cancel() bool {
	return t.Stop()
}

// reconnectTask owns the single outstanding delayed /meta/connect of a
// session. Scheduling a new one always cancels the previous one first.
type reconnectTask struct {
	mu        sync.Mutex
	scheduler Scheduler
	task      Task
}

func (r *reconnectTask) schedule(delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task != nil {
		r.task.Cancel()
	}
	r.task = r.scheduler.Schedule(delay, fn)
}

func (r *reconnectTask) cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task == nil {
		return false
	}
	cancelled := r.task.Cancel()
	r.task = nil
	return cancelled
}
