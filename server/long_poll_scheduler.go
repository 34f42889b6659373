package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yhtsnda/cometd"
)

type pollState int32

const (
	suspended pollState = iota
	resumedByMessage
	resumedByTimeout
	resumedByError
	completed
)

var pollStateNames = []string{"SUSPENDED", "RESUMED_BY_MESSAGE", "RESUMED_BY_TIMEOUT", "RESUMED_BY_ERROR", "COMPLETED"}

func (p pollState) String() string {
	if p < 0 || int(p) >= len(pollStateNames) {
		return "UNKNOWN"
	}
	return pollStateNames[p]
}

// LongPollScheduler owns one suspended /meta/connect. Message delivery, the
// timeout and a request error race to resume it; the first one wins and the
// others are no-ops. The suspended request goroutine then writes the reply
// and completes the scheduler, which releases the connection exactly once.
type LongPollScheduler struct {
	session   *Session
	reply     *cometd.Message
	browserID string

	state     atomic.Int32
	resumed   chan struct{}
	release   sync.Once
	onRelease func()

	mu          sync.Mutex
	timeoutTask cometd.Task
}

func newLongPollScheduler(session *Session, reply *cometd.Message, browserID string, onRelease func()) *LongPollScheduler {
	return &LongPollScheduler{
		session:   session,
		reply:     reply,
		browserID: browserID,
		resumed:   make(chan struct{}),
		onRelease: onRelease,
	}
}

// Session returns the session whose connect is suspended
func (sc *LongPollScheduler) Session() *Session { return sc.session }

// Reply returns the /meta/connect reply written on resumption
func (sc *LongPollScheduler) Reply() *cometd.Message { return sc.reply }

// BrowserID returns the browser holding the connection
func (sc *LongPollScheduler) BrowserID() string { return sc.browserID }

func (sc *LongPollScheduler) currentState() pollState {
	return pollState(sc.state.Load())
}

// arm schedules the timeout. It is always set before the scheduler becomes
// visible to other goroutines.
func (sc *LongPollScheduler) arm(scheduler cometd.Scheduler, timeout time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.timeoutTask = scheduler.Schedule(timeout, func() {
		sc.resume(resumedByTimeout)
	})
}

// resume moves the scheduler out of suspended. Only the first caller wins.
func (sc *LongPollScheduler) resume(cause pollState) bool {
	if !sc.state.CompareAndSwap(int32(suspended), int32(cause)) {
		return false
	}
	sc.mu.Lock()
	if sc.timeoutTask != nil {
		sc.timeoutTask.Cancel()
	}
	sc.mu.Unlock()
	sc.session.detach(sc)
	close(sc.resumed)
	return true
}

// wait blocks the suspended request until the scheduler is resumed. A done
// ctx resumes it with an error.
func (sc *LongPollScheduler) wait(ctx context.Context) pollState {
	select {
	case <-sc.resumed:
	case <-ctx.Done():
		sc.resume(resumedByError)
		<-sc.resumed
	}
	return sc.currentState()
}

// complete marks the reply as written and releases the connection
func (sc *LongPollScheduler) complete() {
	sc.state.Store(int32(completed))
	sc.release.Do(func() {
		if sc.onRelease != nil {
			sc.onRelease()
		}
	})
}
