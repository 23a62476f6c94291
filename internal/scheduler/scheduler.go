// Package scheduler runs delayed and periodic callbacks behind an interface so
// that timing-dependent code can be driven by a manual clock in tests.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle cancels a scheduled task.
type Handle interface {
	// Stop prevents any further invocation of the task. It reports whether
	// this call stopped a live task. An invocation already running is not
	// interrupted.
	Stop() bool
}

type Scheduler interface {
	Now() time.Time
	// Every runs fn every d until stopped. The first run happens after d.
	Every(d time.Duration, fn func()) Handle
	// After runs fn once after d unless stopped first.
	After(d time.Duration, fn func()) Handle
}

type realScheduler struct{}

// New returns a Scheduler backed by the runtime timers.
func New() Scheduler {
	return realScheduler{}
}

func (realScheduler) Now() time.Time { return time.Now() }

type loopHandle struct {
	done chan struct{}
	once sync.Once
}

func (h *loopHandle) Stop() bool {
	stopped := false
	h.once.Do(func() {
		close(h.done)
		stopped = true
	})
	return stopped
}

func (realScheduler) Every(d time.Duration, fn func()) Handle {
	h := &loopHandle{done: make(chan struct{})}
	ticker := time.NewTicker(d)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				// Stop may race with the tick; prefer Stop.
				select {
				case <-h.done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return h
}

type timerHandle struct {
	timer *time.Timer
	fired atomic.Bool
}

func (h *timerHandle) Stop() bool {
	if !h.fired.CompareAndSwap(false, true) {
		return false
	}
	h.timer.Stop()
	return true
}

func (realScheduler) After(d time.Duration, fn func()) Handle {
	h := &timerHandle{}
	h.timer = time.AfterFunc(d, func() {
		if h.fired.CompareAndSwap(false, true) {
			fn()
		}
	})
	return h
}
