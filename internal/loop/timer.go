package loop

import (
	"sync/atomic"
	"time"
)

const (
	timerPending int32 = iota
	timerStopped
	timerFired
)

// Timer is a one-shot timer whose callback runs on the loop.
type Timer struct {
	t     *time.Timer
	state atomic.Int32
}

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have won the race after the timer fired but before this task ran.
			if timer.state.CompareAndSwap(timerPending, timerFired) {
				fn()
			}
		})
	})
	return timer
}

// Stop prevents fn from running. When called on the loop it is authoritative:
// a timer that already fired but whose task has not run yet is discarded.
// It reports whether this call prevented fn from running.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	t.t.Stop()
	return t.state.CompareAndSwap(timerPending, timerStopped)
}

// Fired reports whether fn has started running.
func (t *Timer) Fired() bool {
	return t != nil && t.state.Load() == timerFired
}
