// Package loop provides a single goroutine task queue. Every mutation of
// dashboard view state happens inside a loop task, so tasks never race with
// each other and observe each other's effects in posting order.
package loop

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
)

// ErrStopped is returned by Call once the loop no longer accepts tasks.
var ErrStopped = errors.NewStd("event loop stopped")

// Task is a unit of work executed on the loop goroutine.
type Task func()

// Stats holds loop counters.
type Stats struct {
	Posted   uint64
	Executed uint64
	Panics   uint64
	Dropped  uint64 // tasks discarded because the loop stopped first
}

// Loop runs posted tasks one at a time in FIFO order. Post never blocks.
type Loop struct {
	mu      sync.Mutex
	queue   []Task
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	running  atomic.Bool

	stats Stats
	log   logger.Logger
}

// New creates a loop. Run must be called to start processing.
func New(log logger.Logger) *Loop {
	if log == nil {
		log = logger.Global().Module("loop")
	}
	return &Loop{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		log:  log,
	}
}

// Run processes tasks until ctx is done or Stop is called. Tasks still queued
// at that point are dropped. Run may only be called once.
func (l *Loop) Run(ctx context.Context) error {
	if l.running.Swap(true) {
		return fmt.Errorf("event loop already running")
	}
	defer close(l.done)

	l.log.Debug("Event loop started")
	for {
		if task, ok := l.next(); ok {
			l.execute(task)
			continue
		}

		select {
		case <-l.wake:
		case <-l.stop:
			l.shutdown()
			return nil
		case <-ctx.Done():
			l.shutdown()
			return nil
		}
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		if err := l.Run(ctx); err != nil {
			l.log.Warn("Event loop not started", logger.Error(err))
		}
	}()
}

func (l *Loop) next() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&l.stats.Panics, 1)
			l.log.Error("Event loop task panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
		}
	}()
	task()
	atomic.AddUint64(&l.stats.Executed, 1)
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.stopped = true
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	atomic.AddUint64(&l.stats.Dropped, uint64(dropped))
	l.log.Debug("Event loop stopped", logger.Int("dropped_tasks", dropped))
}

// Post enqueues task. It returns false if the loop has stopped.
func (l *Loop) Post(task Task) bool {
	if task == nil {
		return false
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		atomic.AddUint64(&l.stats.Dropped, 1)
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	atomic.AddUint64(&l.stats.Posted, 1)

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it to return. It must not be called
// from a loop task.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The task may have run just before the loop exited.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop asks Run to return. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Posted:   atomic.LoadUint64(&l.stats.Posted),
		Executed: atomic.LoadUint64(&l.stats.Executed),
		Panics:   atomic.LoadUint64(&l.stats.Panics),
		Dropped:  atomic.LoadUint64(&l.stats.Dropped),
	}
}
