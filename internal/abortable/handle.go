// Package abortable runs cancellable requests whose completions are delivered
// on the event loop, and tracks which request generation is current.
package abortable

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/loop"
)

// Poster schedules tasks on the event loop.
type Poster interface {
	Post(task loop.Task) bool
}

// Handle controls one in-flight request.
type Handle struct {
	id        string
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

// Start runs fn on its own goroutine with a context derived from parent.
// When fn returns, complete is posted to the loop; it runs only if the handle
// was not cancelled before the completion task executes.
func Start[T any](parent context.Context, poster Poster, fn func(ctx context.Context) (T, error), complete func(T, error)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		result, err := fn(ctx)
		close(h.done)
		if !poster.Post(func() {
			defer cancel()
			if h.cancelled.Load() {
				return
			}
			complete(result, err)
		}) {
			cancel()
		}
	}()

	return h
}

// Cancel aborts the request and voids its completion. Idempotent.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancelled.Store(true)
	h.cancel()
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	return h != nil && h.cancelled.Load()
}

// Done is closed once fn has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ID is a correlation identifier for logging.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// IsAbort reports whether err is the result of a cancelled request.
func IsAbort(err error) bool {
	return errors.IsCancellation(err)
}
