package abortable

import (
	"github.com/tphakala/climagrid/internal/loop"
	"github.com/tphakala/climagrid/internal/observability/metrics"
)

// Phase is the state of a Slot's current generation.
type Phase int

const (
	// Idle means nothing is outstanding.
	Idle Phase = iota
	// Pending means a debounce timer is waiting to issue the request.
	Pending
	// InFlight means a request is outstanding.
	InFlight
	// Settled means the current generation completed.
	Settled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// Slot tracks the current generation of one coordinator and its outstanding
// work. Completions compare their generation against the slot before touching
// shared state. A Slot is confined to the event loop and is not safe for
// concurrent use.
type Slot struct {
	name    string
	gen     uint64
	phase   Phase
	timer   *loop.Timer
	handle  *Handle
	metrics *metrics.ClientMetrics
}

// NewSlot creates a slot. name is the coordinator label used in metrics.
func NewSlot(name string, m *metrics.ClientMetrics) *Slot {
	return &Slot{name: name, metrics: m}
}

// Supersede stops outstanding work, starts a new generation and returns it.
func (s *Slot) Supersede() uint64 {
	s.release(metrics.OutcomeSuperseded)
	s.gen++
	s.phase = Idle
	return s.gen
}

// Abort stops outstanding work and invalidates the current generation
// without starting a new one.
func (s *Slot) Abort() {
	s.release(metrics.OutcomeAborted)
	s.gen++
	s.phase = Idle
}

func (s *Slot) release(outcome string) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.handle != nil {
		s.handle.Cancel()
		s.handle = nil
		s.metrics.RecordCoordinatorOutcome(s.name, outcome)
	}
}

// Pend registers a debounce timer for gen. A stale timer is stopped.
func (s *Slot) Pend(gen uint64, timer *loop.Timer) bool {
	if gen != s.gen {
		timer.Stop()
		return false
	}
	if s.timer != nil && s.timer != timer {
		s.timer.Stop()
	}
	s.timer = timer
	s.phase = Pending
	return true
}

// Fly registers the in-flight request for gen. A stale handle is cancelled.
func (s *Slot) Fly(gen uint64, h *Handle) bool {
	if gen != s.gen {
		h.Cancel()
		return false
	}
	s.timer = nil
	s.handle = h
	s.phase = InFlight
	return true
}

// Current reports whether gen is the latest generation.
func (s *Slot) Current(gen uint64) bool {
	return gen == s.gen
}

// Settle marks gen as completed with outcome if it is still current.
func (s *Slot) Settle(gen uint64, outcome string) bool {
	if gen != s.gen {
		return false
	}
	s.timer = nil
	s.handle = nil
	s.phase = Settled
	s.metrics.RecordCoordinatorOutcome(s.name, outcome)
	return true
}

// Phase returns the phase of the current generation.
func (s *Slot) Phase() Phase {
	return s.phase
}

// Generation returns the current generation.
func (s *Slot) Generation() uint64 {
	return s.gen
}

// Handle returns the in-flight request handle, if any.
func (s *Slot) Handle() *Handle {
	return s.handle
}
