package state

import (
	"slices"

	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/loop"
	"github.com/tphakala/climagrid/internal/model"
)

// Poster schedules tasks on the event loop.
type Poster interface {
	Post(task loop.Task) bool
}

// Listener is notified with the accumulated change bits.
type Listener func(Change)

type listenerEntry struct {
	id int
	fn Listener
}

// Store owns the ViewState. It is confined to the event loop: reads and
// writes must happen in loop tasks. Writers are claimed once each; claiming a
// writer twice panics.
type Store struct {
	poster Poster
	vs     ViewState
	log    logger.Logger

	pending   Change
	scheduled bool

	listeners []listenerEntry
	nextID    int

	claimed writerKind
}

// Initial returns the starting view state.
func Initial(metric string, hours int) ViewState {
	if metric == "" {
		metric = model.MetricTemperature
	}
	return ViewState{
		SelectedMetric:    metric,
		HorizonHours:      ClampHorizon(hours),
		ObservationStatus: IdleStatus,
		Catalog:           model.DefaultCatalog(),
	}
}

// NewStore creates a store holding initial.
func NewStore(poster Poster, initial ViewState, log logger.Logger) *Store {
	if log == nil {
		log = logger.Global().Module("state")
	}
	initial.HorizonHours = ClampHorizon(initial.HorizonHours)
	if initial.ObservationStatus.Tone == "" {
		initial.ObservationStatus = IdleStatus
	}
	return &Store{
		poster: poster,
		vs:     initial.Clone(),
		log:    log,
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		s.listeners = slices.DeleteFunc(s.listeners, func(e listenerEntry) bool { return e.id == id })
	}
}

// mark records changed fields and schedules one notification for all changes
// made before it runs.
func (s *Store) mark(c Change) {
	if c == 0 {
		return
	}
	s.pending |= c
	if s.scheduled {
		return
	}
	s.scheduled = true
	if !s.poster.Post(s.flush) {
		s.log.Debug("Change notification dropped, loop stopped", logger.String("change", c.String()))
	}
}

func (s *Store) flush() {
	change := s.pending
	s.pending = 0
	s.scheduled = false
	if change == 0 {
		return
	}

	s.log.Trace("Dispatching view state change", logger.String("change", change.String()))
	for _, l := range slices.Clone(s.listeners) {
		l.fn(change)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() ViewState {
	return s.vs.Clone()
}

// Read accessors. Slices and pointers returned are copies.

func (s *Store) SearchTerm() string { return s.vs.SearchTerm }

func (s *Store) SearchResults() []model.Location { return slices.Clone(s.vs.SearchResults) }

func (s *Store) Searching() bool { return s.vs.Searching }

func (s *Store) SelectedLocation() *model.Location {
	if s.vs.SelectedLocation == nil {
		return nil
	}
	loc := *s.vs.SelectedLocation
	return &loc
}

func (s *Store) SelectedMetric() string { return s.vs.SelectedMetric }

func (s *Store) HorizonHours() int { return s.vs.HorizonHours }

func (s *Store) RefreshCounter() uint64 { return s.vs.RefreshCounter }

func (s *Store) Series() *model.Series { return s.vs.Series.Clone() }

func (s *Store) Loading() bool { return s.vs.Loading }

func (s *Store) ErrorMessage() string { return s.vs.ErrorMessage }

func (s *Store) Draft() ObservationDraft { return s.vs.ObservationDraft }

func (s *Store) ObservationStatus() ObservationStatus { return s.vs.ObservationStatus }

func (s *Store) Submitting() bool { return s.vs.Submitting }

func (s *Store) Catalog() model.MetricCatalog { return s.vs.Catalog.Clone() }

func (s *Store) claim(kind writerKind) {
	if s.claimed&kind != 0 {
		panic("state: " + kind.String() + " writer claimed twice")
	}
	s.claimed |= kind
}
