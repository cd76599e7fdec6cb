// Package search turns search term edits into debounced geocode queries.
// At most one query is outstanding; every edit supersedes the previous one.
package search

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tphakala/climagrid/internal/abortable"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/loop"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/observability/metrics"
	"github.com/tphakala/climagrid/internal/state"
)

// Defaults used when Config fields are zero.
const (
	DefaultDebounce    = 400 * time.Millisecond
	DefaultMinLength   = 3
	DefaultResultCount = 8
)

// Geocoder resolves place names.
type Geocoder interface {
	Geocode(ctx context.Context, query string, count int) ([]model.Location, error)
}

// Scheduler runs tasks and timers on the event loop.
type Scheduler interface {
	Post(task loop.Task) bool
	AfterFunc(d time.Duration, fn func()) *loop.Timer
}

// Config tunes the coordinator.
type Config struct {
	Debounce    time.Duration
	MinLength   int // minimum trimmed length in characters
	ResultCount int
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	if c.ResultCount <= 0 {
		c.ResultCount = DefaultResultCount
	}
	return c
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Scheduler Scheduler
	Store     *state.Store
	User      *state.UserWriter // used by Select on the user's behalf
	Results   *state.SearchWriter
	API       Geocoder
	Metrics   *metrics.ClientMetrics
	Logger    logger.Logger
}

// Coordinator owns searchResults and searching. All methods must be called
// on the event loop.
type Coordinator struct {
	deps   Deps
	cfg    Config
	slot   *abortable.Slot
	log    logger.Logger
	ctx    context.Context
	detach func()
}

// New creates a search coordinator.
func New(deps Deps, cfg Config) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = logger.Global().Module("search")
	}
	return &Coordinator{
		deps: deps,
		cfg:  cfg.withDefaults(),
		slot: abortable.NewSlot(metrics.CoordinatorSearch, deps.Metrics),
		log:  log,
		ctx:  context.Background(),
	}
}

// Attach subscribes to view state changes. Requests are bound to ctx.
func (c *Coordinator) Attach(ctx context.Context) {
	c.ctx = ctx
	c.detach = c.deps.Store.Subscribe(c.onChange)
}

// Close cancels outstanding work and stops listening for changes.
func (c *Coordinator) Close() {
	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
	c.slot.Abort()
}

func (c *Coordinator) onChange(change state.Change) {
	switch {
	case change.Has(state.ChangeSearchTerm):
		c.evaluate()
	case change.Has(state.ChangeSelectedLocation):
		if c.suppressed(c.deps.Store.SearchTerm()) {
			c.reset()
		}
	}
}

func (c *Coordinator) evaluate() {
	term := c.deps.Store.SearchTerm()

	if utf8.RuneCountInString(strings.TrimSpace(term)) < c.cfg.MinLength {
		c.reset()
		return
	}
	if c.suppressed(term) {
		c.reset()
		return
	}

	if c.slot.Phase() == abortable.Pending {
		c.deps.Metrics.RecordDebounceReset()
	}
	gen := c.slot.Supersede()
	c.deps.Results.SetSearching(false)
	timer := c.deps.Scheduler.AfterFunc(c.cfg.Debounce, func() { c.issue(gen, term) })
	c.slot.Pend(gen, timer)
}

// suppressed reports whether term is the display name of the selected location.
func (c *Coordinator) suppressed(term string) bool {
	selected := c.deps.Store.SelectedLocation()
	if selected == nil {
		return false
	}
	return model.NormalizeName(term) == model.NormalizeName(selected.DisplayName())
}

// reset cancels pending work and clears the results.
func (c *Coordinator) reset() {
	c.slot.Supersede()
	c.deps.Results.ClearResults()
	c.deps.Results.SetSearching(false)
}

func (c *Coordinator) issue(gen uint64, term string) {
	if !c.slot.Current(gen) {
		return
	}

	c.deps.Results.SetSearching(true)
	count := c.cfg.ResultCount
	h := abortable.Start(c.ctx, c.deps.Scheduler,
		func(ctx context.Context) ([]model.Location, error) {
			return c.deps.API.Geocode(ctx, term, count)
		},
		func(locations []model.Location, err error) {
			c.complete(gen, term, locations, err)
		})
	c.slot.Fly(gen, h)
	c.log.Debug("Geocode query issued", logger.String("query", term), logger.String("request", h.ID()))
}

func (c *Coordinator) complete(gen uint64, term string, locations []model.Location, err error) {
	if !c.slot.Current(gen) {
		return
	}
	c.deps.Results.SetSearching(false)

	if err != nil {
		if abortable.IsAbort(err) {
			c.slot.Settle(gen, metrics.OutcomeAborted)
			return
		}
		c.log.Warn("Place search failed", logger.String("query", term), logger.Error(err))
		c.deps.Results.ClearResults()
		c.slot.Settle(gen, metrics.OutcomeFailed)
		return
	}

	c.deps.Results.SetResults(Dedupe(locations))
	c.slot.Settle(gen, metrics.OutcomeCommitted)
}

// Select makes loc the selected location, cancels any pending search, and
// shows its display name in the search box.
func (c *Coordinator) Select(loc model.Location) {
	c.slot.Supersede()
	c.deps.User.SelectLocation(&loc)
	c.deps.User.SetSearchTerm(loc.DisplayName())
	c.deps.Results.ClearResults()
	c.deps.Results.SetSearching(false)
}

// SelectIndex selects the result at index i.
func (c *Coordinator) SelectIndex(i int) error {
	results := c.deps.Store.SearchResults()
	if i < 0 || i >= len(results) {
		return errors.Newf("search result %d out of range (have %d)", i, len(results)).
			Component("search").
			Category(errors.CategoryValidation).
			Context("index", i).
			Build()
	}
	c.Select(results[i])
	return nil
}

// Phase returns the phase of the current search generation.
func (c *Coordinator) Phase() abortable.Phase {
	return c.slot.Phase()
}

// Dedupe drops locations whose normalized display name repeats an earlier one.
func Dedupe(locations []model.Location) []model.Location {
	seen := make(map[string]struct{}, len(locations))
	out := make([]model.Location, 0, len(locations))
	for _, loc := range locations {
		key := model.NormalizeName(loc.DisplayName())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, loc)
	}
	return out
}
