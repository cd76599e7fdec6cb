// Package dashboard wires the event loop, view state store, API client and
// coordinators into a single headless dashboard. All exported methods are
// safe for concurrent use; they post work to the event loop.
package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/climagrid/internal/apiclient"
	"github.com/tphakala/climagrid/internal/catalog"
	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/loop"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/observability/metrics"
	"github.com/tphakala/climagrid/internal/observation"
	"github.com/tphakala/climagrid/internal/search"
	"github.com/tphakala/climagrid/internal/state"
	"github.com/tphakala/climagrid/internal/timeseries"
)

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.NewStd("dashboard already started")

// API is the remote surface the dashboard depends on. *apiclient.Client
// implements it.
type API interface {
	search.Geocoder
	timeseries.API
	observation.API
	catalog.API
}

// Option configures a Dashboard.
type Option func(*options)

type options struct {
	api     API
	log     logger.Logger
	metrics *metrics.ClientMetrics
	now     func() time.Time
}

// WithAPI replaces the HTTP client built from settings.
func WithAPI(api API) Option {
	return func(o *options) {
		o.api = api
	}
}

// WithLogger sets the parent logger; components log through sub-modules of it.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithMetrics records API and coordinator metrics.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides the clock used for observation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Dashboard is a running instance of the dashboard core.
type Dashboard struct {
	opts     options
	settings *conf.Settings
	log      logger.Logger

	loop      *loop.Loop
	store     *state.Store
	user      *state.UserWriter
	search    *search.Coordinator
	fetcher   *timeseries.Fetcher
	submitter *observation.Submitter
	catalog   *catalog.Loader

	client *apiclient.Client // owned client, nil when WithAPI was used

	started   atomic.Bool
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New builds a dashboard from settings. Nil settings means defaults. Nothing
// runs until Start.
func New(settings *conf.Settings, opts ...Option) (*Dashboard, error) {
	if settings == nil {
		settings = conf.Defaults()
	}

	d := &Dashboard{settings: settings}
	for _, opt := range opts {
		opt(&d.opts)
	}
	if d.opts.now == nil {
		d.opts.now = time.Now
	}
	d.log = d.moduleLogger("dashboard")

	api := d.opts.api
	if api == nil {
		client, err := apiclient.New(&settings.API,
			apiclient.WithLogger(d.moduleLogger("apiclient")),
			apiclient.WithMetrics(d.opts.metrics))
		if err != nil {
			return nil, err
		}
		d.client = client
		api = client
	}

	tz := settings.Location()
	initial := state.Initial(settings.View.DefaultMetric, settings.View.DefaultHours)
	initial.ObservationDraft.TimestampLocal = d.opts.now().In(tz).Format(state.DraftTimestampLayout)

	d.loop = loop.New(d.moduleLogger("loop"))
	d.store = state.NewStore(d.loop, initial, d.moduleLogger("state"))
	d.user = d.store.UserWriter()

	d.search = search.New(search.Deps{
		Scheduler: d.loop,
		Store:     d.store,
		User:      d.user,
		Results:   d.store.SearchWriter(),
		API:       api,
		Metrics:   d.opts.metrics,
		Logger:    d.moduleLogger("search"),
	}, search.Config{
		Debounce:    settings.Search.Debounce,
		MinLength:   settings.Search.MinLength,
		ResultCount: settings.Search.ResultCount,
	})

	d.fetcher = timeseries.New(timeseries.Deps{
		Scheduler: d.loop,
		Store:     d.store,
		Writer:    d.store.SeriesWriter(),
		API:       api,
		Metrics:   d.opts.metrics,
		Logger:    d.moduleLogger("timeseries"),
	})

	d.submitter = observation.New(observation.Deps{
		Scheduler: d.loop,
		Store:     d.store,
		Writer:    d.store.ObservationWriter(),
		API:       api,
		Metrics:   d.opts.metrics,
		Logger:    d.moduleLogger("observation"),
		Now:       d.opts.now,
		TimeZone:  tz,
	})

	d.catalog = catalog.New(catalog.Deps{
		Scheduler: d.loop,
		Writer:    d.store.CatalogWriter(),
		API:       api,
		Metrics:   d.opts.metrics,
		Logger:    d.moduleLogger("catalog"),
	})

	return d, nil
}

func (d *Dashboard) moduleLogger(name string) logger.Logger {
	if d.opts.log != nil {
		return d.opts.log.Module(name)
	}
	return logger.Global().Module(name)
}

// Start runs the event loop, attaches the coordinators and begins loading
// the metric catalog. All requests are bound to ctx; cancelling it has the
// same effect as Close without waiting.
func (d *Dashboard) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.loop.Start(runCtx)

	err := d.loop.Call(ctx, func() {
		d.search.Attach(runCtx)
		d.fetcher.Attach(runCtx)
		d.submitter.Attach(runCtx)
		d.catalog.Load(runCtx)
	})
	if err != nil {
		cancel()
		return errors.New(err).
			Component("dashboard").
			Category(errors.CategoryState).
			Context("operation", "start").
			Build()
	}

	d.log.Info("Dashboard started",
		logger.String("api", d.settings.API.BaseURL),
		logger.String("metric", d.settings.View.DefaultMetric),
		logger.Int("hours", d.settings.View.DefaultHours))
	return nil
}

// Close cancels all outstanding work and waits for the event loop to exit.
// It is safe to call more than once and before Start.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		if d.started.Load() {
			// Coordinators release their requests first so outcomes are recorded.
			if err := d.loop.Call(context.Background(), d.closeCoordinators); err != nil {
				d.log.Debug("Coordinators not closed on loop", logger.Error(err))
			}
			d.cancel()
			d.loop.Stop()
			<-d.loop.Done()
		}
		if d.client != nil {
			d.client.Close()
		}
		stats := d.loop.Stats()
		d.log.Info("Dashboard closed",
			logger.Uint64("tasks_executed", stats.Executed),
			logger.Uint64("tasks_dropped", stats.Dropped),
			logger.Uint64("task_panics", stats.Panics))
	})
}

func (d *Dashboard) closeCoordinators() {
	d.search.Close()
	d.fetcher.Close()
	d.submitter.Close()
	d.catalog.Close()
}

func (d *Dashboard) post(op string, task loop.Task) {
	if !d.loop.Post(task) {
		d.log.Debug("Dashboard stopped, dropping input", logger.String("operation", op))
	}
}

// SetSearchTerm updates the search box.
func (d *Dashboard) SetSearchTerm(term string) {
	d.post("set_search_term", func() { d.user.SetSearchTerm(term) })
}

// SelectLocation selects loc as if it had been picked from the results.
func (d *Dashboard) SelectLocation(loc model.Location) {
	d.post("select_location", func() { d.search.Select(loc) })
}

// SelectResult selects the search result at index and waits for the
// selection to apply.
func (d *Dashboard) SelectResult(ctx context.Context, index int) error {
	var selectErr error
	if err := d.loop.Call(ctx, func() { selectErr = d.search.SelectIndex(index) }); err != nil {
		return err
	}
	return selectErr
}

// SetMetric selects the displayed metric.
func (d *Dashboard) SetMetric(metric string) {
	d.post("set_metric", func() { d.user.SetMetric(metric) })
}

// SetHorizon sets the horizon in hours, clamped to the supported range.
func (d *Dashboard) SetHorizon(hours int) {
	d.post("set_horizon", func() { d.user.SetHorizon(hours) })
}

// SetHorizonInput applies free-form horizon input. Non-numeric input is
// ignored.
func (d *Dashboard) SetHorizonInput(input string) {
	d.post("set_horizon_input", func() { d.user.SetHorizonInput(input) })
}

// Refresh reloads the series with the current parameters.
func (d *Dashboard) Refresh() {
	d.post("refresh", d.fetcher.Reload)
}

// UpdateDraft edits the observation draft on the event loop. edit must not
// retain the pointer.
func (d *Dashboard) UpdateDraft(edit func(*state.ObservationDraft)) {
	d.post("update_draft", func() { d.user.EditDraft(edit) })
}

// SubmitObservation validates and submits the observation draft.
func (d *Dashboard) SubmitObservation() {
	d.post("submit_observation", d.submitter.Submit)
}

// Snapshot returns a deep copy of the current view state.
func (d *Dashboard) Snapshot(ctx context.Context) (state.ViewState, error) {
	var vs state.ViewState
	err := d.loop.Call(ctx, func() { vs = d.store.Snapshot() })
	return vs, err
}

// Subscribe calls fn on the event loop with a snapshot after every batch of
// view state changes. fn must not block. The returned function unsubscribes.
func (d *Dashboard) Subscribe(fn func(state.ViewState)) func() {
	var detach func()
	d.post("subscribe", func() {
		detach = d.store.Subscribe(func(state.Change) {
			fn(d.store.Snapshot())
		})
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.post("unsubscribe", func() {
				if detach != nil {
					detach()
					detach = nil
				}
			})
		})
	}
}

// Stats returns the event loop counters.
func (d *Dashboard) Stats() loop.Stats {
	return d.loop.Stats()
}
