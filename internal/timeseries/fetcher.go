// Package timeseries keeps the displayed forecast series in step with the
// selected location, metric and horizon.
package timeseries

import (
	"context"
	"fmt"

	"github.com/tphakala/climagrid/internal/abortable"
	"github.com/tphakala/climagrid/internal/apiclient"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/observability/metrics"
	"github.com/tphakala/climagrid/internal/state"
)

// API fetches forecast series.
type API interface {
	Timeseries(ctx context.Context, q model.TimeseriesQuery) (*model.Series, error)
}

// Deps are the collaborators of a Fetcher.
type Deps struct {
	Scheduler abortable.Poster
	Store     *state.Store
	Writer    *state.SeriesWriter
	API       API
	Metrics   *metrics.ClientMetrics
	Logger    logger.Logger
}

// Fetcher owns series, loading and errorMessage. Every change to the
// selected location, metric, horizon or refresh counter issues a new request
// and voids the previous one. All methods must be called on the event loop.
type Fetcher struct {
	deps   Deps
	slot   *abortable.Slot
	log    logger.Logger
	ctx    context.Context
	detach func()
}

// New creates a fetcher.
func New(deps Deps) *Fetcher {
	log := deps.Logger
	if log == nil {
		log = logger.Global().Module("timeseries")
	}
	return &Fetcher{
		deps: deps,
		slot: abortable.NewSlot(metrics.CoordinatorTimeseries, deps.Metrics),
		log:  log,
		ctx:  context.Background(),
	}
}

// Attach subscribes to view state changes and fetches for the current
// selection. Requests are bound to ctx.
func (f *Fetcher) Attach(ctx context.Context) {
	f.ctx = ctx
	f.detach = f.deps.Store.Subscribe(func(change state.Change) {
		if change.Has(state.ChangeSeriesTriggers) {
			f.fetch()
		}
	})
	f.fetch()
}

// Close cancels the outstanding request and stops listening for changes.
func (f *Fetcher) Close() {
	if f.detach != nil {
		f.detach()
		f.detach = nil
	}
	f.slot.Abort()
}

// Reload fetches again with the current parameters.
func (f *Fetcher) Reload() {
	f.fetch()
}

// Phase returns the phase of the current request generation.
func (f *Fetcher) Phase() abortable.Phase {
	return f.slot.Phase()
}

// binding is the view state a request was issued for.
type binding struct {
	location string
	metric   string
	hours    int
	refresh  uint64
}

func (f *Fetcher) bound() binding {
	b := binding{
		metric:  f.deps.Store.SelectedMetric(),
		hours:   f.deps.Store.HorizonHours(),
		refresh: f.deps.Store.RefreshCounter(),
	}
	if loc := f.deps.Store.SelectedLocation(); loc != nil {
		b.location = loc.Key()
	}
	return b
}

func (f *Fetcher) fetch() {
	gen := f.slot.Supersede()
	b := f.bound()

	loc := f.deps.Store.SelectedLocation()
	if loc == nil {
		f.deps.Writer.StopLoading()
		return
	}

	q := model.TimeseriesQuery{
		Metric:                  f.deps.Store.SelectedMetric(),
		Latitude:                loc.Latitude,
		Longitude:               loc.Longitude,
		Hours:                   f.deps.Store.HorizonHours(),
		IncludeUserObservations: true,
	}

	f.deps.Writer.Begin()
	h := abortable.Start(f.ctx, f.deps.Scheduler,
		func(ctx context.Context) (*model.Series, error) {
			return f.deps.API.Timeseries(ctx, q)
		},
		func(series *model.Series, err error) {
			f.complete(gen, b, q, series, err)
		})
	f.slot.Fly(gen, h)

	f.log.Debug("Timeseries requested",
		logger.String("metric", q.Metric),
		logger.String("location", loc.Key()),
		logger.Int("hours", q.Hours),
		logger.String("request", h.ID()))
}

func (f *Fetcher) complete(gen uint64, b binding, q model.TimeseriesQuery, series *model.Series, err error) {
	if !f.slot.Current(gen) {
		return
	}
	// A trigger written since the request was issued has its change
	// notification still queued; that notification supersedes gen.
	if f.bound() != b {
		f.log.Debug("Timeseries reply dropped, selection changed", logger.Int("hours", q.Hours))
		return
	}

	if err != nil {
		if abortable.IsAbort(err) {
			f.deps.Writer.StopLoading()
			f.slot.Settle(gen, metrics.OutcomeAborted)
			return
		}
		f.log.Warn("Timeseries request failed",
			logger.String("metric", q.Metric),
			logger.Int("hours", q.Hours),
			logger.Error(err))
		f.deps.Writer.Fail(ErrorMessage(err))
		f.slot.Settle(gen, metrics.OutcomeFailed)
		return
	}

	if series == nil {
		series = &model.Series{Metric: q.Metric}
	}
	f.deps.Writer.Commit(series)
	f.slot.Settle(gen, metrics.OutcomeCommitted)
}

// ErrorMessage renders a failed request for the user: the server's detail
// when present, otherwise the HTTP status, otherwise the error text.
func ErrorMessage(err error) string {
	if statusErr, ok := apiclient.AsStatusError(err); ok {
		if statusErr.Detail != "" {
			return statusErr.Detail
		}
		return fmt.Sprintf("Request failed (%d)", statusErr.Status)
	}
	return err.Error()
}
