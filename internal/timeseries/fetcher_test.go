package timeseries

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/climagrid/internal/apiclient"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/loop"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/state"
)

type seriesReply struct {
	series *model.Series
	err    error
}

type seriesCall struct {
	ctx   context.Context
	query model.TimeseriesQuery
	reply chan seriesReply
}

// fakeAPI blocks each call until the test replies, so completion order is
// controlled by the test.
type fakeAPI struct {
	mu           sync.Mutex
	calls        []*seriesCall
	ignoreCancel bool
}

func (f *fakeAPI) Timeseries(ctx context.Context, q model.TimeseriesQuery) (*model.Series, error) {
	call := &seriesCall{ctx: ctx, query: q, reply: make(chan seriesReply, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.ignoreCancel {
		r := <-call.reply
		return r.series, r.err
	}
	select {
	case r := <-call.reply:
		return r.series, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeAPI) Calls() []*seriesCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*seriesCall(nil), f.calls...)
}

type harness struct {
	t       *testing.T
	loop    *loop.Loop
	store   *state.Store
	user    *state.UserWriter
	obs     *state.ObservationWriter
	fetcher *Fetcher
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()

	l := loop.New(logger.NewDiscardLogger())
	l.Start(t.Context())
	t.Cleanup(func() {
		l.Stop()
		<-l.Done()
	})

	h := &harness{t: t, loop: l}
	h.do(func() {
		h.store = state.NewStore(l, state.Initial(model.MetricTemperature, 24), logger.NewDiscardLogger())
		h.user = h.store.UserWriter()
		h.obs = h.store.ObservationWriter()
		h.fetcher = New(Deps{
			Scheduler: l,
			Store:     h.store,
			Writer:    h.store.SeriesWriter(),
			API:       api,
			Logger:    logger.NewDiscardLogger(),
		})
		h.fetcher.Attach(t.Context())
	})
	return h
}

func (h *harness) do(fn func()) {
	h.t.Helper()
	require.NoError(h.t, h.loop.Call(h.t.Context(), fn))
}

func (h *harness) settle() state.ViewState {
	h.t.Helper()
	synctest.Wait()
	var vs state.ViewState
	h.do(func() {})
	h.do(func() { vs = h.store.Snapshot() })
	return vs
}

var london = model.Location{Name: "London", Admin1: "England", Country: "United Kingdom", Latitude: 51.51, Longitude: -0.13}

func hourlySeries(metric string, hours int) *model.Series {
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	s := &model.Series{Metric: metric, HoursRequested: hours}
	for i := range hours {
		s.Points = append(s.Points, model.TimeseriesPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: float64(i)})
	}
	return s
}

func TestIdleWithoutLocation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() {
			h.user.SetMetric(model.MetricHumidity)
			h.user.SetHorizon(48)
			h.obs.BumpRefresh()
		})
		vs := h.settle()

		assert.Empty(t, api.Calls())
		assert.False(t, vs.Loading)
		assert.Nil(t, vs.Series)
	})
}

func TestFetchForSelection(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() { h.user.SelectLocation(&london) })
		vs := h.settle()
		assert.True(t, vs.Loading)

		calls := api.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, model.TimeseriesQuery{
			Metric:                  model.MetricTemperature,
			Latitude:                51.51,
			Longitude:               -0.13,
			Hours:                   24,
			IncludeUserObservations: true,
		}, calls[0].query)

		calls[0].reply <- seriesReply{series: hourlySeries(model.MetricTemperature, 24)}
		vs = h.settle()
		assert.False(t, vs.Loading)
		require.NotNil(t, vs.Series)
		assert.Len(t, vs.Series.Points, 24)
		assert.Empty(t, vs.ErrorMessage)
	})
}

func TestCoalescedTriggersIssueOneRequest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() {
			h.user.SelectLocation(&london)
			h.user.SetMetric(model.MetricPrecipitation)
			h.user.SetHorizon(72)
		})
		h.settle()

		calls := api.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, model.MetricPrecipitation, calls[0].query.Metric)
		assert.Equal(t, 72, calls[0].query.Hours)
		calls[0].reply <- seriesReply{series: hourlySeries(model.MetricPrecipitation, 72)}
		h.settle()
	})
}

func TestOutOfOrderCompletionKeepsLatest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{ignoreCancel: true}
		h := newHarness(t, api)

		h.do(func() { h.user.SelectLocation(&london) })
		h.settle()
		h.do(func() { h.user.SetMetric(model.MetricHumidity) })
		h.settle()

		calls := api.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, model.MetricTemperature, calls[0].query.Metric)
		assert.Equal(t, model.MetricHumidity, calls[1].query.Metric)

		calls[1].reply <- seriesReply{series: hourlySeries(model.MetricHumidity, 24)}
		h.settle()
		calls[0].reply <- seriesReply{series: hourlySeries(model.MetricTemperature, 24)}
		vs := h.settle()

		require.NotNil(t, vs.Series)
		assert.Equal(t, model.MetricHumidity, vs.Series.Metric)
		assert.False(t, vs.Loading)

		// A stale failure arriving last is ignored as well.
		h.do(func() { h.user.SetHorizon(12) })
		h.settle()
		h.do(func() { h.user.SetHorizon(6) })
		h.settle()
		calls = api.Calls()
		require.Len(t, calls, 4)
		calls[3].reply <- seriesReply{series: hourlySeries(model.MetricHumidity, 6)}
		h.settle()
		calls[2].reply <- seriesReply{err: &apiclient.StatusError{Status: http.StatusBadGateway}}
		vs = h.settle()

		assert.Empty(t, vs.ErrorMessage)
		assert.Len(t, vs.Series.Points, 6)
	})
}

func TestSupersededRequestIsCancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() { h.user.SelectLocation(&london) })
		h.settle()
		first := api.Calls()[0]

		h.do(func() { h.user.SetHorizon(48) })
		vs := h.settle()

		assert.ErrorIs(t, first.ctx.Err(), context.Canceled)
		assert.True(t, vs.Loading, "the replacement request keeps loading on")
		assert.Empty(t, vs.ErrorMessage, "aborts never surface as errors")

		api.Calls()[1].reply <- seriesReply{series: hourlySeries(model.MetricTemperature, 48)}
		vs = h.settle()
		assert.Len(t, vs.Series.Points, 48)
	})
}

func TestReplyQueuedBehindSelectionChangeIsDropped(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() { h.user.SelectLocation(&london) })
		h.settle()
		first := api.Calls()[0]

		// Hold the loop so the new selection and the old reply queue up in
		// that order, ahead of the selection's change notification.
		gate := make(chan struct{})
		require.True(t, h.loop.Post(func() { <-gate }))
		paris := model.Location{Name: "Paris", Country: "France", Latitude: 48.86, Longitude: 2.35}
		require.True(t, h.loop.Post(func() { h.user.SelectLocation(&paris) }))
		first.reply <- seriesReply{series: hourlySeries(model.MetricTemperature, 24)}
		synctest.Wait()
		close(gate)
		vs := h.settle()

		assert.Nil(t, vs.Series, "the london reply must not land under paris")
		assert.True(t, vs.Loading)

		calls := api.Calls()
		require.Len(t, calls, 2)
		assert.InDelta(t, 48.86, calls[1].query.Latitude, 1e-9)

		calls[1].reply <- seriesReply{series: hourlySeries(model.MetricTemperature, 24)}
		vs = h.settle()
		require.NotNil(t, vs.Series)
		assert.False(t, vs.Loading)
	})
}

func TestFailureKeepsPreviousSeries(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server detail", errors.New(&apiclient.StatusError{Status: 422, Detail: "hours must be <= 168"}).Build(), "hours must be <= 168"},
		{"status only", &apiclient.StatusError{Status: 502}, "Request failed (502)"},
		{"network", fmt.Errorf("Get \"http://localhost:8000/timeseries\": dial tcp: connection refused"),
			"Get \"http://localhost:8000/timeseries\": dial tcp: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				api := &fakeAPI{}
				h := newHarness(t, api)

				h.do(func() { h.user.SelectLocation(&london) })
				h.settle()
				api.Calls()[0].reply <- seriesReply{series: hourlySeries(model.MetricTemperature, 24)}
				h.settle()

				h.do(func() { h.obs.BumpRefresh() })
				vs := h.settle()
				assert.True(t, vs.Loading)
				require.Len(t, api.Calls(), 2)

				api.Calls()[1].reply <- seriesReply{err: tt.err}
				vs = h.settle()
				assert.Equal(t, tt.want, vs.ErrorMessage)
				assert.False(t, vs.Loading)
				require.NotNil(t, vs.Series)
				assert.Len(t, vs.Series.Points, 24)

				// The next trigger clears the error while loading.
				h.do(func() { h.fetcher.Reload() })
				vs = h.settle()
				assert.Empty(t, vs.ErrorMessage)
				assert.True(t, vs.Loading)
				api.Calls()[2].reply <- seriesReply{series: hourlySeries(model.MetricTemperature, 24)}
				h.settle()
			})
		})
	}
}

func TestAbortedByParentLeavesSeriesAndError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() { h.user.SelectLocation(&london) })
		h.settle()
		api.Calls()[0].reply <- seriesReply{err: context.Canceled}
		vs := h.settle()

		assert.Empty(t, vs.ErrorMessage)
		assert.Nil(t, vs.Series)
		assert.False(t, vs.Loading)
	})
}

func TestCloseCancelsInFlight(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() { h.user.SelectLocation(&london) })
		h.settle()
		h.do(h.fetcher.Close)
		h.settle()
		assert.ErrorIs(t, api.Calls()[0].ctx.Err(), context.Canceled)

		h.do(func() { h.user.SetMetric(model.MetricHumidity) })
		h.settle()
		assert.Len(t, api.Calls(), 1, "closed fetcher ignores triggers")
	})
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Unknown metric", ErrorMessage(&apiclient.StatusError{Status: 404, Detail: "Unknown metric"}))
	assert.Equal(t, "Request failed (500)", ErrorMessage(fmt.Errorf("wrapped: %w", &apiclient.StatusError{Status: 500})))
	assert.Equal(t, "i/o timeout", ErrorMessage(errors.NewStd("i/o timeout")))
}
