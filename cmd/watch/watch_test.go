package watch

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/dashboard"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/state"
)

var london = model.Location{Name: "London", Admin1: "England", Country: "United Kingdom", Latitude: 51.51, Longitude: -0.13}

type fakeAPI struct {
	places []model.Location

	mu     sync.Mutex
	series int
}

func (f *fakeAPI) MetricCatalog(context.Context) ([]byte, error) {
	return nil, errors.NewStd("catalog unavailable")
}

func (f *fakeAPI) Geocode(context.Context, string, int) ([]model.Location, error) {
	return f.places, nil
}

func (f *fakeAPI) Timeseries(_ context.Context, q model.TimeseriesQuery) (*model.Series, error) {
	f.mu.Lock()
	f.series++
	f.mu.Unlock()

	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	s := &model.Series{Metric: q.Metric, HoursRequested: q.Hours}
	for i := range q.Hours {
		s.Points = append(s.Points, model.TimeseriesPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: float64(i % 7)})
	}
	return s, nil
}

func (f *fakeAPI) SubmitObservation(context.Context, model.NewObservation) (*model.Observation, error) {
	return nil, errors.NewStd("not used")
}

func (f *fakeAPI) seriesCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.series
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newDashboard(t *testing.T, api *fakeAPI) *dashboard.Dashboard {
	t.Helper()
	d, err := dashboard.New(conf.Defaults(),
		dashboard.WithAPI(api),
		dashboard.WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestDrivePrintsSeries(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{places: []model.Location{london}}
		d := newDashboard(t, api)
		out := &syncBuffer{}

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() {
			done <- Drive(ctx, d, &Options{Query: "London", Metric: model.MetricHumidity, Hours: 6, Interval: time.Minute}, out, logger.NewDiscardLogger())
		}()

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t,
			"London, England, United Kingdom | Relative Humidity (%) | 6h | 6 points | min 0.0 max 5.0 | last 5.0 at 2026-10-19T05:00:00Z\n",
			out.String())
		assert.Equal(t, 1, api.seriesCalls())

		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, 2, api.seriesCalls(), "interval reloads the series")
		assert.Equal(t, 1, bytes.Count([]byte(out.String()), []byte("\n")), "unchanged series are not printed again")

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestDriveGivesUpWithoutResults(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d := newDashboard(t, &fakeAPI{})

		err := Drive(t.Context(), d, &Options{Query: "Atlantis"}, &syncBuffer{}, logger.NewDiscardLogger())
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	vs := state.Initial(model.MetricTemperature, 3)
	assert.Empty(t, Summarize(&vs), "nothing selected")

	vs.SelectedLocation = &london
	vs.Series = &model.Series{
		Points: []model.TimeseriesPoint{
			{Timestamp: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC), Value: 11.5},
			{Timestamp: time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC), Value: 9.3},
			{Timestamp: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC), Value: 12},
		},
		UserObservations: []model.Observation{{ID: "a"}, {ID: "b"}},
	}
	assert.Equal(t,
		"London, England, United Kingdom | Air Temperature (°C) | 3h | 3 points | min 9.3 max 12.0 | last 12.0 at 2026-10-19T12:00:00Z | 2 community observations",
		Summarize(&vs))

	vs.Loading = true
	assert.Empty(t, Summarize(&vs))
}
