package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/loop"
	"github.com/tphakala/climagrid/internal/model"
)

// manualPoster queues tasks until the test drains them.
type manualPoster struct {
	tasks []loop.Task
}

func (p *manualPoster) Post(task loop.Task) bool {
	p.tasks = append(p.tasks, task)
	return true
}

func (p *manualPoster) drain() {
	for len(p.tasks) > 0 {
		task := p.tasks[0]
		p.tasks = p.tasks[1:]
		task()
	}
}

func newTestStore(t *testing.T) (*Store, *manualPoster) {
	t.Helper()
	p := &manualPoster{}
	return NewStore(p, Initial(model.MetricTemperature, 24), logger.NewDiscardLogger()), p
}

var london = model.Location{Name: "London", Admin1: "England", Country: "United Kingdom", Latitude: 51.51, Longitude: -0.13}

func TestClampHorizon(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, ClampHorizon(0))
	assert.Equal(t, 1, ClampHorizon(-10))
	assert.Equal(t, 24, ClampHorizon(24))
	assert.Equal(t, 168, ClampHorizon(500))
}

func TestParseHorizon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  int
	}{
		{"0", 1},
		{"500", 168},
		{"abc", 24},
		{"", 24},
		{" 48 ", 48},
		{"12.4", 12},
		{"-3", 1},
		{"NaN", 24},
		{"Inf", 24},
		{"1e9", 168},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseHorizon(tt.input, 24), "input %q", tt.input)
	}
}

func TestInitialState(t *testing.T) {
	t.Parallel()

	vs := Initial("", 0)
	assert.Equal(t, model.MetricTemperature, vs.SelectedMetric)
	assert.Equal(t, 1, vs.HorizonHours)
	assert.Equal(t, IdleStatus, vs.ObservationStatus)
	assert.Len(t, vs.Catalog, 4)
	assert.Nil(t, vs.SelectedLocation)
	assert.Nil(t, vs.Series)
}

func TestNotificationsAreDeferredAndCoalesced(t *testing.T) {
	t.Parallel()

	s, p := newTestStore(t)
	user := s.UserWriter()

	var got []Change
	s.Subscribe(func(c Change) { got = append(got, c) })

	user.SelectLocation(&london)
	user.SetMetric(model.MetricHumidity)
	user.SetHorizon(48)
	assert.Empty(t, got, "listeners must not run inside the writing task")

	p.drain()
	require.Len(t, got, 1)
	assert.Equal(t, ChangeSelectedLocation|ChangeSelectedMetric|ChangeHorizon, got[0])
	assert.True(t, got[0].Has(ChangeSeriesTriggers))
}

func TestNoOpWritesDoNotNotify(t *testing.T) {
	t.Parallel()

	s, p := newTestStore(t)
	user := s.UserWriter()
	series := s.SeriesWriter()
	search := s.SearchWriter()

	notified := 0
	s.Subscribe(func(Change) { notified++ })

	user.SetMetric(model.MetricTemperature)
	user.SetHorizon(24)
	user.SetHorizonInput("abc")
	user.SetSearchTerm("")
	user.SelectLocation(nil)
	user.EditDraft(func(*ObservationDraft) {})
	series.StopLoading()
	search.ClearResults()
	search.SetSearching(false)
	p.drain()

	assert.Zero(t, notified)
}

func TestListenerWritesAreDeliveredLater(t *testing.T) {
	t.Parallel()

	s, p := newTestStore(t)
	user := s.UserWriter()
	series := s.SeriesWriter()

	var got []Change
	s.Subscribe(func(c Change) {
		got = append(got, c)
		if c.Has(ChangeSelectedLocation) {
			series.Begin()
		}
	})

	user.SelectLocation(&london)
	p.drain()

	assert.Equal(t, []Change{ChangeSelectedLocation, ChangeLoading}, got)
	assert.True(t, s.Loading())
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	s, p := newTestStore(t)
	user := s.UserWriter()

	first, second := 0, 0
	unsubscribe := s.Subscribe(func(Change) { first++ })
	s.Subscribe(func(Change) { second++ })

	user.SetSearchTerm("Lon")
	p.drain()
	unsubscribe()
	user.SetSearchTerm("Lond")
	p.drain()

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestWritersCanOnlyBeClaimedOnce(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	s.UserWriter()
	s.SearchWriter()
	s.SeriesWriter()
	s.ObservationWriter()
	s.CatalogWriter()

	assert.PanicsWithValue(t, "state: series writer claimed twice", func() { s.SeriesWriter() })
	assert.Panics(t, func() { s.UserWriter() })
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	s.UserWriter().SelectLocation(&london)
	s.SearchWriter().SetResults([]model.Location{london})
	s.SeriesWriter().Commit(&model.Series{Metric: "temperature", Points: []model.TimeseriesPoint{{Value: 1}}})

	snap := s.Snapshot()
	snap.SelectedLocation.Name = "Paris"
	snap.SearchResults[0].Name = "Paris"
	snap.Series.Points[0].Value = 99
	snap.Catalog["temperature"] = model.MetricDescriptor{Key: "temperature", Label: "changed"}

	assert.Equal(t, "London", s.SelectedLocation().Name)
	assert.Equal(t, "London", s.SearchResults()[0].Name)
	assert.InDelta(t, 1, s.Series().Points[0].Value, 0)
	assert.Equal(t, "Air Temperature", s.Catalog()["temperature"].Label)
}

func TestSeriesWriterLifecycle(t *testing.T) {
	t.Parallel()

	s, p := newTestStore(t)
	w := s.SeriesWriter()

	w.Begin()
	assert.True(t, s.Loading())
	w.Commit(&model.Series{Metric: "temperature"})
	assert.False(t, s.Loading())
	require.NotNil(t, s.Series())

	w.Begin()
	w.Fail("Request failed (502)")
	assert.False(t, s.Loading())
	assert.Equal(t, "Request failed (502)", s.ErrorMessage())
	assert.NotNil(t, s.Series(), "failure keeps the previous series")

	// Deliver the Commit and Fail notifications before listening.
	p.drain()

	var got Change
	s.Subscribe(func(c Change) { got = c })
	w.Begin()
	p.drain()
	assert.Equal(t, ChangeLoading|ChangeErrorMessage, got)
	assert.Empty(t, s.ErrorMessage())
}

func TestObservationWriter(t *testing.T) {
	t.Parallel()

	s, p := newTestStore(t)
	user := s.UserWriter()
	w := s.ObservationWriter()

	user.EditDraft(func(d *ObservationDraft) {
		d.Metric = model.MetricHumidity
		d.RawValue = "71"
		d.Notes = "foggy"
		d.TimestampLocal = "2026-10-19T08:00"
	})
	p.drain()

	var got Change
	s.Subscribe(func(c Change) { got = c })

	w.SetStatus(ObservationStatus{Tone: ToneSuccess, Message: "ok"})
	w.ResetDraft("2026-10-19T09:15")
	w.BumpRefresh()
	p.drain()

	assert.Equal(t, ChangeObservationStatus|ChangeDraft|ChangeRefresh, got)
	assert.Equal(t, uint64(1), s.RefreshCounter())
	assert.Equal(t, ObservationDraft{Metric: model.MetricHumidity, TimestampLocal: "2026-10-19T09:15"}, s.Draft())

	w.SetStatus(ObservationStatus{})
	assert.Equal(t, IdleStatus, s.ObservationStatus())
}

func TestCatalogReplace(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	catalog := model.MetricCatalog{"uv": {Key: "uv", Label: "UV Index"}}
	s.CatalogWriter().Replace(catalog)
	catalog["uv"] = model.MetricDescriptor{Key: "uv", Label: "mutated"}

	assert.Equal(t, []string{"uv"}, s.Catalog().Keys())
	assert.Equal(t, "UV Index", s.Catalog()["uv"].Label)
}

func TestMetricDescriptorFallback(t *testing.T) {
	t.Parallel()

	vs := Initial(model.MetricWindSpeed, 24)
	assert.Equal(t, "Wind Speed", vs.MetricDescriptor().Label)

	vs.SelectedMetric = "uv"
	assert.Equal(t, model.MetricDescriptor{Key: "uv", Label: "uv"}, vs.MetricDescriptor())
}

func TestChangeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", Change(0).String())
	assert.Equal(t, "selectedLocation|refreshCounter", (ChangeRefresh | ChangeSelectedLocation).String())
}
