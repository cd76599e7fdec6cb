package observation

import (
	"context"
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

type submitCall struct {
	obs   model.NewObservation
	reply chan error
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []*submitCall
}

func (f *fakeAPI) SubmitObservation(ctx context.Context, obs model.NewObservation) (*model.Observation, error) {
	call := &submitCall{obs: obs, reply: make(chan error, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	select {
	case err := <-call.reply:
		if err != nil {
			return nil, err
		}
		return &model.Observation{ID: "c0ffee", Metric: obs.Metric, Value: obs.Value}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeAPI) Calls() []*submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*submitCall(nil), f.calls...)
}

var (
	london = model.Location{Name: "London", Admin1: "England", Country: "United Kingdom", Latitude: 51.51, Longitude: -0.13}
	// 2026-10-19 10:15 UTC
	fixedNow = time.Date(2026, 10, 19, 10, 15, 0, 0, time.UTC)
	bst      = time.FixedZone("BST", 3600)
)

type harness struct {
	t         *testing.T
	loop      *loop.Loop
	store     *state.Store
	user      *state.UserWriter
	submitter *Submitter
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
		h.submitter = New(Deps{
			Scheduler: l,
			Store:     h.store,
			Writer:    h.store.ObservationWriter(),
			API:       api,
			Logger:    logger.NewDiscardLogger(),
			Now:       func() time.Time { return fixedNow },
			TimeZone:  bst,
		})
		h.submitter.Attach(t.Context())
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

func (h *harness) fillDraft(value, timestamp, notes string) {
	h.t.Helper()
	h.do(func() {
		h.user.EditDraft(func(d *state.ObservationDraft) {
			d.RawValue = value
			d.TimestampLocal = timestamp
			d.Notes = notes
		})
	})
}

func TestValidationOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.fillDraft("abc", "not a time", "")
		h.do(h.submitter.Submit)
		vs := h.settle()
		assert.Equal(t, state.ObservationStatus{Tone: state.ToneError, Message: MsgSelectLocation}, vs.ObservationStatus)

		h.do(func() { h.user.SelectLocation(&london) })
		h.settle()
		h.do(h.submitter.Submit)
		vs = h.settle()
		assert.Equal(t, state.ObservationStatus{Tone: state.ToneError, Message: MsgEnterNumber}, vs.ObservationStatus)

		h.fillDraft("12.5", "not a time", "")
		h.do(h.submitter.Submit)
		vs = h.settle()
		assert.Equal(t, state.ObservationStatus{Tone: state.ToneError, Message: MsgEnterTimestamp}, vs.ObservationStatus)

		assert.Empty(t, api.Calls(), "invalid drafts never reach the API")
		assert.False(t, vs.Submitting)
	})
}

func TestSuccessfulSubmission(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() {
			h.user.SelectLocation(&london)
			h.user.EditDraft(func(d *state.ObservationDraft) {
				d.Metric = model.MetricHumidity
				d.RawValue = " 71.5 "
				d.TimestampLocal = "2026-10-19T09:30"
				d.Notes = "  light drizzle "
			})
		})
		h.settle()

		h.do(h.submitter.Submit)
		vs := h.settle()
		assert.True(t, vs.Submitting)
		assert.Equal(t, state.ObservationStatus{Tone: state.ToneInfo, Message: MsgSubmitting}, vs.ObservationStatus)

		calls := api.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, model.NewObservation{
			Timestamp:    time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
			Metric:       model.MetricHumidity,
			Value:        71.5,
			Latitude:     51.51,
			Longitude:    -0.13,
			LocationName: "London, England, United Kingdom",
			Source:       model.SourceCommunity,
			Notes:        "light drizzle",
		}, calls[0].obs)

		calls[0].reply <- nil
		vs = h.settle()
		assert.False(t, vs.Submitting)
		assert.Equal(t, state.ObservationStatus{Tone: state.ToneSuccess, Message: MsgRecorded}, vs.ObservationStatus)
		assert.Equal(t, uint64(1), vs.RefreshCounter, "refresh counter bumps exactly once")
		assert.Equal(t, state.ObservationDraft{Metric: model.MetricHumidity, TimestampLocal: "2026-10-19T11:15"}, vs.ObservationDraft)
	})
}

func TestSubmitIgnoredWhileInFlight(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := &fakeAPI{}
		h := newHarness(t, api)

		h.do(func() { h.user.SelectLocation(&london) })
		h.fillDraft("3", "", "")
		h.do(h.submitter.Submit)
		h.settle()
		h.do(h.submitter.Submit)
		h.settle()

		calls := api.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, model.MetricTemperature, calls[0].obs.Metric, "empty draft metric uses the selected one")
		assert.Equal(t, fixedNow, calls[0].obs.Timestamp, "empty timestamp means now")

		calls[0].reply <- nil
		vs := h.settle()
		assert.Equal(t, uint64(1), vs.RefreshCounter)
	})
}

func TestFailedSubmissionKeepsDraft(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"detail", errors.New(&apiclient.StatusError{Status: http.StatusUnprocessableEntity, Detail: "value out of range"}).Build(), "value out of range"},
		{"status", &apiclient.StatusError{Status: http.StatusInternalServerError}, "Submission failed (500)"},
		{"network", errors.NewStd("connection refused"), "Submission failed: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				api := &fakeAPI{}
				h := newHarness(t, api)

				h.do(func() { h.user.SelectLocation(&london) })
				h.fillDraft("18", "2026-10-19T07:00", "windy")
				before := h.settle().ObservationDraft

				h.do(h.submitter.Submit)
				h.settle()
				api.Calls()[0].reply <- tt.err
				vs := h.settle()

				assert.Equal(t, state.ObservationStatus{Tone: state.ToneError, Message: tt.want}, vs.ObservationStatus)
				assert.Equal(t, before, vs.ObservationDraft)
				assert.Zero(t, vs.RefreshCounter)
				assert.False(t, vs.Submitting)
			})
		})
	}
}

func TestSelectionChangeResetsStatus(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, &fakeAPI{})

		h.do(h.submitter.Submit)
		vs := h.settle()
		require.Equal(t, state.ToneError, vs.ObservationStatus.Tone)

		h.do(func() { h.user.SelectLocation(&london) })
		vs = h.settle()
		assert.Equal(t, state.IdleStatus, vs.ObservationStatus)
	})
}

func TestBuild(t *testing.T) {
	t.Parallel()

	draft := state.ObservationDraft{RawValue: "-4", TimestampLocal: "2026-01-02T03:04"}
	obs, err := Build(draft, &london, model.MetricWindSpeed, fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, model.MetricWindSpeed, obs.Metric)
	assert.InDelta(t, -4, obs.Value, 0)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC), obs.Timestamp)

	for _, raw := range []string{"", "NaN", "+Inf", "12,5", "1e400"} {
		_, err := Build(state.ObservationDraft{RawValue: raw}, &london, "temperature", fixedNow, time.UTC)
		require.Error(t, err, "raw value %q", raw)
		assert.Equal(t, MsgEnterNumber, err.Error())
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}
}
