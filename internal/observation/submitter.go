// Package observation validates and submits community observations from the
// dashboard's observation draft.
package observation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/climagrid/internal/abortable"
	"github.com/tphakala/climagrid/internal/apiclient"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/observability/metrics"
	"github.com/tphakala/climagrid/internal/state"
)

// Status messages shown to the user.
const (
	MsgSelectLocation = "Select a location first."
	MsgEnterNumber    = "Enter a numeric reading."
	MsgEnterTimestamp = "Enter a valid timestamp."
	MsgSubmitting     = "Submitting observation…"
	MsgRecorded       = "Observation recorded. Thanks for contributing!"
)

// API records observations.
type API interface {
	SubmitObservation(ctx context.Context, obs model.NewObservation) (*model.Observation, error)
}

// Deps are the collaborators of a Submitter.
type Deps struct {
	Scheduler abortable.Poster
	Store     *state.Store
	Writer    *state.ObservationWriter
	API       API
	Metrics   *metrics.ClientMetrics
	Logger    logger.Logger

	// Now returns the current time, time.Now when nil.
	Now func() time.Time
	// TimeZone is the zone of draft timestamps, time.Local when nil.
	TimeZone *time.Location
}

// Submitter owns observationStatus, submitting and refreshCounter. All
// methods must be called on the event loop.
type Submitter struct {
	deps   Deps
	slot   *abortable.Slot
	log    logger.Logger
	ctx    context.Context
	detach func()
}

// New creates a submitter.
func New(deps Deps) *Submitter {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TimeZone == nil {
		deps.TimeZone = time.Local
	}
	log := deps.Logger
	if log == nil {
		log = logger.Global().Module("observation")
	}
	return &Submitter{
		deps: deps,
		slot: abortable.NewSlot(metrics.CoordinatorObservation, deps.Metrics),
		log:  log,
		ctx:  context.Background(),
	}
}

// Attach subscribes to selection changes, which reset the status. Requests
// are bound to ctx.
func (s *Submitter) Attach(ctx context.Context) {
	s.ctx = ctx
	s.detach = s.deps.Store.Subscribe(func(change state.Change) {
		if change.Has(state.ChangeSelectedLocation) {
			s.deps.Writer.SetStatus(state.IdleStatus)
		}
	})
}

// Close cancels an in-flight submission and stops listening for changes.
func (s *Submitter) Close() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	s.slot.Abort()
}

// Submit validates the draft and posts it. It is ignored while a previous
// submission is in flight.
func (s *Submitter) Submit() {
	if s.deps.Store.Submitting() {
		s.log.Debug("Submission already in flight, ignoring")
		return
	}

	obs, err := Build(
		s.deps.Store.Draft(),
		s.deps.Store.SelectedLocation(),
		s.deps.Store.SelectedMetric(),
		s.deps.Now(),
		s.deps.TimeZone,
	)
	if err != nil {
		s.deps.Writer.SetStatus(state.ObservationStatus{Tone: state.ToneError, Message: err.Error()})
		s.deps.Metrics.RecordObservationSubmission(metrics.ResultValidation)
		return
	}

	s.deps.Writer.SetSubmitting(true)
	s.deps.Writer.SetStatus(state.ObservationStatus{Tone: state.ToneInfo, Message: MsgSubmitting})

	gen := s.slot.Supersede()
	h := abortable.Start(s.ctx, s.deps.Scheduler,
		func(ctx context.Context) (*model.Observation, error) {
			return s.deps.API.SubmitObservation(ctx, obs)
		},
		func(_ *model.Observation, err error) {
			s.complete(gen, obs, err)
		})
	s.slot.Fly(gen, h)

	s.log.Info("Submitting observation",
		logger.String("metric", obs.Metric),
		logger.Float64("value", obs.Value),
		logger.String("request", h.ID()))
}

func (s *Submitter) complete(gen uint64, obs model.NewObservation, err error) {
	if !s.slot.Current(gen) {
		return
	}
	s.deps.Writer.SetSubmitting(false)

	if err != nil {
		if abortable.IsAbort(err) {
			s.deps.Writer.SetStatus(state.IdleStatus)
			s.slot.Settle(gen, metrics.OutcomeAborted)
			return
		}

		result := metrics.ResultFailed
		if _, ok := apiclient.AsStatusError(err); ok {
			result = metrics.ResultRejected
		}
		s.log.Warn("Observation submission failed", logger.String("metric", obs.Metric), logger.Error(err))
		s.deps.Writer.SetStatus(state.ObservationStatus{Tone: state.ToneError, Message: FailureMessage(err)})
		s.deps.Metrics.RecordObservationSubmission(result)
		s.slot.Settle(gen, metrics.OutcomeFailed)
		return
	}

	s.deps.Writer.SetStatus(state.ObservationStatus{Tone: state.ToneSuccess, Message: MsgRecorded})
	s.deps.Writer.ResetDraft(s.deps.Now().In(s.deps.TimeZone).Format(state.DraftTimestampLayout))
	s.deps.Writer.BumpRefresh()
	s.deps.Metrics.RecordObservationSubmission(metrics.ResultSuccess)
	s.slot.Settle(gen, metrics.OutcomeCommitted)
}

// Build validates a draft and turns it into a request body. Checks run in
// order and the first failure is returned as a validation error whose text is
// the user-facing message.
func Build(draft state.ObservationDraft, loc *model.Location, selectedMetric string, now time.Time, tz *time.Location) (model.NewObservation, error) {
	if loc == nil {
		return model.NewObservation{}, errors.ValidationError(MsgSelectLocation)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(draft.RawValue), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return model.NewObservation{}, errors.ValidationError(MsgEnterNumber)
	}

	timestamp := now
	if raw := strings.TrimSpace(draft.TimestampLocal); raw != "" {
		if tz == nil {
			tz = time.Local
		}
		timestamp, err = time.ParseInLocation(state.DraftTimestampLayout, raw, tz)
		if err != nil {
			return model.NewObservation{}, errors.ValidationError(MsgEnterTimestamp)
		}
	}

	metric := draft.Metric
	if metric == "" {
		metric = selectedMetric
	}

	return model.NewObservation{
		Timestamp:    timestamp.UTC(),
		Metric:       metric,
		Value:        value,
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
		LocationName: loc.DisplayName(),
		Source:       model.SourceCommunity,
		Notes:        strings.TrimSpace(draft.Notes),
	}, nil
}

// FailureMessage renders a failed submission: the server's detail when
// present, otherwise the HTTP status, otherwise the error text.
func FailureMessage(err error) string {
	if statusErr, ok := apiclient.AsStatusError(err); ok {
		if statusErr.Detail != "" {
			return statusErr.Detail
		}
		return fmt.Sprintf("Submission failed (%d)", statusErr.Status)
	}
	return "Submission failed: " + err.Error()
}
