// Package state holds the dashboard view state. Each field group has exactly
// one writer type; all writes happen on the event loop and change
// notifications are delivered in a later loop task.
package state

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/climagrid/internal/model"
)

// Horizon bounds in hours.
const (
	MinHorizonHours = 1
	MaxHorizonHours = 168
)

// DraftTimestampLayout is the layout of ObservationDraft.TimestampLocal.
const DraftTimestampLayout = "2006-01-02T15:04"

// Tone classifies an observation status message.
type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

// ObservationStatus is the inline status shown next to the observation form.
// The zero value is treated as {info, ""}.
type ObservationStatus struct {
	Tone    Tone
	Message string
}

// IdleStatus is the status shown when nothing has been submitted.
var IdleStatus = ObservationStatus{Tone: ToneInfo}

// ObservationDraft is the observation form content.
type ObservationDraft struct {
	Metric         string // empty means the selected metric
	RawValue       string
	TimestampLocal string // DraftTimestampLayout in the display time zone, empty means now
	Notes          string
}

// ViewState is the complete dashboard state.
type ViewState struct {
	SearchTerm    string
	SearchResults []model.Location
	Searching     bool

	SelectedLocation *model.Location
	SelectedMetric   string
	HorizonHours     int
	RefreshCounter   uint64

	Series       *model.Series
	Loading      bool
	ErrorMessage string

	ObservationDraft  ObservationDraft
	ObservationStatus ObservationStatus
	Submitting        bool

	Catalog model.MetricCatalog
}

// Clone returns a deep copy.
func (v *ViewState) Clone() ViewState {
	c := *v
	c.SearchResults = slices.Clone(v.SearchResults)
	if v.SelectedLocation != nil {
		loc := *v.SelectedLocation
		c.SelectedLocation = &loc
	}
	c.Series = v.Series.Clone()
	c.Catalog = v.Catalog.Clone()
	return c
}

// MetricDescriptor returns the catalog entry for the selected metric, falling
// back to a bare descriptor when the catalog does not know it.
func (v *ViewState) MetricDescriptor() model.MetricDescriptor {
	if d, ok := v.Catalog.Lookup(v.SelectedMetric); ok {
		return d
	}
	return model.MetricDescriptor{Key: v.SelectedMetric, Label: v.SelectedMetric}
}

// ClampHorizon limits hours to [MinHorizonHours, MaxHorizonHours].
func ClampHorizon(hours int) int {
	return min(max(hours, MinHorizonHours), MaxHorizonHours)
}

// ParseHorizon parses user input for the forecast horizon. Numeric input is
// rounded and clamped; anything else leaves current unchanged.
func ParseHorizon(input string, current int) int {
	value, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return current
	}
	switch {
	case value < MinHorizonHours:
		return MinHorizonHours
	case value > MaxHorizonHours:
		return MaxHorizonHours
	default:
		return ClampHorizon(int(math.Round(value)))
	}
}
