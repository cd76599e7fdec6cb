package model

import (
	"encoding/json"
	"slices"
	"time"
)

// TimeseriesPoint is one forecast value.
type TimeseriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// UnmarshalJSON accepts timestamps with or without a zone designator.
func (p *TimeseriesPoint) UnmarshalJSON(data []byte) error {
	var wire struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	ts, err := ParseTimestamp(wire.Timestamp)
	if err != nil {
		return err
	}
	p.Timestamp = ts
	p.Value = wire.Value
	return nil
}

// Series is a forecast time series for one metric and location, with the
// community observations recorded nearby.
type Series struct {
	Metric           string            `json:"metric"`
	MetricLabel      string            `json:"metric_label"`
	Unit             string            `json:"unit"`
	Latitude         float64           `json:"latitude"`
	Longitude        float64           `json:"longitude"`
	HoursRequested   int               `json:"hours_requested"`
	Source           string            `json:"source"`
	Points           []TimeseriesPoint `json:"points"`
	UserObservations []Observation     `json:"user_observations"`
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	c := *s
	c.Points = slices.Clone(s.Points)
	c.UserObservations = slices.Clone(s.UserObservations)
	return &c
}

// TimeseriesQuery holds the parameters of a timeseries request.
type TimeseriesQuery struct {
	Metric                  string
	Latitude                float64
	Longitude               float64
	Hours                   int
	IncludeUserObservations bool
}

// ObservationQuery filters a listing of community observations. A nil
// Latitude or Longitude lists observations from everywhere.
type ObservationQuery struct {
	Metric    string
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
	Hours     int
}
