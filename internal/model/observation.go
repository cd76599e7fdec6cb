package model

import (
	"encoding/json"
	"time"
)

// ObservationSource records who produced a reading.
type ObservationSource string

const (
	SourceForecastSystem ObservationSource = "forecast-system"
	SourceCommunity      ObservationSource = "community"
)

// Observation is a recorded reading as returned by the API.
// Source strings other than the known constants are kept verbatim.
type Observation struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Metric       string            `json:"metric"`
	Value        float64           `json:"value"`
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	LocationName string            `json:"location_name,omitempty"`
	Source       ObservationSource `json:"source,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	SubmittedAt  time.Time         `json:"submitted_at"`
}

type observationWire struct {
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	Metric       string            `json:"metric"`
	Value        float64           `json:"value"`
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	LocationName *string           `json:"location_name"`
	Source       ObservationSource `json:"source"`
	Notes        *string           `json:"notes"`
	SubmittedAt  string            `json:"submitted_at"`
}

// UnmarshalJSON accepts timestamps with or without a zone designator and null optionals.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var wire observationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	ts, err := ParseTimestamp(wire.Timestamp)
	if err != nil {
		return err
	}

	*o = Observation{
		ID:        wire.ID,
		Timestamp: ts,
		Metric:    wire.Metric,
		Value:     wire.Value,
		Latitude:  wire.Latitude,
		Longitude: wire.Longitude,
		Source:    wire.Source,
	}
	if wire.LocationName != nil {
		o.LocationName = *wire.LocationName
	}
	if wire.Notes != nil {
		o.Notes = *wire.Notes
	}
	if wire.SubmittedAt != "" {
		if o.SubmittedAt, err = ParseTimestamp(wire.SubmittedAt); err != nil {
			return err
		}
	}
	return nil
}

// NewObservation is the request body for recording a reading.
type NewObservation struct {
	Timestamp    time.Time
	Metric       string
	Value        float64
	Latitude     float64
	Longitude    float64
	LocationName string
	Source       ObservationSource
	Notes        string
}

// MarshalJSON renders the timestamp in UTC and omits empty notes.
func (n NewObservation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp    string            `json:"timestamp"`
		Metric       string            `json:"metric"`
		Value        float64           `json:"value"`
		Latitude     float64           `json:"latitude"`
		Longitude    float64           `json:"longitude"`
		LocationName string            `json:"location_name,omitempty"`
		Source       ObservationSource `json:"source"`
		Notes        string            `json:"notes,omitempty"`
	}{
		Timestamp:    FormatTimestamp(n.Timestamp),
		Metric:       n.Metric,
		Value:        n.Value,
		Latitude:     n.Latitude,
		Longitude:    n.Longitude,
		LocationName: n.LocationName,
		Source:       n.Source,
		Notes:        n.Notes,
	})
}
