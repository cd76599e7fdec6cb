package model

import (
	"maps"
	"slices"
)

// Built-in metric keys.
const (
	MetricTemperature   = "temperature"
	MetricHumidity      = "humidity"
	MetricPrecipitation = "precipitation"
	MetricWindSpeed     = "windspeed"
)

// MetricDescriptor describes a selectable metric.
type MetricDescriptor struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Unit  string `json:"unit" yaml:"unit"`
}

// MetricCatalog maps metric keys to their descriptors.
type MetricCatalog map[string]MetricDescriptor

// DefaultCatalog returns the catalog used until the remote one loads.
func DefaultCatalog() MetricCatalog {
	return MetricCatalog{
		MetricTemperature:   {Key: MetricTemperature, Label: "Air Temperature", Unit: "°C"},
		MetricHumidity:      {Key: MetricHumidity, Label: "Relative Humidity", Unit: "%"},
		MetricPrecipitation: {Key: MetricPrecipitation, Label: "Precipitation", Unit: "mm"},
		MetricWindSpeed:     {Key: MetricWindSpeed, Label: "Wind Speed", Unit: "km/h"},
	}
}

// Keys returns the metric keys in sorted order.
func (c MetricCatalog) Keys() []string {
	return slices.Sorted(maps.Keys(c))
}

// Lookup returns the descriptor for key.
func (c MetricCatalog) Lookup(key string) (MetricDescriptor, bool) {
	d, ok := c[key]
	return d, ok
}

// Clone returns an independent copy.
func (c MetricCatalog) Clone() MetricCatalog {
	if c == nil {
		return nil
	}
	return maps.Clone(c)
}
