package model

import (
	"fmt"
	"time"
)

// The API emits ISO 8601 timestamps, sometimes without a zone designator.
// Those are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an API timestamp. Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders t as RFC 3339 in UTC, the form the API accepts.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
