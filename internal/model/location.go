// Package model defines the domain types exchanged with the ClimaGrid API
// and shared by the dashboard coordinators.
package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CoordinatePrecision is the number of decimals used to display and identify coordinates.
const CoordinatePrecision = 4

// Location is a geocoded place.
type Location struct {
	ID        int64   `json:"id,omitempty"`
	Name      string  `json:"name"`
	Admin1    string  `json:"admin1,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

// DisplayName joins name, admin1 and country with ", ", omitting empty parts.
func (l Location) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.Name, l.Admin1, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Key identifies a location by its coordinates at display precision.
func (l Location) Key() string {
	return fmt.Sprintf("%.*f,%.*f", CoordinatePrecision, l.Latitude, CoordinatePrecision, l.Longitude)
}

// SameLocation reports whether two optional locations identify the same place.
func SameLocation(a, b *Location) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return a.Key() == b.Key()
	}
}

// NormalizeName folds case, applies NFKC and collapses whitespace so that
// place names typed by a user compare equal to the geocoder's spelling.
func NormalizeName(s string) string {
	folded := cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}
