package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/climagrid/internal/state"
)

// Summarize renders the loaded series in one line, or "" while nothing is
// loaded.
func Summarize(vs *state.ViewState) string {
	if vs.Loading || vs.Series == nil || vs.SelectedLocation == nil {
		return ""
	}

	d := vs.MetricDescriptor()
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s", vs.SelectedLocation.DisplayName(), d.Label)
	if d.Unit != "" {
		fmt.Fprintf(&b, " (%s)", d.Unit)
	}

	points := vs.Series.Points
	fmt.Fprintf(&b, " | %dh | %d points", vs.HorizonHours, len(points))
	if len(points) > 0 {
		lo, hi := points[0].Value, points[0].Value
		for _, p := range points[1:] {
			lo = min(lo, p.Value)
			hi = max(hi, p.Value)
		}
		last := points[len(points)-1]
		fmt.Fprintf(&b, " | min %.1f max %.1f | last %.1f at %s",
			lo, hi, last.Value, last.Timestamp.UTC().Format(time.RFC3339))
	}

	if n := len(vs.Series.UserObservations); n > 0 {
		fmt.Fprintf(&b, " | %d community observations", n)
	}
	return b.String()
}
