package state

import (
	"slices"

	"github.com/tphakala/climagrid/internal/model"
)

type writerKind uint8

const (
	userWriter writerKind = 1 << iota
	searchWriter
	seriesWriter
	observationWriter
	catalogWriter
)

func (k writerKind) String() string {
	switch k {
	case userWriter:
		return "user"
	case searchWriter:
		return "search"
	case seriesWriter:
		return "series"
	case observationWriter:
		return "observation"
	case catalogWriter:
		return "catalog"
	default:
		return "unknown"
	}
}

// UserWriter applies user input: search term, selection, metric, horizon and
// draft edits.
type UserWriter struct{ s *Store }

// UserWriter claims the user input writer.
func (s *Store) UserWriter() *UserWriter {
	s.claim(userWriter)
	return &UserWriter{s: s}
}

// SetSearchTerm stores the raw search input.
func (w *UserWriter) SetSearchTerm(term string) {
	if w.s.vs.SearchTerm == term {
		return
	}
	w.s.vs.SearchTerm = term
	w.s.mark(ChangeSearchTerm)
}

// SelectLocation sets the selected location. Selecting again counts as a
// change, which reloads the series.
func (w *UserWriter) SelectLocation(loc *model.Location) {
	if loc == nil {
		if w.s.vs.SelectedLocation == nil {
			return
		}
		w.s.vs.SelectedLocation = nil
	} else {
		selected := *loc
		w.s.vs.SelectedLocation = &selected
	}
	w.s.mark(ChangeSelectedLocation)
}

// SetMetric selects a metric.
func (w *UserWriter) SetMetric(metric string) {
	if metric == "" || w.s.vs.SelectedMetric == metric {
		return
	}
	w.s.vs.SelectedMetric = metric
	w.s.mark(ChangeSelectedMetric)
}

// SetHorizon stores hours clamped to the valid range.
func (w *UserWriter) SetHorizon(hours int) {
	hours = ClampHorizon(hours)
	if w.s.vs.HorizonHours == hours {
		return
	}
	w.s.vs.HorizonHours = hours
	w.s.mark(ChangeHorizon)
}

// SetHorizonInput parses free-form horizon input, see ParseHorizon.
func (w *UserWriter) SetHorizonInput(input string) {
	w.SetHorizon(ParseHorizon(input, w.s.vs.HorizonHours))
}

// EditDraft applies edit to the observation draft.
func (w *UserWriter) EditDraft(edit func(*ObservationDraft)) {
	draft := w.s.vs.ObservationDraft
	edit(&draft)
	if draft == w.s.vs.ObservationDraft {
		return
	}
	w.s.vs.ObservationDraft = draft
	w.s.mark(ChangeDraft)
}

// SearchWriter owns searchResults and searching.
type SearchWriter struct{ s *Store }

// SearchWriter claims the search results writer.
func (s *Store) SearchWriter() *SearchWriter {
	s.claim(searchWriter)
	return &SearchWriter{s: s}
}

// SetResults replaces the search results.
func (w *SearchWriter) SetResults(results []model.Location) {
	if len(results) == 0 && len(w.s.vs.SearchResults) == 0 {
		return
	}
	w.s.vs.SearchResults = slices.Clone(results)
	w.s.mark(ChangeSearchResults)
}

// ClearResults empties the search results.
func (w *SearchWriter) ClearResults() {
	w.SetResults(nil)
}

// SetSearching sets the in-progress flag.
func (w *SearchWriter) SetSearching(searching bool) {
	if w.s.vs.Searching == searching {
		return
	}
	w.s.vs.Searching = searching
	w.s.mark(ChangeSearching)
}

// SeriesWriter owns series, loading and errorMessage.
type SeriesWriter struct{ s *Store }

// SeriesWriter claims the series writer.
func (s *Store) SeriesWriter() *SeriesWriter {
	s.claim(seriesWriter)
	return &SeriesWriter{s: s}
}

// Begin marks a fetch as started and clears the previous error.
func (w *SeriesWriter) Begin() {
	var c Change
	if !w.s.vs.Loading {
		w.s.vs.Loading = true
		c |= ChangeLoading
	}
	if w.s.vs.ErrorMessage != "" {
		w.s.vs.ErrorMessage = ""
		c |= ChangeErrorMessage
	}
	w.s.mark(c)
}

// Commit replaces the series and ends loading.
func (w *SeriesWriter) Commit(series *model.Series) {
	w.s.vs.Series = series.Clone()
	c := ChangeSeries
	if w.s.vs.Loading {
		w.s.vs.Loading = false
		c |= ChangeLoading
	}
	w.s.mark(c)
}

// Fail records message and ends loading. The previous series is kept.
func (w *SeriesWriter) Fail(message string) {
	var c Change
	if w.s.vs.ErrorMessage != message {
		w.s.vs.ErrorMessage = message
		c |= ChangeErrorMessage
	}
	if w.s.vs.Loading {
		w.s.vs.Loading = false
		c |= ChangeLoading
	}
	w.s.mark(c)
}

// StopLoading ends loading without touching series or error.
func (w *SeriesWriter) StopLoading() {
	if !w.s.vs.Loading {
		return
	}
	w.s.vs.Loading = false
	w.s.mark(ChangeLoading)
}

// ObservationWriter owns observationStatus, submitting, refreshCounter and the
// draft reset after a successful submission.
type ObservationWriter struct{ s *Store }

// ObservationWriter claims the observation writer.
func (s *Store) ObservationWriter() *ObservationWriter {
	s.claim(observationWriter)
	return &ObservationWriter{s: s}
}

// SetStatus sets the observation status.
func (w *ObservationWriter) SetStatus(status ObservationStatus) {
	if status.Tone == "" {
		status.Tone = ToneInfo
	}
	if w.s.vs.ObservationStatus == status {
		return
	}
	w.s.vs.ObservationStatus = status
	w.s.mark(ChangeObservationStatus)
}

// SetSubmitting sets the in-flight flag.
func (w *ObservationWriter) SetSubmitting(submitting bool) {
	if w.s.vs.Submitting == submitting {
		return
	}
	w.s.vs.Submitting = submitting
	w.s.mark(ChangeSubmitting)
}

// BumpRefresh increments refreshCounter, asking for the series to reload.
func (w *ObservationWriter) BumpRefresh() {
	w.s.vs.RefreshCounter++
	w.s.mark(ChangeRefresh)
}

// ResetDraft clears value and notes and sets the timestamp, keeping the metric.
func (w *ObservationWriter) ResetDraft(timestampLocal string) {
	draft := ObservationDraft{
		Metric:         w.s.vs.ObservationDraft.Metric,
		TimestampLocal: timestampLocal,
	}
	if draft == w.s.vs.ObservationDraft {
		return
	}
	w.s.vs.ObservationDraft = draft
	w.s.mark(ChangeDraft)
}

// CatalogWriter owns the metric catalog.
type CatalogWriter struct{ s *Store }

// CatalogWriter claims the catalog writer.
func (s *Store) CatalogWriter() *CatalogWriter {
	s.claim(catalogWriter)
	return &CatalogWriter{s: s}
}

// Replace swaps the catalog wholesale.
func (w *CatalogWriter) Replace(catalog model.MetricCatalog) {
	w.s.vs.Catalog = catalog.Clone()
	w.s.mark(ChangeCatalog)
}
