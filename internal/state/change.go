package state

import "strings"

// Change is a bitmask of ViewState fields modified since the last notification.
type Change uint32

const (
	ChangeSearchTerm Change = 1 << iota
	ChangeSearchResults
	ChangeSearching
	ChangeSelectedLocation
	ChangeSelectedMetric
	ChangeHorizon
	ChangeRefresh
	ChangeSeries
	ChangeLoading
	ChangeErrorMessage
	ChangeDraft
	ChangeObservationStatus
	ChangeSubmitting
	ChangeCatalog
)

// ChangeSeriesTriggers are the fields whose change requires a new series.
const ChangeSeriesTriggers = ChangeSelectedLocation | ChangeSelectedMetric | ChangeHorizon | ChangeRefresh

var changeNames = []struct {
	change Change
	name   string
}{
	{ChangeSearchTerm, "searchTerm"},
	{ChangeSearchResults, "searchResults"},
	{ChangeSearching, "searching"},
	{ChangeSelectedLocation, "selectedLocation"},
	{ChangeSelectedMetric, "selectedMetric"},
	{ChangeHorizon, "horizonHours"},
	{ChangeRefresh, "refreshCounter"},
	{ChangeSeries, "series"},
	{ChangeLoading, "loading"},
	{ChangeErrorMessage, "errorMessage"},
	{ChangeDraft, "observationDraft"},
	{ChangeObservationStatus, "observationStatus"},
	{ChangeSubmitting, "submitting"},
	{ChangeCatalog, "catalog"},
}

// Has reports whether any bit of other is set in c.
func (c Change) Has(other Change) bool {
	return c&other != 0
}

func (c Change) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, n := range changeNames {
		if c.Has(n.change) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}
