// Package transform turns analytics records into click snapshot documents.
package transform

import (
	"time"

	"shorturl-analytics/models"
)

// Document builds the snapshot for rec observed at observedAt. It returns
// false when the record saw no clicks in the last two hours: such URLs are
// not written, and a later scan picks them up once clicks arrive.
func Document(rec models.AnalyticsRecord, observedAt time.Time) (models.OutputDocument, bool) {
	if rec.TotalClicksLast2h == 0 {
		return models.OutputDocument{}, false
	}
	return models.OutputDocument{
		ID:               rec.ID,
		Status:           rec.Status,
		Created:          rec.Created,
		ClicksObservedAt: observedAt,
		AllClicks:        rec.TotalClicksLast2h,
		Countries:        copyBreakdown(rec.Countries),
		Referrers:        copyBreakdown(rec.Referrers),
		Browsers:         copyBreakdown(rec.Browsers),
		Platforms:        copyBreakdown(rec.Platforms),
	}, true
}

// copyBreakdown never returns nil so documents always carry the array.
func copyBreakdown(in []models.Breakdown) []models.Breakdown {
	out := make([]models.Breakdown, len(in))
	copy(out, in)
	return out
}
