package transform

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"shorturl-analytics/models"
)

var observed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDocumentSkipsZeroClicks(t *testing.T) {
	rec := models.AnalyticsRecord{
		ID:        "http://goo.gl/abc",
		Status:    "OK",
		Created:   "2013-01-01T00:00:00.000+00:00",
		Countries: []models.Breakdown{{Count: 3, ID: "US"}},
	}
	if _, ok := Document(rec, observed); ok {
		t.Fatal("expected no document for a record without clicks")
	}
}

func TestDocumentCopiesFields(t *testing.T) {
	rec := models.AnalyticsRecord{
		ID:                "http://goo.gl/abc",
		Status:            "OK",
		Created:           "2013-01-01T00:00:00.000+00:00",
		TotalClicksLast2h: 7,
		Countries:         []models.Breakdown{{Count: 4, ID: "US"}, {Count: 2, ID: "DE"}, {Count: 1, ID: "FR"}},
		Referrers:         []models.Breakdown{{Count: 7, ID: "t.co"}},
		Browsers:          []models.Breakdown{{Count: 5, ID: "Chrome"}, {Count: 2, ID: "Firefox"}},
		Platforms:         []models.Breakdown{{Count: 6, ID: "Windows"}, {Count: 1, ID: "Linux"}},
	}

	doc, ok := Document(rec, observed)
	if !ok {
		t.Fatal("expected a document")
	}
	if doc.ID != rec.ID || doc.Status != rec.Status || doc.Created != rec.Created {
		t.Errorf("identity fields not copied: %+v", doc)
	}
	if doc.AllClicks != 7 {
		t.Errorf("all_clicks = %d, want 7", doc.AllClicks)
	}
	if !doc.ClicksObservedAt.Equal(observed) {
		t.Errorf("clicksObservedAt = %v, want %v", doc.ClicksObservedAt, observed)
	}
	for name, pair := range map[string][2][]models.Breakdown{
		"countries": {rec.Countries, doc.Countries},
		"referrers": {rec.Referrers, doc.Referrers},
		"browsers":  {rec.Browsers, doc.Browsers},
		"platforms": {rec.Platforms, doc.Platforms},
	} {
		if !reflect.DeepEqual(pair[0], pair[1]) {
			t.Errorf("%s = %v, want %v", name, pair[1], pair[0])
		}
	}

	// the document must not alias the record's slices
	rec.Countries[0].Count = 99
	if doc.Countries[0].Count != 4 {
		t.Error("document shares backing array with the record")
	}
}

func TestDocumentMissingArraysBecomeEmpty(t *testing.T) {
	rec := models.AnalyticsRecord{ID: "http://goo.gl/x", Status: "OK", Created: "c", TotalClicksLast2h: 1}
	doc, ok := Document(rec, observed)
	if !ok {
		t.Fatal("expected a document")
	}
	for name, arr := range map[string][]models.Breakdown{
		"countries": doc.Countries, "referrers": doc.Referrers,
		"browsers": doc.Browsers, "platforms": doc.Platforms,
	} {
		if arr == nil {
			t.Errorf("%s is nil", name)
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"countries":[]`, `"referrers":[]`, `"browsers":[]`, `"platforms":[]`, `"all_clicks":1`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("json %s missing %s", data, field)
		}
	}
}
