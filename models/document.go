package models

import "time"

// OutputDocument is the normalized click snapshot written to the destination.
type OutputDocument struct {
	ID               string      `json:"id"`
	Status           string      `json:"status"`
	Created          string      `json:"created"`
	ClicksObservedAt time.Time   `json:"clicksObservedAt"`
	AllClicks        int64       `json:"all_clicks"`
	Countries        []Breakdown `json:"countries"`
	Referrers        []Breakdown `json:"referrers"`
	Browsers         []Breakdown `json:"browsers"`
	Platforms        []Breakdown `json:"platforms"`
}

// ClickSnapshot is the relational row for an OutputDocument.
type ClickSnapshot struct {
	ID               uint        `gorm:"primaryKey"`
	ShortURLID       string      `gorm:"size:255;index;not null"`
	Status           string      `gorm:"size:64"`
	Created          string      `gorm:"size:64"`
	ClicksObservedAt time.Time   `gorm:"index;not null"`
	AllClicks        int64       `gorm:"not null"`
	Countries        []Breakdown `gorm:"serializer:json"`
	Referrers        []Breakdown `gorm:"serializer:json"`
	Browsers         []Breakdown `gorm:"serializer:json"`
	Platforms        []Breakdown `gorm:"serializer:json"`
}

// NewClickSnapshot converts a document into its relational row.
func NewClickSnapshot(doc OutputDocument) ClickSnapshot {
	return ClickSnapshot{
		ShortURLID:       doc.ID,
		Status:           doc.Status,
		Created:          doc.Created,
		ClicksObservedAt: doc.ClicksObservedAt,
		AllClicks:        doc.AllClicks,
		Countries:        doc.Countries,
		Referrers:        doc.Referrers,
		Browsers:         doc.Browsers,
		Platforms:        doc.Platforms,
	}
}
