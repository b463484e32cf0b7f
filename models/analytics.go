package models

// Breakdown is one row of a click breakdown (a country, a referrer, a
// browser or a platform) and the number of clicks attributed to it.
type Breakdown struct {
	Count int64  `json:"count" msgpack:"count"`
	ID    string `json:"id" msgpack:"id"`
}

// AnalyticsRecord is the parsed analytics response for one short URL.
type AnalyticsRecord struct {
	ID                string      `json:"id" msgpack:"id"`
	Status            string      `json:"status" msgpack:"status"`
	Created           string      `json:"created" msgpack:"created"`
	TotalClicksLast2h int64       `json:"totalClicksLast2h" msgpack:"clicks"`
	Countries         []Breakdown `json:"countries" msgpack:"countries"`
	Referrers         []Breakdown `json:"referrers" msgpack:"referrers"`
	Browsers          []Breakdown `json:"browsers" msgpack:"browsers"`
	Platforms         []Breakdown `json:"platforms" msgpack:"platforms"`
}
