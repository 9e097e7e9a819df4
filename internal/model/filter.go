package model

import "time"

// Granularity selects the bucket size for time-series aggregations.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// Valid reports whether the granularity is one of the supported buckets.
func (g Granularity) Valid() bool {
	return g == GranularityHour || g == GranularityDay
}

// QueryFilter is the validated predicate set applied uniformly across every
// read-aggregation operation. It is built per request and never persisted.
type QueryFilter struct {
	ProjectID string
	StartDate time.Time // midnight UTC of the first day, inclusive
	EndDate   time.Time // midnight UTC of the last day, inclusive of the day
	EventType string
	UserID    string
	SessionID string
	PagePath  string
	Country   string
}

// TimeRange returns the half-open event-time window [from, to) covered by the
// filter's calendar-day range, inclusive of the entire end date.
func (f QueryFilter) TimeRange() (from, to time.Time) {
	return f.StartDate, f.EndDate.Add(24 * time.Hour)
}
