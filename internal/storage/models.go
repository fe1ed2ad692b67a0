package storage

import (
	"time"
)

// Observation is one dated value of a series. At most one row exists per
// (series_id, obs_date); a later upsert for the same key replaces the value.
type Observation struct {
	Date  time.Time
	Value float64
}

// AlertRecord is one append-only row of the alert log.
type AlertRecord struct {
	ID       int64
	AlertTS  time.Time
	SeriesID string
	Level    string
	Message  string
}
