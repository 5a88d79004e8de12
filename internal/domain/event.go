package domain

import "time"

// Lifecycle event kinds recorded in the journal.
const (
	EventOpen      = "open"
	EventClose     = "close"
	EventError     = "error"
	EventRecovered = "recovered"
)

// LifecycleEvent is a persisted record of a position lifecycle transition,
// kept for the dashboard's history view.
type LifecycleEvent struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"ts"`
	Kind    string    `json:"kind"`
	Market  string    `json:"market"`
	Message string    `json:"message"`
	ROI     float64   `json:"roi"` // realized return where known, else 0
	Level   string    `json:"level"`
}
