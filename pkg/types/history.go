package types

import "time"

// Cycle is one watering run as reported by GET /api/history.
type Cycle struct {
	ID             string     `json:"id"`
	Interval       string     `json:"interval"`
	PlannedSeconds int64      `json:"plannedSeconds"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	EndReason      string     `json:"endReason,omitempty"`
}
