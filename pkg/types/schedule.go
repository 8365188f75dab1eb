package types

import "time"

// ScheduleStatus describes the automatic watering schedule.
type ScheduleStatus struct {
	Enabled  bool        `json:"enabled"`
	Cron     string      `json:"cron"`
	Interval string      `json:"interval"`
	NextRuns []time.Time `json:"nextRuns,omitempty"`
}

// ScheduleRequest is the body of PUT /api/schedule. An empty Cron disables
// the schedule.
type ScheduleRequest struct {
	Cron     string `json:"cron"`
	Interval string `json:"interval,omitempty"`
}
