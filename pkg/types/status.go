package types

import "time"

// RemainingWateringTime is the body of GET /remainingWateringTime. The field
// names are consumed by the status page script and must not change.
type RemainingWateringTime struct {
	RemainingSeconds int64  `json:"remainingSeconds"`
	IntervalSet      string `json:"intervalSet"`
}

// Status is the daemon-wide status returned by GET /api/status.
type Status struct {
	State            string          `json:"state"`
	RelayOn          bool            `json:"relayOn"`
	RemainingSeconds int64           `json:"remainingSeconds"`
	Interval         string          `json:"interval"`
	EndsAt           *time.Time      `json:"endsAt,omitempty"`
	TickHealthy      bool            `json:"tickHealthy"`
	LastTick         *time.Time      `json:"lastTick,omitempty"`
	SimulateHardware bool            `json:"simulateHardware"`
	Schedule         *ScheduleStatus `json:"schedule,omitempty"`
}
