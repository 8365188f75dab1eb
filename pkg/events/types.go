package events

import "encoding/json"

// Event name constants
const (
	WateringState    = "watering.state"
	ScheduleUpcoming = "schedule.upcoming"
	ScheduleError    = "schedule.error"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// WateringStateEvent is the typed payload for watering.state.
type WateringStateEvent struct {
	From             string `json:"from"`
	To               string `json:"to"`
	Reason           string `json:"reason"`
	Interval         string `json:"interval"`
	Previous         string `json:"previous,omitempty"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	Ts               int64  `json:"ts"`
}

// ScheduleUpcomingEvent is the typed payload for schedule.upcoming.
type ScheduleUpcomingEvent struct {
	RunAt    int64  `json:"runAt"`
	Interval string `json:"interval"`
	Ts       int64  `json:"ts"`
}

// ScheduleErrorEvent is the typed payload for schedule.error.
type ScheduleErrorEvent struct {
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.WateringStateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
