package watering

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownInterval is returned when a duration token is not one of the
// supported watering intervals.
var ErrUnknownInterval = errors.New("unknown watering interval")

// Interval is a requested watering length.
type Interval uint8

const (
	None Interval = iota
	OneHour
	TwoHours
	ThreeHours
)

// Tokens accepted on the HTTP and CLI surfaces.
const (
	TokenOneHour    = "1hr"
	TokenTwoHours   = "2hrs"
	TokenThreeHours = "3hrs"
)

// Intervals lists every interval that can be started, shortest first.
var Intervals = []Interval{OneHour, TwoHours, ThreeHours}

// ParseInterval maps a duration token to its Interval.
func ParseInterval(token string) (Interval, error) {
	switch token {
	case TokenOneHour:
		return OneHour, nil
	case TokenTwoHours:
		return TwoHours, nil
	case TokenThreeHours:
		return ThreeHours, nil
	default:
		return None, fmt.Errorf("%w: %q (expected %s, %s or %s)",
			ErrUnknownInterval, token, TokenOneHour, TokenTwoHours, TokenThreeHours)
	}
}

// Token returns the duration token for i, or an empty string for None.
func (i Interval) Token() string {
	switch i {
	case OneHour:
		return TokenOneHour
	case TwoHours:
		return TokenTwoHours
	case ThreeHours:
		return TokenThreeHours
	default:
		return ""
	}
}

// Millis returns the watering length in milliseconds, or 0 for None.
func (i Interval) Millis() int64 {
	switch i {
	case OneHour:
		return 1 * 60 * 60 * 1000
	case TwoHours:
		return 2 * 60 * 60 * 1000
	case ThreeHours:
		return 3 * 60 * 60 * 1000
	default:
		return 0
	}
}

// Duration returns the watering length as a time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Millis()) * time.Millisecond
}

func (i Interval) String() string {
	if i == None {
		return "none"
	}
	return i.Token()
}

func (i Interval) MarshalText() ([]byte, error) {
	return []byte(i.Token()), nil
}

func (i *Interval) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*i = None
		return nil
	}
	parsed, err := ParseInterval(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
