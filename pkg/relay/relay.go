package relay

import (
	"errors"
	"fmt"
)

// ErrNotOpen is returned when an output is used before its driver is opened.
var ErrNotOpen = errors.New("gpio driver is not open")

// Output is a single binary output pin.
type Output interface {
	// Set drives the output to its logical on/off level.
	Set(on bool) error
	// IsOn reads back the logical level of the output.
	IsOn() (bool, error)
}

// Driver hands out outputs for BCM pin numbers.
type Driver interface {
	Open() error
	Close() error
	Output(pin int, activeLow bool) (Output, error)
}

// PinConfig describes one output pin.
type PinConfig struct {
	Pin       int
	ActiveLow bool
}

func (p PinConfig) String() string {
	if p.ActiveLow {
		return fmt.Sprintf("BCM%d (active-low)", p.Pin)
	}
	return fmt.Sprintf("BCM%d", p.Pin)
}

// level converts a logical state into the electrical level for the pin.
func level(on, activeLow bool) bool {
	return on != activeLow
}
