package relay

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
)

// maxBCMPin is the highest GPIO line exposed on the Raspberry Pi header.
const maxBCMPin = 27

// GPIO drives outputs through /dev/gpiomem using go-rpio.
type GPIO struct {
	mu     sync.Mutex
	opened bool
}

var _ Driver = &GPIO{}

// NewGPIO returns a new, unopened GPIO driver.
func NewGPIO() *GPIO {
	return &GPIO{}
}

// Open maps GPIO memory.
func (g *GPIO) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.opened {
		return nil
	}
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open gpio: %w", err)
	}
	g.opened = true
	return nil
}

// Close unmaps GPIO memory.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.opened {
		return nil
	}
	g.opened = false
	return rpio.Close()
}

// Output configures pin as an output and returns a handle for it.
func (g *GPIO) Output(pin int, activeLow bool) (Output, error) {
	if pin < 0 || pin > maxBCMPin {
		return nil, fmt.Errorf("invalid BCM pin %d", pin)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.opened {
		return nil, ErrNotOpen
	}

	p := rpio.Pin(pin)
	p.Output()

	logrus.WithFields(logrus.Fields{
		"pin":       pin,
		"activeLow": activeLow,
	}).Debug("configured gpio output")

	return &gpioPin{driver: g, pin: p, activeLow: activeLow}, nil
}

type gpioPin struct {
	driver    *GPIO
	pin       rpio.Pin
	activeLow bool
}

func (p *gpioPin) Set(on bool) error {
	p.driver.mu.Lock()
	defer p.driver.mu.Unlock()

	if !p.driver.opened {
		return ErrNotOpen
	}

	high := level(on, p.activeLow)
	logrus.WithFields(logrus.Fields{
		"pin":  int(p.pin),
		"on":   on,
		"high": high,
	}).Trace("Trying to write to gpio")

	if high {
		p.pin.High()
	} else {
		p.pin.Low()
	}

	return nil
}

func (p *gpioPin) IsOn() (bool, error) {
	p.driver.mu.Lock()
	defer p.driver.mu.Unlock()

	if !p.driver.opened {
		return false, ErrNotOpen
	}

	high := p.pin.Read() == rpio.High
	return high != p.activeLow, nil
}
