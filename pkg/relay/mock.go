package relay

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Mock is an in-memory Driver for development machines and tests.
type Mock struct {
	mu     sync.Mutex
	opened bool
	levels map[int]bool // electrical level per pin
	writes map[int]int
}

var _ Driver = &Mock{}

// NewMock returns a new mocked driver. Pins listed in prefill start at the
// given electrical level.
func NewMock(prefill map[int]bool) *Mock {
	m := &Mock{
		levels: make(map[int]bool),
		writes: make(map[int]int),
	}
	for pin, high := range prefill {
		m.levels[pin] = high
	}
	return m
}

func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

func (m *Mock) Output(pin int, activeLow bool) (Output, error) {
	if pin < 0 || pin > maxBCMPin {
		return nil, fmt.Errorf("invalid BCM pin %d", pin)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return nil, ErrNotOpen
	}
	return &mockPin{m: m, pin: pin, activeLow: activeLow}, nil
}

// High reports the electrical level last written to pin.
func (m *Mock) High(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Writes reports how many times pin was written.
func (m *Mock) Writes(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[pin]
}

type mockPin struct {
	m         *Mock
	pin       int
	activeLow bool
}

func (p *mockPin) Set(on bool) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	if !p.m.opened {
		return ErrNotOpen
	}

	high := level(on, p.activeLow)
	p.m.levels[p.pin] = high
	p.m.writes[p.pin]++

	logrus.WithFields(logrus.Fields{
		"pin":  p.pin,
		"on":   on,
		"high": high,
	}).Trace("Write to mock gpio succeed")

	return nil
}

func (p *mockPin) IsOn() (bool, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	if !p.m.opened {
		return false, ErrNotOpen
	}
	return p.m.levels[p.pin] != p.activeLow, nil
}
