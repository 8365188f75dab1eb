package watering

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrWateringInProgress is returned by StartIfIdle when a cycle is running.
var ErrWateringInProgress = errors.New("watering already in progress")

// idleMillis is the remainingMillis sentinel for a timer with nothing to do.
const idleMillis int64 = -1

// State is the phase of the countdown state machine.
type State string

const (
	StateIdle    State = "Idle"
	StateRunning State = "Running"
	StateExpired State = "Expired"
)

// Reason explains why a Transition happened.
type Reason string

const (
	ReasonStarted Reason = "started"
	ReasonRearmed Reason = "rearmed"
	ReasonStopped Reason = "stopped"
	ReasonExpired Reason = "expired"
)

// Output is a binary hardware output such as the valve relay or the
// indicator LED. Implementations report write failures but the timer treats
// writes as fire-and-forget.
type Output interface {
	Set(on bool) error
}

// Transition describes a single state change of the timer.
type Transition struct {
	From            State
	To              State
	Interval        Interval // interval in effect after the transition
	Previous        Interval // interval in effect before the transition
	Reason          Reason
	RemainingMillis int64
	At              time.Time
}

// Status is a point-in-time view of the timer.
type Status struct {
	State            State    `json:"state"`
	RelayOn          bool     `json:"relayOn"`
	RemainingSeconds int64    `json:"remainingSeconds"`
	Interval         Interval `json:"interval"`
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock sets the monotonic millisecond clock used by Start and TickNow.
func WithClock(now func() int64) Option {
	return func(t *Timer) {
		t.now = now
	}
}

// WithIndicator adds an output driven in lockstep with the relay.
func WithIndicator(o Output) Option {
	return func(t *Timer) {
		t.indicator = o
	}
}

// WithWallClock sets the wall clock used to stamp transitions.
func WithWallClock(now func() time.Time) Option {
	return func(t *Timer) {
		t.wall = now
	}
}

// Timer owns the watering countdown and decides when the relay is energized.
//
// Every exported method is one critical section, so the tick loop and HTTP
// handlers never observe a half-applied operation. Listeners registered with
// OnTransition are called inside that section: they must not block and must
// not call back into the Timer.
type Timer struct {
	mu sync.Mutex

	relay     Output
	indicator Output
	now       func() int64
	wall      func() time.Time

	requested       Interval
	remainingMillis int64
	lastTick        int64
	relayOn         bool

	listeners []func(Transition)
}

// NewTimer returns an idle Timer. The relay (and indicator) are switched off
// immediately so the hardware starts in a known state.
func NewTimer(relay Output, opts ...Option) *Timer {
	t := &Timer{
		relay:           relay,
		now:             MonotonicMillis(),
		wall:            time.Now,
		remainingMillis: idleMillis,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.setOutputs(false)

	return t
}

// MonotonicMillis returns a clock reporting milliseconds elapsed since the
// call, backed by the runtime's monotonic clock.
func MonotonicMillis() func() int64 {
	boot := time.Now()
	return func() int64 {
		return time.Since(boot).Milliseconds()
	}
}

// OnTransition registers fn to be called for every state change.
func (t *Timer) OnTransition(fn func(Transition)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.listeners = append(t.listeners, fn)
}

// Start parses token and arms the timer with it. Unknown tokens return an
// error wrapping ErrUnknownInterval and leave the timer untouched.
func (t *Timer) Start(token string) error {
	i, err := ParseInterval(token)
	if err != nil {
		return err
	}
	return t.StartInterval(i)
}

// StartInterval arms the timer for i. A running timer is re-armed with the
// new interval; durations are never summed.
func (t *Timer) StartInterval(i Interval) error {
	if i.Millis() <= 0 {
		return ErrUnknownInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.arm(i)
	return nil
}

// StartIfIdle arms the timer for i unless it is already running, in which
// case it returns ErrWateringInProgress and the running cycle is kept. The
// check and the arm happen under one lock.
func (t *Timer) StartIfIdle(i Interval) error {
	if i.Millis() <= 0 {
		return ErrUnknownInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state() == StateRunning {
		return fmt.Errorf("%w (%s, %ds left)", ErrWateringInProgress, t.requested.Token(), t.remainingMillis/1000)
	}

	t.arm(i)
	return nil
}

// arm must be called with t.mu held.
func (t *Timer) arm(i Interval) {
	from := t.state()
	previous := t.requested
	reason := ReasonStarted
	if from == StateRunning {
		reason = ReasonRearmed
	}

	t.remainingMillis = i.Millis()
	t.lastTick = t.now()
	t.requested = i
	t.setOutputs(true)

	logrus.WithFields(logrus.Fields{
		"interval": i.Token(),
		"previous": previous.Token(),
	}).Infof("watering %s", reason)

	t.emit(Transition{
		From:            from,
		To:              StateRunning,
		Interval:        i,
		Previous:        previous,
		Reason:          reason,
		RemainingMillis: t.remainingMillis,
	})
}

// Stop switches the relay off immediately and returns the token that was
// active before the call. Stopping an idle timer returns "" and changes
// nothing.
func (t *Timer) Stop() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.state()
	if from == StateIdle {
		return ""
	}

	previous := t.requested
	remaining := t.remainingMillis
	t.reset()

	logrus.WithFields(logrus.Fields{
		"interval":         previous.Token(),
		"remainingSeconds": max(0, remaining/1000),
	}).Info("watering stopped")

	t.emit(Transition{
		From:     from,
		To:       StateIdle,
		Previous: previous,
		Reason:   ReasonStopped,
	})

	return previous.Token()
}

// Tick advances the countdown to now, a reading of the same monotonic clock
// given to WithClock. When the countdown reaches zero the relay is switched
// off within the same call.
func (t *Timer) Tick(now int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.remainingMillis > 0 {
		elapsed := now - t.lastTick
		if elapsed < 0 {
			elapsed = 0
		}
		t.remainingMillis -= elapsed
		t.lastTick = now
		if t.remainingMillis < 0 {
			t.remainingMillis = 0
		}
	}

	if t.remainingMillis == 0 {
		previous := t.requested
		t.reset()

		logrus.WithField("interval", previous.Token()).Info("watering finished")

		t.emit(Transition{
			From:     StateExpired,
			To:       StateIdle,
			Previous: previous,
			Reason:   ReasonExpired,
		})
	}
}

// TickNow calls Tick with the current clock reading.
func (t *Timer) TickNow() {
	t.Tick(t.now())
}

// Status reports the remaining time and active interval.
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Status{
		State:            t.state(),
		RelayOn:          t.relayOn,
		RemainingSeconds: max(0, t.remainingMillis/1000),
		Interval:         t.requested,
	}
}

func (t *Timer) state() State {
	switch {
	case t.remainingMillis > 0:
		return StateRunning
	case t.remainingMillis == 0:
		return StateExpired
	default:
		return StateIdle
	}
}

func (t *Timer) reset() {
	t.setOutputs(false)
	t.remainingMillis = idleMillis
	t.lastTick = 0
	t.requested = None
}

func (t *Timer) setOutputs(on bool) {
	t.relayOn = on

	if t.relay != nil {
		if err := t.relay.Set(on); err != nil {
			logrus.Errorf("failed to switch relay to %t: %v", on, err)
		}
	}

	if t.indicator != nil {
		if err := t.indicator.Set(on); err != nil {
			logrus.Errorf("failed to switch indicator to %t: %v", on, err)
		}
	}
}

func (t *Timer) emit(tr Transition) {
	tr.At = t.wall()
	for _, fn := range t.listeners {
		fn(tr)
	}
}
