package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	leadDuration     = time.Minute // leadDuration is how long before a run OnUpcoming fires.
	preCheckMaxTimes = 6
	preCheckInterval = time.Second * 10
	// idleWait is how long the loop sleeps when nothing is scheduled. Control
	// messages wake it up early.
	idleWait = time.Hour * 10000
)

// Scheduler runs Task at the times described by a cron expression.
type Scheduler struct {
	OnUpcoming func(runAt time.Time) // called leadDuration before running the task
	OnError    func(err error)       // called on precheck or task error
	Task       func() error
	PreCheck   func() error // must pass before Task runs; retried a few times

	parser cron.Parser

	expr     string
	schedule cron.Schedule
	nextRun  time.Time

	mu      sync.Mutex
	running bool

	controlCh chan controlMsg
	stopCh    chan struct{}
}

type controlKind int

const (
	ctrlRecalculate controlKind = iota // schedule changed, recalculate timer
	ctrlPostpone                       // next run postponed
	ctrlSkip                           // next run skipped
	ctrlDisable                        // schedule removed
)

func (k controlKind) String() string {
	switch k {
	case ctrlRecalculate:
		return "recalculate"
	case ctrlPostpone:
		return "postpone"
	case ctrlSkip:
		return "skip"
	case ctrlDisable:
		return "disable"
	default:
		return "unknown"
	}
}

type controlMsg struct {
	kind controlKind
	data any
}

func NewScheduler(task, preCheck func() error, onUpcoming func(time.Time), onError func(error)) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Task:       task,
		PreCheck:   preCheck,
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh:  make(chan controlMsg, 4),
		stopCh:     make(chan struct{}),
	}
}

// Validate reports whether expr is a cron expression the scheduler accepts.
func (s *Scheduler) Validate(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

// Schedule replaces the current schedule. An empty expression disables it.
func (s *Scheduler) Schedule(expr string) error {
	if expr == "" {
		s.Disable()
		return nil
	}

	sh, err := s.parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s.mu.Lock()
	s.expr = expr
	s.schedule = sh
	s.nextRun = sh.Next(time.Now())
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, nil)
	}
	return nil
}

// Disable removes the schedule.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	s.expr = ""
	s.schedule = nil
	s.nextRun = time.Time{}
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlDisable, nil)
	}
}

// Postpone postpones the next scheduled run by the given duration.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	orig := s.nextRun
	next := s.schedule.Next(orig).Truncate(time.Second)
	running := s.running
	s.mu.Unlock()

	if !running {
		return fmt.Errorf("no active schedule to postpone")
	}

	pp := orig.Add(d).Truncate(time.Second)
	if pp.Compare(next) >= 0 {
		return fmt.Errorf("postpone duration too long: next run would pass the one after it (%s)", next.Format(time.DateTime))
	}

	s.mu.Lock()
	s.nextRun = pp
	s.mu.Unlock()

	s.trySendControl(ctrlPostpone, pp)
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip, nil)
	}
	return nil
}

func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextRun = s.nextRun
	running = s.running
	return
}

// Expression returns the active cron expression, or "" when disabled.
func (s *Scheduler) Expression() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// NextRuns returns up to n upcoming run times starting with the next one.
func (s *Scheduler) NextRuns(n int) []time.Time {
	schedule, next := s.snapshot()
	if schedule == nil || next.IsZero() || n <= 0 {
		return nil
	}

	runs := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		runs = append(runs, next)
		next = schedule.Next(next)
	}
	return runs
}

// pendingRun is the run the loop is currently waiting for.
type pendingRun struct {
	at        time.Time
	announced bool
	attempts  int
	lastErr   error
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		schedule, at := s.snapshot()
		var p *pendingRun
		if schedule != nil && !at.IsZero() {
			p = &pendingRun{at: at}
		}
		if !s.wait(p) {
			return
		}
	}
}

// wait drives p until it has run, been given up, or been invalidated by a
// control message. A nil p waits for control messages only. It returns
// false once the scheduler is stopped.
func (s *Scheduler) wait(p *pendingRun) bool {
	d := idleWait
	if p != nil {
		d = untilLead(p.at)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return false
		case msg := <-s.controlCh:
			logrus.WithFields(logrus.Fields{
				"kind": msg.kind.String(),
				"data": msg.data,
			}).Debug("received control msg")

			if msg.kind != ctrlPostpone || p == nil {
				return true
			}
			// Only the pending run moves, so it is announced again.
			p.at = msg.data.(time.Time)
			p.announced = false
			timer.Reset(untilLead(p.at))
		case <-timer.C:
			if p == nil {
				return true
			}
			next, done := s.fire(p)
			if done {
				return true
			}
			timer.Reset(next)
		}
	}
}

// fire is called each time the timer for p goes off. The first call
// announces the run and the following ones try to run it. It returns how
// long to wait before the next call, or done once p is finished.
func (s *Scheduler) fire(p *pendingRun) (next time.Duration, done bool) {
	if !p.announced {
		p.announced = true
		logrus.Debugf("upcoming scheduled watering at %s", p.at.Format(time.DateTime))
		s.sendUpcoming(p.at)
		return max(0, time.Until(p.at)), false
	}

	logrus.Debugf("running scheduled watering planned for %s", p.at.Format(time.DateTime))

	if s.PreCheck != nil {
		if err := s.PreCheck(); err != nil {
			// Report each distinct failure once, not on every retry.
			if p.lastErr == nil || err.Error() != p.lastErr.Error() {
				p.lastErr = err
				s.sendError(fmt.Errorf("precheck failed: %w", err))
			}

			p.attempts++
			if p.attempts <= preCheckMaxTimes {
				logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", p.attempts, preCheckMaxTimes, err, preCheckInterval)
				return preCheckInterval, false
			}

			logrus.Warnf("skipping scheduled watering planned for %s: %v", p.at.Format(time.DateTime), err)
			s.advanceNextRun()
			return 0, true
		}
	}

	go func() {
		if err := s.Task(); err != nil {
			s.sendError(fmt.Errorf("task failed: %w", err))
		}
	}()
	s.advanceNextRun()
	return 0, true
}

// untilLead is the wait before announcing a run at t.
func untilLead(t time.Time) time.Duration {
	return max(0, time.Until(t)-leadDuration)
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advanceNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(s.nextRun)
}

func (s *Scheduler) sendUpcoming(runAt time.Time) {
	if s.OnUpcoming == nil {
		return
	}

	go s.OnUpcoming(runAt)
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}
