package daemon

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestCronParse(t *testing.T) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse("0 6 * * *")
	if err != nil {
		t.Fatalf("failed to parse cron expression: %v", err)
	}

	now := time.Now()
	next1 := schedule.Next(now)
	next2 := schedule.Next(next1)

	if next1.Hour() != 6 || next1.Minute() != 0 {
		t.Fatalf("expected a run at 06:00, got %v", next1)
	}
	if !next2.After(next1) {
		t.Fatalf("expected next2 to be after next1, got next1=%v next2=%v", next1, next2)
	}
}

func TestSchedulerScheduleStatus(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)

	if err := s.Schedule("@every 1m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	next, running := s.Status()
	if running {
		t.Fatalf("scheduler should not be running")
	}
	if next.IsZero() {
		t.Fatalf("next run should be set after scheduling")
	}
	if got := s.Expression(); got != "@every 1m" {
		t.Fatalf("Expression() = %q", got)
	}
}

func TestSchedulerInvalidExpression(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)

	if err := s.Schedule("every morning"); err == nil {
		t.Fatalf("expected error for invalid expression")
	}
	if err := s.Validate("61 * * * *"); err == nil {
		t.Fatalf("expected error for out of range minute")
	}
	if next, _ := s.Status(); !next.IsZero() {
		t.Fatalf("invalid expression must not set a next run, got %v", next)
	}
}

func TestSchedulerDisable(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.Start()
	defer s.Stop()

	if err := s.Schedule(""); err != nil {
		t.Fatalf("Schedule(\"\") returned error: %v", err)
	}

	next, _ := s.Status()
	if !next.IsZero() {
		t.Fatalf("expected no next run after disabling, got %v", next)
	}
	if s.Expression() != "" {
		t.Fatalf("expected empty expression after disabling")
	}
	if runs := s.NextRuns(3); len(runs) != 0 {
		t.Fatalf("expected no upcoming runs, got %v", runs)
	}
	if err := s.Skip(); err == nil {
		t.Fatalf("skip must fail without a schedule")
	}
}

func TestSchedulerNextRuns(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	runs := s.NextRuns(3)
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if got := runs[i].Sub(runs[i-1]); got != 10*time.Minute {
			t.Fatalf("runs %d and %d are %v apart, want 10m", i-1, i, got)
		}
	}
}

func TestSchedulerSkip(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	orig, _ := s.Status()
	if orig.IsZero() {
		t.Fatalf("expected next run after scheduling")
	}

	s.Start()
	defer s.Stop()

	if err := s.Skip(); err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	skipped, _ := s.Status()
	if !skipped.After(orig) {
		t.Fatalf("expected skip to move schedule forward, got %v <= %v", skipped, orig)
	}
}

func TestSchedulerPostpone(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	if err := s.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	if err := s.Postpone(10 * time.Minute); err == nil {
		t.Fatalf("postpone must fail while the scheduler is not running")
	}

	s.Start()
	defer s.Stop()

	orig, _ := s.Status()
	if err := s.Postpone(10 * time.Minute); err != nil {
		t.Fatalf("Postpone returned error: %v", err)
	}
	pp, _ := s.Status()
	if want := orig.Add(10 * time.Minute).Truncate(time.Second); !pp.Equal(want) {
		t.Fatalf("expected next run %v, got %v", want, pp)
	}

	if err := s.Postpone(2 * time.Hour); err == nil {
		t.Fatalf("postponing past the following run must fail")
	}
	if err := s.Postpone(0); err == nil {
		t.Fatalf("zero postpone must fail")
	}
}

func TestSchedulerRunCycle(t *testing.T) {
	notifyCh := make(chan time.Time, 1)
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	var preChecks int32

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}

	preCheck := func() error {
		atomic.AddInt32(&preChecks, 1)
		return nil
	}

	onUpcoming := func(runAt time.Time) {
		notifyCh <- runAt
	}

	onError := func(err error) {
		errCh <- err
	}

	s := NewScheduler(task, preCheck, onUpcoming, onError)
	if err := s.Schedule("@every 1s"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	forcedNext := time.Now().Add(50 * time.Millisecond)
	s.mu.Lock()
	s.nextRun = forcedNext
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case runAt := <-notifyCh:
		if !runAt.Equal(forcedNext) {
			t.Fatalf("upcoming notification for %v, want %v", runAt, forcedNext)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive upcoming notification in time")
	}

	select {
	case <-taskCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not execute in time")
	}

	if atomic.LoadInt32(&preChecks) == 0 {
		t.Fatalf("precheck should have been executed")
	}

	select {
	case err := <-errCh:
		t.Fatalf("unexpected error callback: %v", err)
	default:
	}
}

func TestSchedulerPreCheckFailure(t *testing.T) {
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 2)

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}

	preCheck := func() error {
		return errors.New("watering already in progress")
	}

	onError := func(err error) {
		errCh <- err
	}

	s := NewScheduler(task, preCheck, nil, onError)
	if err := s.Schedule("@every 1s"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.mu.Lock()
	s.nextRun = time.Now().Add(50 * time.Millisecond)
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatalf("expected error callback from failed precheck")
	}

	select {
	case <-taskCh:
		t.Fatalf("task should not execute when precheck fails")
	default:
	}
}
