package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cisdel-notifier/pkg/notifier"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

func TestTriggerSkipsOverlappingCycle(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	s := NewScheduler(checkerFunc(func(context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}), newMemStore(), 0, 0, testLogger())

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "timer") }()
	<-started

	if err := s.Trigger(context.Background(), "backup"); !errors.Is(err, ErrCycleRunning) {
		t.Errorf("overlapping Trigger() error = %v, want ErrCycleRunning", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Trigger() error = %v", err)
	}
	if n := runs.Load(); n != 1 {
		t.Errorf("cycle ran %d times, want 1", n)
	}
}

func TestTriggerRecoversPanic(t *testing.T) {
	s := NewScheduler(checkerFunc(func(context.Context) error {
		panic("nil map")
	}), newMemStore(), 0, 0, testLogger())

	if err := s.Trigger(context.Background(), "manual"); err == nil {
		t.Error("Trigger() of panicking cycle should return an error")
	}
	// The guard must be released after a panic.
	s.checker = checkerFunc(func(context.Context) error { return nil })
	if err := s.Trigger(context.Background(), "manual"); err != nil {
		t.Errorf("Trigger() after panic error = %v", err)
	}
}

func TestNewSchedulerClampsIntervals(t *testing.T) {
	s := NewScheduler(checkerFunc(func(context.Context) error { return nil }), newMemStore(), 5*time.Second, 10*time.Second, testLogger())
	if s.Interval() != MinInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), MinInterval)
	}
	if s.backup != MinBackup {
		t.Errorf("backup = %v, want %v", s.backup, MinBackup)
	}

	d := NewScheduler(checkerFunc(func(context.Context) error { return nil }), newMemStore(), 0, 0, testLogger())
	if d.Interval() != DefaultInterval || d.backup != DefaultBackup {
		t.Errorf("defaults = %v, %v", d.Interval(), d.backup)
	}
}

func TestSetInterval(t *testing.T) {
	store := newMemStore()
	s := NewScheduler(checkerFunc(func(context.Context) error { return nil }), store, 0, 0, testLogger())
	ctx := context.Background()

	if err := s.SetInterval(ctx, 10*time.Second); err != nil {
		t.Fatalf("SetInterval() below minimum error = %v", err)
	}
	var clamped int
	store.get(t, notifier.KeyIntervalCheck, &clamped)
	if clamped != 30 || s.Interval() != MinInterval {
		t.Errorf("below minimum: stored = %d, Interval() = %v; want 30, %v", clamped, s.Interval(), MinInterval)
	}

	if err := s.SetInterval(ctx, 2*time.Minute); err != nil {
		t.Fatalf("SetInterval() error = %v", err)
	}
	var seconds int
	store.get(t, notifier.KeyIntervalCheck, &seconds)
	if seconds != 120 || s.Interval() != 2*time.Minute {
		t.Errorf("stored = %d, Interval() = %v", seconds, s.Interval())
	}

	// A new scheduler picks the persisted interval up.
	restored := NewScheduler(checkerFunc(func(context.Context) error { return nil }), store, 0, 0, testLogger())
	restored.restoreInterval(ctx)
	if restored.Interval() != 2*time.Minute {
		t.Errorf("restored Interval() = %v, want 2m", restored.Interval())
	}
}

func TestRunRearmsMissingPrimary(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(checkerFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	}), newMemStore(), 0, 0, testLogger())
	// Shrink the timers below the public minimums to keep the test fast.
	s.interval = time.Hour
	s.backup = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return s.primaryC() != nil })
	s.disarm()
	waitFor(t, func() bool { return s.primaryC() != nil })
	waitFor(t, func() bool { return runs.Load() >= 2 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
