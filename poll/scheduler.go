package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cisdel-notifier/pkg/notifier"
)

// Scheduler limits and defaults.
const (
	MinInterval     = 30 * time.Second
	MinBackup       = time.Minute
	DefaultInterval = 5 * time.Minute
	DefaultBackup   = 15 * time.Minute
)

// ErrCycleRunning is returned by Trigger when a cycle is already in flight.
var ErrCycleRunning = errors.New("check cycle already running")

// Checker runs one check cycle.
type Checker interface {
	Check(ctx context.Context) error
}

// Scheduler triggers check cycles from a primary ticker and a coarser backup
// ticker. The backup re-arms the primary if it is found missing. At most one
// cycle runs at a time; overlapping triggers are dropped.
type Scheduler struct {
	checker Checker
	store   Store
	logger  *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	backup   time.Duration
	primary  *time.Ticker

	running atomic.Bool
}

// NewScheduler creates a scheduler. Intervals below the minimums are raised to them.
func NewScheduler(checker Checker, store Store, interval, backup time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		logger.Warn("Check interval below minimum, clamping", "interval", interval.String(), "minimum", MinInterval.String())
		interval = MinInterval
	}
	if backup <= 0 {
		backup = DefaultBackup
	}
	if backup < MinBackup {
		logger.Warn("Backup interval below minimum, clamping", "interval", backup.String(), "minimum", MinBackup.String())
		backup = MinBackup
	}
	return &Scheduler{
		checker:  checker,
		store:    store,
		logger:   logger,
		interval: interval,
		backup:   backup,
	}
}

// Interval returns the current primary interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Run triggers cycles until ctx is done. A persisted interval overrides the configured one.
func (s *Scheduler) Run(ctx context.Context) error {
	s.restoreInterval(ctx)

	s.arm()
	defer s.disarm()
	backup := time.NewTicker(s.backup)
	defer backup.Stop()

	s.logger.Info("Scheduler started", "interval", s.Interval().String(), "backup", s.backup.String())
	s.Trigger(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-s.primaryC():
			s.Trigger(ctx, "timer")
		case <-backup.C:
			if s.arm() {
				s.logger.Warn("Primary timer was missing, re-armed", "interval", s.Interval().String())
			}
			s.Trigger(ctx, "backup")
		}
	}
}

// Trigger runs one cycle unless one is already running, in which case it
// returns ErrCycleRunning. A panicking cycle is recovered and reported as an error.
func (s *Scheduler) Trigger(ctx context.Context, source string) (err error) {
	if !s.running.CompareAndSwap(false, true) {
		mSkipped.Inc()
		s.logger.Warn("Check already running, skipping trigger", "source", source)
		return ErrCycleRunning
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Check cycle panicked", "source", source, "panic", fmt.Sprint(r))
			err = fmt.Errorf("check cycle panicked: %v", r)
		}
	}()

	s.logger.Info("Check triggered", "source", source)
	return s.checker.Check(ctx)
}

// SetInterval persists a new primary interval and re-arms the timer.
// Intervals below MinInterval are raised to it.
func (s *Scheduler) SetInterval(ctx context.Context, d time.Duration) error {
	if d < MinInterval {
		s.logger.Info("Raising check interval to minimum", "requested", d.String(), "minimum", MinInterval.String())
		d = MinInterval
	}
	if err := s.store.Set(ctx, notifier.KeyIntervalCheck, int(d/time.Second)); err != nil {
		return fmt.Errorf("save interval: %w", err)
	}

	s.mu.Lock()
	s.interval = d
	if s.primary != nil {
		s.primary.Reset(d)
	}
	s.mu.Unlock()

	s.logger.Info("Check interval updated", "interval", d.String())
	return nil
}

func (s *Scheduler) restoreInterval(ctx context.Context) {
	var seconds int
	found, err := s.store.Get(ctx, notifier.KeyIntervalCheck, &seconds)
	if err != nil {
		s.logger.Warn("Failed to read stored interval", "error", err)
		return
	}
	if !found {
		return
	}
	d := time.Duration(seconds) * time.Second
	if d < MinInterval {
		s.logger.Warn("Ignoring stored interval below minimum", "interval", d.String())
		return
	}

	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// arm starts the primary ticker if it is not running and reports whether it did.
func (s *Scheduler) arm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary != nil {
		return false
	}
	s.primary = time.NewTicker(s.interval)
	return true
}

func (s *Scheduler) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary != nil {
		s.primary.Stop()
		s.primary = nil
	}
}

// primaryC returns the primary tick channel, or nil (blocks forever) when disarmed.
func (s *Scheduler) primaryC() <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary == nil {
		return nil
	}
	return s.primary.C
}
