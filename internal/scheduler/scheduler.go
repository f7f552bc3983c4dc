// Package scheduler fires the scrape job on a configured trigger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/clock/system"
)

// Mode selects the trigger kind.
type Mode string

// Supported trigger kinds.
const (
	ModeOnce     Mode = "once"
	ModeInterval Mode = "interval"
	ModeCron     Mode = "cron"
)

// Job is the unit of work fired by the scheduler.
type Job func(ctx context.Context) error

// Clock supplies the current time and timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Config configures the trigger.
type Config struct {
	Mode Mode
	// At is the single firing instant for ModeOnce.
	At time.Time
	// Interval is the period for ModeInterval.
	Interval time.Duration
	// Cron is a standard five-field expression for ModeCron.
	Cron string
	// RunOnStart fires the job once immediately when Run starts.
	RunOnStart bool
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = ModeOnce
	}
}

type trigger interface {
	// next returns the firing time following now, or false when the
	// trigger is exhausted.
	next(now time.Time) (time.Time, bool)
}

// Scheduler owns one trigger and one job. Firings never overlap: if the job
// is still running when the trigger fires, that firing is skipped.
type Scheduler struct {
	cfg     Config
	job     Job
	trigger trigger
	clock   Clock
	logger  *zap.Logger

	running atomic.Bool
	fired   atomic.Int64
	skipped atomic.Int64
	wg      sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New validates cfg and builds a Scheduler for job.
func New(cfg Config, job Job, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	cfg.defaults()
	t, err := newTrigger(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:     cfg,
		job:     job,
		trigger: t,
		clock:   system.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newTrigger(cfg Config) (trigger, error) {
	switch cfg.Mode {
	case ModeOnce:
		if cfg.At.IsZero() {
			return nil, errors.New("schedule.at is required for once mode")
		}
		return &onceTrigger{at: cfg.At}, nil
	case ModeInterval:
		if cfg.Interval <= 0 {
			return nil, errors.New("schedule.interval must be > 0")
		}
		return intervalTrigger{every: cfg.Interval}, nil
	case ModeCron:
		sched, err := cron.ParseStandard(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse schedule.cron %q: %w", cfg.Cron, err)
		}
		return cronTrigger{schedule: sched}, nil
	default:
		return nil, fmt.Errorf("unknown schedule.mode %q", cfg.Mode)
	}
}

// Run waits for each firing and starts the job. It returns when ctx is
// cancelled or the trigger has no further firings, after any in-flight job
// has finished.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.wg.Wait()

	if s.cfg.RunOnStart {
		s.fire(ctx)
	}

	first := true
	for {
		now := s.clock.Now()
		at, ok := s.trigger.next(now)
		if !ok {
			if first && s.cfg.Mode == ModeOnce {
				s.logger.Warn("scheduled instant already passed, job skipped",
					zap.Time("at", s.cfg.At), zap.Time("now", now))
			} else {
				s.logger.Info("schedule exhausted", zap.String("mode", string(s.cfg.Mode)))
			}
			return
		}
		first = false
		s.logger.Info("next run scheduled", zap.String("mode", string(s.cfg.Mode)), zap.Time("at", at))

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(at.Sub(now)):
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous run still active, firing skipped")
		return
	}
	s.fired.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if err := s.runJob(ctx); err != nil {
			s.logger.Error("scheduled run failed", zap.Error(err))
		}
	}()
}

// runJob converts a panicking job into an error so the process keeps serving.
func (s *Scheduler) runJob(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic recovered in scheduled run", zap.Any("panic", rec))
			err = fmt.Errorf("scheduled run panicked: %v", rec)
		}
	}()
	return s.job(ctx)
}

type onceTrigger struct {
	at   time.Time
	done bool
}

func (t *onceTrigger) next(now time.Time) (time.Time, bool) {
	if t.done || t.at.Before(now) {
		return time.Time{}, false
	}
	t.done = true
	return t.at, true
}

type intervalTrigger struct {
	every time.Duration
}

func (t intervalTrigger) next(now time.Time) (time.Time, bool) {
	return now.Add(t.every), true
}

type cronTrigger struct {
	schedule cron.Schedule
}

func (t cronTrigger) next(now time.Time) (time.Time, bool) {
	at := t.schedule.Next(now)
	return at, !at.IsZero()
}
