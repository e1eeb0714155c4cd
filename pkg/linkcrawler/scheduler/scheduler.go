// Package scheduler fires crawl runs on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is used when Config.Interval is not positive.
const DefaultInterval = 15 * time.Minute

// ─────────────────────────────────────────────────────────────────────────────
// Runner — interface for dependency injection
// ─────────────────────────────────────────────────────────────────────────────

// Runner is the subset of app.App consumed by the scheduler.
type Runner interface {
	RunCycle(ctx context.Context) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the scheduler.
type Config struct {
	// Interval between the start of two runs. A run that takes longer than
	// Interval delays the next one; runs never overlap.
	Interval time.Duration

	// Delay postpones the first run. Zero starts immediately.
	Delay time.Duration
}

// Scheduler calls Runner.RunCycle every Interval. Runs execute on the
// scheduling goroutine, one at a time.
type Scheduler struct {
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	delay    time.Duration
	runs     int
	failures int
	lastErr  error

	trigger chan struct{}
	done    chan struct{}
}

// New creates a Scheduler. It does not start until Start is called.
func New(cfg Config, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		interval: cfg.Interval,
		delay:    cfg.Delay,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start runs the scheduling loop. It blocks until ctx is cancelled. A run in
// progress when ctx is cancelled sees the cancellation through its own ctx.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	next := time.Now().Add(s.delay)
	for {
		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
			s.logger.Info("scheduler: run triggered")
		}

		started := time.Now()
		s.fire(ctx)

		s.mu.Lock()
		interval := s.interval
		s.mu.Unlock()
		next = started.Add(interval)
	}
}

// Stop waits for the scheduling loop to exit. The caller must cancel the
// context passed to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
}

// Trigger requests a run as soon as the current one, if any, finishes.
// Requests made while one is already pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SetInterval changes the interval. It takes effect after the next run.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	s.logger.Info("scheduler: interval changed", "interval", d.String())
}

// Runs returns the number of completed runs (for monitoring / tests).
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Failures returns the number of runs that returned an error.
func (s *Scheduler) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// LastError returns the error of the most recent run, or nil.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) fire(ctx context.Context) {
	start := time.Now()
	err := s.runner.RunCycle(ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	if err != nil {
		s.failures++
	}
	runs := s.runs
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduler: run failed",
			"run", runs,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	s.logger.Debug("scheduler: run finished",
		"run", runs,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// noopWriter — discard log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
