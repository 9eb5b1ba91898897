package scheduler

import (
	"context"
	"errors"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/backup"
	"gsb/internal/config"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// SettingsProvider is consulted at the start of every iteration.
type SettingsProvider interface {
	Settings() (config.Settings, error)
}

// Health is a point-in-time copy of the scheduler state. Timestamps are unix
// seconds.
type Health struct {
	Active        bool    `json:"active"`
	LastSuccessAt *int64  `json:"last_success_at"`
	LastFailureAt *int64  `json:"last_failure_at"`
	LastError     *string `json:"last_error"`
}

// Runner is the backup work the scheduler drives; *backup.Job implements it.
type Runner interface {
	Run(ctx context.Context, settings config.Settings, opts archive.CreateOptions) (*backup.Result, error)
	Store() *archive.Store
}

type Scheduler struct {
	job      Runner
	settings SettingsProvider
	metrics  *metrics

	minInterval time.Duration
	now         func() time.Time

	mu     sync.Mutex
	health Health
	cancel context.CancelFunc
	done   chan struct{}
}

func New(job Runner, settings SettingsProvider, reg prometheus.Registerer) *Scheduler {
	return &Scheduler{
		job:         job,
		settings:    settings,
		metrics:     newMetrics(reg),
		minInterval: config.MinBackupInterval,
		now:         time.Now,
	}
}

// Health returns a snapshot safe to hand to other goroutines.
func (s *Scheduler) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Health{Active: s.health.Active}
	if s.health.LastSuccessAt != nil {
		v := *s.health.LastSuccessAt
		h.LastSuccessAt = &v
	}
	if s.health.LastFailureAt != nil {
		v := *s.health.LastFailureAt
		h.LastFailureAt = &v
	}
	if s.health.LastError != nil {
		v := *s.health.LastError
		h.LastError = &v
	}
	return h
}

// Start launches the backup loop. It stops when ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.health.Active {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.health.Active = true
	s.metrics.active.Set(1)

	go s.loop(ctx, s.done)
	slog.Info("Scheduler started")
	return nil
}

// Stop ends the loop at the next iteration boundary and waits for it. An
// in-flight backup runs to completion first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.health.Active = false
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	s.metrics.active.Set(0)
	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.health.Active = false
			s.metrics.active.Set(0)
		}
		s.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		settings, err := s.settings.Settings()
		if err != nil {
			slog.Error("Failed to reload settings", "error", err)
			s.recordFailure(err)
		}

		wait := s.wait(settings)
		slog.Debug("Waiting for next backup", "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil || err != nil {
			continue
		}

		// The backup itself is not interrupted by Stop.
		if _, err := s.run(context.WithoutCancel(ctx), settings, "scheduled", archive.CreateOptions{}); err != nil {
			slog.Error("Scheduled backup failed", "error", err)
		}
	}
}

// wait is the pause before the next scheduled backup, never below the floor.
func (s *Scheduler) wait(settings config.Settings) time.Duration {
	return max(settings.Interval(), s.minInterval)
}

// ExecuteAndPrune runs one backup synchronously outside the loop and records
// the outcome in the same health fields.
func (s *Scheduler) ExecuteAndPrune(ctx context.Context, notes string) (*backup.Result, error) {
	settings, err := s.settings.Settings()
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	return s.run(ctx, settings, "manual", archive.CreateOptions{Notes: notes})
}

func (s *Scheduler) run(ctx context.Context, settings config.Settings, trigger string, opts archive.CreateOptions) (*backup.Result, error) {
	start := time.Now()
	res, err := s.job.Run(ctx, settings, opts)
	s.metrics.duration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.runs.WithLabelValues(trigger, "failure").Inc()
		s.recordFailure(err)
		return res, fmt.Errorf("backup failed: %w", err)
	}

	s.metrics.runs.WithLabelValues(trigger, "success").Inc()
	s.recordSuccess()
	if list, err := s.job.Store().List(); err == nil {
		s.metrics.archives.Set(float64(len(list)))
	}
	return res, nil
}

func (s *Scheduler) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().Unix()
	s.health.LastSuccessAt = &now
	s.health.LastError = nil
	s.metrics.lastSuccess.Set(float64(now))
}

func (s *Scheduler) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().Unix()
	msg := err.Error()
	s.health.LastFailureAt = &now
	s.health.LastError = &msg
}
