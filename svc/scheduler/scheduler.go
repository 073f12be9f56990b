// Package scheduler runs the cron-driven reconciliation loop: reminder
// sends, the expiration sweep, and the stale pending reaper. Jobs are
// single-flighted across instances via redis locks, so running several
// replicas of the service is safe.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/subflow/pkg/joblock"
)

type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	locker *joblock.Locker
	cfg    Config
	log    *slog.Logger
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithLocker enables cross-instance single-flight for every job.
func WithLocker(locker *joblock.Locker) Option {
	return func(s *Scheduler) { s.locker = locker }
}

// WithLogger sets the logger used for job outcomes and panics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// New builds a Scheduler with the four maintenance jobs registered on their
// configured cron schedules, evaluated in the configured timezone.
func New(jobs *Jobs, cfg Config, opts ...Option) (*Scheduler, error) {
	if jobs == nil {
		panic("scheduler: Jobs is required")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		jobs: jobs,
		cfg:  cfg,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// SkipIfStillRunning keeps runs of one job from stacking within this
	// instance; the redis lock only adds cross-instance exclusion on top.
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(
			cron.Recover(cronLogger{s.log}),
			cron.SkipIfStillRunning(cronLogger{s.log}),
		),
	)

	entries := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"renewal_reminders", cfg.RenewalReminderSchedule, jobs.RunRenewalReminders},
		{"expiry_reminders", cfg.ExpiryReminderSchedule, jobs.RunExpiryReminders},
		{"expiration_sweep", cfg.ExpirationSweepSchedule, jobs.RunExpirationSweep},
		{"pending_reaper", cfg.PendingReaperSchedule, jobs.RunPendingReaper},
	}
	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.schedule, s.wrap(e.name, e.run)); err != nil {
			return nil, fmt.Errorf("scheduler: invalid schedule for %s: %w", e.name, err)
		}
	}
	return s, nil
}

// Start launches the cron loop. It is a no-op when the kill switch is set.
func (s *Scheduler) Start() {
	if s.cfg.Disabled {
		s.log.Warn("scheduler disabled, skipping all jobs")
		return
	}
	s.cron.Start()
	s.log.Info("scheduler started", slog.String("timezone", s.cfg.Timezone))
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
}

// wrap adds single-flight locking, timing, and outcome logging around a job.
func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx := context.Background()

		if s.locker != nil {
			release, acquired, err := s.locker.TryAcquire(ctx, "job:"+name, s.cfg.LockTTL)
			if err != nil {
				s.log.Error("job lock error", slog.String("job", name), slog.String("error", err.Error()))
				return
			}
			if !acquired {
				s.log.Debug("job already running elsewhere, skipping", slog.String("job", name))
				return
			}
			defer release()
		}

		started := time.Now()
		if err := run(ctx); err != nil {
			s.log.Error("job failed",
				slog.String("job", name),
				slog.Duration("took", time.Since(started)),
				slog.String("error", err.Error()))
			return
		}
		s.log.Info("job completed",
			slog.String("job", name),
			slog.Duration("took", time.Since(started)))
	}
}

// cronLogger adapts slog to the cron logger interface so recovered panics
// land in the application log.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
