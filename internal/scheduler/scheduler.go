// Package scheduler drives the engine's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kiddoquest/internal/config"
	"kiddoquest/internal/logger"
	"kiddoquest/internal/service"
)

// Job names
const (
	JobPenaltySweep = "penalty_sweep"
	JobStreakSweep  = "streak_sweep"
	JobDailyReport  = "daily_report"
	JobWeeklyReport = "weekly_report"
)

// JobFunc runs one scheduled job at now
type JobFunc func(ctx context.Context, now time.Time) (service.RunSummary, error)

// Scheduler runs registered jobs, each bounded by a timeout. A job whose
// previous run is still going is skipped rather than stacked.
type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]JobFunc
}

// New creates a scheduler. Schedules are interpreted in UTC.
func New(log *logger.Logger, timeout time.Duration) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		timeout: timeout,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]JobFunc),
	}
}

// Add registers a job under a cron spec
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	s.jobs[name] = fn
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.Run(s.ctx, name) }); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.log.Info("Scheduled job", "job", name, "spec", spec)
	return nil
}

// Run executes a registered job immediately with the scheduler's timeout
func (s *Scheduler) Run(ctx context.Context, name string) (service.RunSummary, error) {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return service.RunSummary{}, fmt.Errorf("unknown job %q", name)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	summary, err := fn(ctx, s.now().UTC())
	if err != nil {
		s.log.Error("Scheduled job failed", "job", name, "duration", time.Since(started), "error", err)
		return summary, err
	}
	s.log.Info("Scheduled job finished", "job", name, "duration", time.Since(started),
		"processed", summary.Processed, "applied", summary.Applied, "failed", summary.Failed)
	return summary, nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out with jobs still running")
	}
}

// Services are the jobs the engine schedules
type Services struct {
	Penalties *service.PenaltyService
	Streaks   *service.StreakService
	Reports   *service.ReportService
}

// Register adds the engine's four jobs with their configured schedules
func Register(s *Scheduler, svc Services, schedules config.Schedules) error {
	jobs := []struct {
		name string
		spec string
		fn   JobFunc
	}{
		{JobPenaltySweep, schedules.PenaltySweep, svc.Penalties.DailySweep},
		{JobStreakSweep, schedules.StreakSweep, svc.Streaks.SweepStale},
		{JobDailyReport, schedules.DailyReport, svc.Reports.RunDaily},
		{JobWeeklyReport, schedules.WeeklyReport, svc.Reports.RunWeekly},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if err := s.Add(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

// cronLogger adapts the zap logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
