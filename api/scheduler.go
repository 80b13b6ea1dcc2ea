/*
scheduler.go - Daily rotation scheduler

PURPOSE:
  Invokes the rotation runner once per day on a cron schedule, in the
  configured timezone. The runner's own run marker makes extra firings
  (restarts, several replicas) harmless no-ops.

DESIGN:
  - robfig/cron drives the schedule (standard 5-field expressions)
  - Each firing computes "today" in the scheduler's timezone
  - The last summary is kept for the admin endpoint

CONFIGURATION:
  - Spec:     cron expression (default: "5 0 * * *")
  - Location: timezone used for both the schedule and "today"
  - Enabled:  whether the scheduler is active (default: true)

USAGE:
  scheduler, err := NewRotationScheduler(runner, "5 0 * * *", loc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - rotation/runner.go: RunOnce
  - handlers.go: TriggerRotationRun (manual run)
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/rotation-engine/generic"
	"github.com/warp/rotation-engine/rotation"
)

// runTimeout bounds one scheduled run; persistence calls inherit it.
const runTimeout = 10 * time.Minute

// DailyRunner is the part of rotation.Runner the scheduler needs.
type DailyRunner interface {
	RunOnce(ctx context.Context, today generic.Date) (rotation.RunSummary, error)
}

// RotationScheduler fires the runner on a cron schedule.
type RotationScheduler struct {
	Runner   DailyRunner
	Spec     string
	Location *time.Location
	Enabled  bool
	Logger   *slog.Logger

	cron    *cron.Cron
	entry   cron.EntryID
	mu      sync.Mutex
	last    *rotation.RunSummary
	lastErr error
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewRotationScheduler validates spec and prepares (but does not start) the scheduler.
func NewRotationScheduler(runner DailyRunner, spec string, loc *time.Location, logger *slog.Logger) (*RotationScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	rs := &RotationScheduler{
		Runner:   runner,
		Spec:     spec,
		Location: loc,
		Enabled:  true,
		Logger:   logger.With("component", "scheduler"),
		cron:     cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
	}
	id, err := rs.cron.AddFunc(spec, rs.checkAndProcess)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron %q: %w", spec, err)
	}
	rs.entry = id
	return rs, nil
}

// Start begins the scheduler.
func (rs *RotationScheduler) Start() {
	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	rs.cron.Start()
	rs.Logger.Info("started", "cron", rs.Spec, "timezone", rs.Location.String(), "next", rs.NextRunTime())
}

// Stop stops the scheduler and waits for a running job to finish.
func (rs *RotationScheduler) Stop() {
	<-rs.cron.Stop().Done()
	rs.Logger.Info("stopped")
}

// RunNow triggers an immediate run for today (for testing/admin).
func (rs *RotationScheduler) RunNow() {
	rs.checkAndProcess()
}

// NextRunTime returns when the next scheduled run will occur.
func (rs *RotationScheduler) NextRunTime() time.Time {
	return rs.cron.Entry(rs.entry).Schedule.Next(time.Now().In(rs.Location))
}

// LastSummary returns the most recent scheduled run outcome, if any.
func (rs *RotationScheduler) LastSummary() (*rotation.RunSummary, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.last, rs.lastErr
}

func (rs *RotationScheduler) checkAndProcess() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	today := generic.Today(rs.Location)
	summary, err := rs.Runner.RunOnce(ctx, today)

	rs.mu.Lock()
	rs.last = &summary
	rs.lastErr = err
	rs.mu.Unlock()

	if err != nil {
		rs.Logger.Error("rotation run failed", "date", today.String(), "error", err)
		return
	}
	for _, r := range summary.Failed() {
		rs.Logger.Warn("worker not rotated", "worker", r.WorkerID, "outcome", r.Outcome, "error", r.Err)
	}
}
