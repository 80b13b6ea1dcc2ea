/*
runner.go - Daily rotation runner

PURPOSE:
  Once per day, compares every rotating worker's stored status with what
  the regime clock derives for today and applies the difference.

FLOW:
  1. Claim today's run marker (compare-and-set). Lost claim = no-op.
  2. Load active workers.
  3. For each eligible worker (bounded pool):
     a. Compute the expected status
     b. If it differs from the stored status:
        - status   := derived status
        - anchor   := first day of the current phase
        - location := derived location
        - append one history entry (source "automatic")
     c. Tell the notifier (best effort)
  4. Return a summary with one result per evaluated worker.

ELIGIBILITY:
  regime in {1/1, 2/2, 3/3, always} and status not in
  {interrupted, departed, unassigned}. Status is checked first: among
  workers the runner owns, unknown regimes are reported as skipped with an
  error; they never abort the run.

FAILURE ISOLATION:
  A failed write for one worker is recorded in its result and processing
  continues. Its stored status was not changed, so the next run detects
  the same mismatch and retries. Only a failure to claim the marker or to
  list workers aborts the run; in the latter case the claim is released
  so the day can be retried.

RE-ANCHORING:
  Moving the anchor to the phase start on every transition keeps the
  arithmetic short-range: the next run computes from a recent anchor
  instead of the worker's first day aboard.
*/
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/rotation-engine/generic"
	"golang.org/x/sync/errgroup"
)

// Outcome of evaluating one worker.
type Outcome string

const (
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeFailed       Outcome = "failed"
)

// WorkerResult is the per-worker line of a run summary.
type WorkerResult struct {
	WorkerID generic.WorkerID
	Outcome  Outcome
	From     generic.Status
	To       generic.Status
	Err      error
}

// RunSummary is the only output of a run.
type RunSummary struct {
	Date         generic.Date
	AlreadyRan   bool
	TotalChanges int
	Results      []WorkerResult
}

// Failed returns the results that carry an error.
func (s RunSummary) Failed() []WorkerResult {
	var out []WorkerResult
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Store is a single backing store serving both runner collaborators.
type Store interface {
	generic.CrewRepository
	generic.RotationHistoryStore
}

// Runner applies due rotation transitions.
type Runner struct {
	Crew     generic.CrewRepository
	History  generic.RotationHistoryStore
	Notifier generic.Notifier
	Logger   *slog.Logger

	// Transitions, when set, applies worker update + history append in one
	// transaction. Otherwise the two writes happen in sequence.
	Transitions generic.TransitionStore

	// Concurrency bounds the per-worker pool (1 = sequential).
	Concurrency int

	// Now stamps history entries; defaults to time.Now.
	Now func() time.Time
}

// NewRunner wires a runner against one store, using atomic transitions
// when the store supports them.
func NewRunner(store Store, notifier generic.Notifier, logger *slog.Logger) *Runner {
	if notifier == nil {
		notifier = generic.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		Crew:        store,
		History:     store,
		Notifier:    notifier,
		Logger:      logger.With("component", "runner"),
		Concurrency: 1,
	}
	if ts, ok := store.(generic.TransitionStore); ok {
		r.Transitions = ts
	}
	return r
}

// RunOnce processes all workers for today. Calling it again for the same
// day (or an earlier one) is a no-op that reports AlreadyRan.
func (r *Runner) RunOnce(ctx context.Context, today generic.Date) (RunSummary, error) {
	logger := r.logger()
	summary := RunSummary{Date: today}

	previous, err := r.Crew.LastRunDate(ctx)
	if err != nil {
		return summary, fmt.Errorf("read run marker: %w", err)
	}
	claimed, err := r.Crew.ClaimRunDate(ctx, today)
	if err != nil {
		return summary, fmt.Errorf("claim run marker: %w", err)
	}
	if !claimed {
		logger.Info("run already claimed, skipping", "date", today.String(), "error", generic.ErrMarkerWriteRace)
		summary.AlreadyRan = true
		return summary, nil
	}

	workers, err := r.Crew.ActiveRotationWorkers(ctx)
	if err != nil {
		if relErr := r.Crew.ReleaseRunDate(ctx, today, previous); relErr != nil {
			logger.Error("release run marker", "date", today.String(), "error", relErr)
		}
		return summary, fmt.Errorf("list active workers: %w", err)
	}

	results := make([]WorkerResult, len(workers))
	evaluated := make([]bool, len(workers))

	g := new(errgroup.Group)
	g.SetLimit(max(1, r.Concurrency))
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			results[i], evaluated[i] = r.processWorker(ctx, w, today)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in results

	for i, ok := range evaluated {
		if !ok {
			continue
		}
		summary.Results = append(summary.Results, results[i])
		if results[i].Outcome == OutcomeTransitioned {
			summary.TotalChanges++
		}
	}

	logger.Info("rotation run complete",
		"date", today.String(),
		"evaluated", len(summary.Results),
		"changes", summary.TotalChanges,
		"errors", len(summary.Failed()))
	return summary, nil
}

// ownsStatus reports whether the runner may change w's stored status.
// Checked before the regime so an interrupted or unassigned worker never
// shows up in a summary, whatever its regime holds.
func ownsStatus(w generic.Worker) bool {
	switch w.CurrentStatus {
	case generic.StatusInterrupted, generic.StatusDeparted, generic.StatusUnassigned:
		return false
	}
	return true
}

func (r *Runner) processWorker(ctx context.Context, w generic.Worker, today generic.Date) (WorkerResult, bool) {
	result := WorkerResult{WorkerID: w.ID, From: w.CurrentStatus, To: w.CurrentStatus}

	if !ownsStatus(w) {
		return result, false
	}
	if !w.Regime.Valid() {
		result.Outcome = OutcomeSkipped
		result.Err = &generic.UnrecognizedRegimeError{WorkerID: w.ID, Value: string(w.Regime)}
		r.logger().Warn("skipping worker", "worker", w.ID, "error", result.Err)
		return result, true
	}
	if !w.Regime.Scheduled() {
		return result, false
	}

	res, err := ComputeFor(w, today)
	if err != nil {
		result.Outcome = OutcomeSkipped
		result.Err = err
		return result, true
	}

	derived := res.Status.Stored()
	if derived == w.CurrentStatus {
		result.Outcome = OutcomeUnchanged
		return result, true
	}

	state, effective := transitionState(w, res, today)
	entry := generic.RotationHistoryEntry{
		WorkerID:      w.ID,
		EffectiveDate: effective,
		From:          w.CurrentStatus,
		To:            derived,
		Source:        generic.HistorySourceAutomatic,
		RecordedAt:    r.now(),
	}

	if err := r.apply(ctx, w.ID, w.RotationState(), state, entry); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("%w: worker %s: %w", generic.ErrPersistenceWriteFailed, w.ID, err)
		r.logger().Error("apply transition", "worker", w.ID, "error", err)
		return result, true
	}

	result.Outcome = OutcomeTransitioned
	result.To = derived
	r.logger().Info("worker rotated", "worker", w.ID, "from", w.CurrentStatus, "to", derived,
		"effective", effective.String())

	if err := r.notifier().NotifyTransition(ctx, w.ID, w.CurrentStatus, derived, effective); err != nil {
		r.logger().Warn("notify transition", "worker", w.ID, "error", err)
	}
	return result, true
}

// transitionState builds the new rotation fields and the effective date of
// the boundary being crossed.
func transitionState(w generic.Worker, res ClockResult, today generic.Date) (generic.RotationState, generic.Date) {
	state := generic.RotationState{
		Status:         res.Status.Stored(),
		AnchorDate:     w.AnchorDate,
		AnchorLocation: w.AnchorLocation,
	}
	if !res.PhaseStart.IsZero() {
		state.AnchorDate = res.PhaseStart
		state.AnchorLocation, _ = res.Status.Location()
		return state, res.PhaseStart
	}
	if res.Status == generic.StatusAboard {
		// always: pinned aboard, no boundary to re-anchor on
		state.AnchorLocation = generic.LocationAboard
	}
	// scheduled: the pending anchor stays as-is
	return state, today
}

// apply writes one transition. Without a TransitionStore, a failed history
// append rolls the worker back to prev so the next run re-detects it.
func (r *Runner) apply(ctx context.Context, id generic.WorkerID, prev, state generic.RotationState, entry generic.RotationHistoryEntry) error {
	if r.Transitions != nil {
		return r.Transitions.ApplyTransition(ctx, id, state, entry)
	}
	if err := r.Crew.UpdateRotationState(ctx, id, state); err != nil {
		return err
	}
	if err := r.History.Append(ctx, entry); err != nil {
		if rbErr := r.Crew.UpdateRotationState(ctx, id, prev); rbErr != nil {
			r.logger().Error("roll back rotation state", "worker", id, "error", rbErr)
		}
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) notifier() generic.Notifier {
	if r.Notifier == nil {
		return generic.NopNotifier{}
	}
	return r.Notifier
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
