package rotation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/rotation-engine/generic"
)

// =============================================================================
// REGIME CHANGE - Administrative correction mid-phase
// =============================================================================

// Reanchor returns w switched to regime, keeping today's location.
//
// For a rotating worker the anchor moves to the start of the current phase
// under the old regime, so the new phase length counts from the same day the
// worker arrived where they are now. Workers coming from always or none start
// aboard today. Workers outside the rotation (interrupted, departed) only get
// the new regime; their anchor is left for recovery.
func Reanchor(w generic.Worker, regime generic.Regime, today generic.Date) (generic.Worker, error) {
	if !regime.Valid() {
		return w, &generic.UnrecognizedRegimeError{WorkerID: w.ID, Value: string(regime)}
	}

	switch w.CurrentStatus {
	case generic.StatusInterrupted, generic.StatusDeparted:
		w.Regime = regime
		return w, nil
	}

	res, err := ComputeFor(w, today)
	if err != nil {
		// An unknown stored regime can still be corrected: restart from today.
		res = ClockResult{Status: generic.StatusUnassigned}
	}

	switch {
	case !res.PhaseStart.IsZero():
		w.AnchorDate = res.PhaseStart
		w.AnchorLocation, _ = res.Status.Location()
	case res.Status == generic.StatusScheduled:
		// phase not started yet, keep the pending anchor
	default:
		// always, none or a corrupt regime: restart aboard today
		w.AnchorDate = today
		w.AnchorLocation = generic.LocationAboard
	}

	w.Regime = regime
	next, err := ComputeFor(w, today)
	if err != nil {
		return w, err
	}
	w.CurrentStatus = next.Status.Stored()
	return w, nil
}

// =============================================================================
// ACTIONS - External status changes that are not runner transitions
// =============================================================================

// Actions applies administrative changes to worker rotation fields.
type Actions struct {
	Crew   generic.CrewRepository
	Logger *slog.Logger
}

func NewActions(crew generic.CrewRepository, logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{Crew: crew, Logger: logger.With("component", "rotation")}
}

// Interrupt suspends a worker's rotation from since (e.g. illness).
// Only workers currently aboard or home can be interrupted; the anchor is
// left untouched and is reset by the recovery action.
func (a *Actions) Interrupt(ctx context.Context, id generic.WorkerID, since generic.Date) (generic.Worker, error) {
	w, err := a.Crew.GetWorker(ctx, id)
	if err != nil {
		return generic.Worker{}, err
	}
	if w.CurrentStatus != generic.StatusAboard && w.CurrentStatus != generic.StatusHome {
		return generic.Worker{}, fmt.Errorf("%w: cannot interrupt %s worker %s",
			generic.ErrInvalidTransition, w.CurrentStatus, id)
	}
	if since.IsZero() {
		return generic.Worker{}, fmt.Errorf("%w: interruption start date is required", generic.ErrInvalidTransition)
	}

	w.CurrentStatus = generic.StatusInterrupted
	w.InterruptedSince = since
	if err := a.Crew.SaveWorker(ctx, w); err != nil {
		return generic.Worker{}, fmt.Errorf("interrupt %s: %w", id, err)
	}
	a.Logger.Info("worker interrupted", "worker", id, "since", since.String())
	return w, nil
}

// ChangeRegime switches a worker's regime using Reanchor.
func (a *Actions) ChangeRegime(ctx context.Context, id generic.WorkerID, regime generic.Regime, today generic.Date) (generic.Worker, error) {
	w, err := a.Crew.GetWorker(ctx, id)
	if err != nil {
		return generic.Worker{}, err
	}
	old := w.Regime

	updated, err := Reanchor(w, regime, today)
	if err != nil {
		return generic.Worker{}, err
	}
	if err := a.Crew.SaveWorker(ctx, updated); err != nil {
		return generic.Worker{}, fmt.Errorf("change regime %s: %w", id, err)
	}
	a.Logger.Info("regime changed", "worker", id, "from", old, "to", regime,
		"anchor", updated.AnchorDate.String(), "status", updated.CurrentStatus)
	return updated, nil
}
