package standback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/rotation-engine/generic"
)

// DefaultRequiredDays is the make-up obligation created per episode.
const DefaultRequiredDays = 7

// Store is a single backing store serving both recovery collaborators.
type Store interface {
	generic.CrewRepository
	generic.StandBackRepository
}

// Recovery ends interruption episodes. It is the only creator of
// stand-back records.
type Recovery struct {
	Crew         generic.CrewRepository
	Records      generic.StandBackRepository
	RequiredDays int
	Logger       *slog.Logger
	Now          func() time.Time

	// Atomic, when set, resets the worker and creates the record in one
	// transaction. Otherwise the writes happen in sequence with rollback.
	Atomic generic.RecoveryStore
}

// NewRecovery wires recovery against one store, using the atomic path
// when the store supports it. requiredDays <= 0 selects DefaultRequiredDays.
func NewRecovery(store Store, requiredDays int, logger *slog.Logger) *Recovery {
	if requiredDays <= 0 {
		requiredDays = DefaultRequiredDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recovery{
		Crew:         store,
		Records:      store,
		RequiredDays: requiredDays,
		Logger:       logger.With("component", "recovery"),
	}
	if rs, ok := store.(generic.RecoveryStore); ok {
		r.Atomic = rs
	}
	return r
}

// Recover marks an interrupted worker as back aboard on returnDate.
//
// Effects, applied as one unit:
//   - worker: status aboard, anchor = returnDate, anchor location aboard
//   - ledger: a new open record with the policy's required days
func (r *Recovery) Recover(ctx context.Context, id generic.WorkerID, returnDate generic.Date) (generic.Worker, generic.StandBackRecord, error) {
	w, err := r.Crew.GetWorker(ctx, id)
	if err != nil {
		return generic.Worker{}, generic.StandBackRecord{}, err
	}
	if w.CurrentStatus != generic.StatusInterrupted {
		return generic.Worker{}, generic.StandBackRecord{}, fmt.Errorf("%w: %s is %s",
			generic.ErrWorkerNotInterrupted, id, w.CurrentStatus)
	}
	if returnDate.IsZero() {
		return generic.Worker{}, generic.StandBackRecord{}, fmt.Errorf("%w: return date is required", generic.ErrInvalidPeriod)
	}

	episodeStart := w.InterruptedSince
	if episodeStart.IsZero() {
		episodeStart = returnDate
	}
	if returnDate.Before(episodeStart) {
		return generic.Worker{}, generic.StandBackRecord{}, fmt.Errorf("%w: return %s before interruption %s",
			generic.ErrInvalidPeriod, returnDate, episodeStart)
	}

	state := generic.RotationState{
		Status:         generic.StatusAboard,
		AnchorDate:     returnDate,
		AnchorLocation: generic.LocationAboard,
	}
	rec := generic.StandBackRecord{
		ID:           generic.StandBackID(uuid.NewString()),
		WorkerID:     id,
		EpisodeStart: episodeStart,
		EpisodeEnd:   returnDate,
		RequiredDays: r.requiredDays(),
		CreatedAt:    r.now(),
	}
	rec.Recompute()

	recID, err := r.persist(ctx, w, state, rec)
	if err != nil {
		return generic.Worker{}, generic.StandBackRecord{}, err
	}
	rec.ID = recID

	w.CurrentStatus = state.Status
	w.AnchorDate = state.AnchorDate
	w.AnchorLocation = state.AnchorLocation
	w.InterruptedSince = generic.Date{}

	r.logger().Info("worker recovered",
		"worker", id,
		"return", returnDate.String(),
		"episode_start", episodeStart.String(),
		"standback", rec.ID,
		"required_days", rec.RequiredDays)
	return w, rec, nil
}

func (r *Recovery) persist(ctx context.Context, w generic.Worker, state generic.RotationState, rec generic.StandBackRecord) (generic.StandBackID, error) {
	if r.Atomic != nil {
		id, err := r.Atomic.RecordRecovery(ctx, w.ID, state, rec)
		if err != nil {
			return "", fmt.Errorf("record recovery %s: %w", w.ID, err)
		}
		return id, nil
	}

	if err := r.Crew.UpdateRotationState(ctx, w.ID, state); err != nil {
		return "", fmt.Errorf("%w: reset worker %s: %w", generic.ErrPersistenceWriteFailed, w.ID, err)
	}
	id, err := r.Records.Create(ctx, rec)
	if err != nil {
		// put the worker back to interrupted so recovery can be retried
		if rbErr := r.Crew.SaveWorker(ctx, w); rbErr != nil {
			r.logger().Error("roll back recovery", "worker", w.ID, "error", rbErr)
		}
		return "", fmt.Errorf("%w: create stand-back for %s: %w", generic.ErrPersistenceWriteFailed, w.ID, err)
	}
	return id, nil
}

func (r *Recovery) requiredDays() int {
	if r.RequiredDays <= 0 {
		return DefaultRequiredDays
	}
	return r.RequiredDays
}

func (r *Recovery) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Recovery) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
