/*
store.go - Collaborator interfaces consumed by the rotation engine

PURPOSE:
  Defines the boundary between the rotation core and persistence /
  notification. The core never talks to a database directly.

KEY INTERFACES:
  CrewRepository:       Worker records and the once-per-day run marker
  RotationHistoryStore: Append-only log of automatic transitions
  StandBackRepository:  Stand-back records and serialized repayments
  Notifier:             Best-effort transition hook

OPTIONAL CAPABILITIES:
  TransitionStore: Worker update + history append in one transaction
  RecoveryStore:   Worker reset + stand-back creation in one transaction
  Callers detect these with a type assertion and fall back to sequential
  writes when a store doesn't provide them.

RUN MARKER:
  ClaimRunDate is a single compare-and-set: it succeeds only if the stored
  marker is absent or strictly earlier than the claimed date. Two runners
  racing on the same day cannot both win. Never emulate it with a
  read-then-write.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - rotation/runner.go: Main consumer of CrewRepository / RotationHistoryStore
  - standback/ledger.go: Main consumer of StandBackRepository
*/
package generic

import "context"

// =============================================================================
// CREW REPOSITORY
// =============================================================================

// CrewRepository persists workers and the runner's last-run marker.
type CrewRepository interface {
	// ActiveRotationWorkers returns every worker that has not departed.
	// The runner applies the finer regime/status filter itself so that
	// unknown regimes can be reported rather than silently dropped.
	ActiveRotationWorkers(ctx context.Context) ([]Worker, error)

	// ListWorkers returns all workers, including departed ones.
	ListWorkers(ctx context.Context) ([]Worker, error)

	// GetWorker returns ErrWorkerNotFound when id is unknown.
	GetWorker(ctx context.Context, id WorkerID) (Worker, error)

	// SaveWorker creates or replaces a worker record (onboarding, admin edits).
	SaveWorker(ctx context.Context, w Worker) error

	// UpdateRotationState writes status and anchor for one worker.
	// Setting any status other than interrupted clears InterruptedSince.
	UpdateRotationState(ctx context.Context, id WorkerID, state RotationState) error

	// LastRunDate returns the last claimed run date (zero if never run).
	LastRunDate(ctx context.Context) (Date, error)

	// ClaimRunDate atomically sets the marker to date if it is absent or
	// earlier. Returns false when another run already holds date or later.
	ClaimRunDate(ctx context.Context, date Date) (bool, error)

	// ReleaseRunDate reverts a claim on date, but only if the marker still
	// equals date. Used when a batch aborts before processing any worker.
	ReleaseRunDate(ctx context.Context, date Date, previous Date) error
}

// =============================================================================
// ROTATION HISTORY - Append-only
// =============================================================================

// RotationHistoryStore is the immutable transition log.
// IMPORTANT: No Update, No Delete. Ever.
type RotationHistoryStore interface {
	Append(ctx context.Context, entry RotationHistoryEntry) error

	// History returns a worker's entries ordered by effective date.
	History(ctx context.Context, workerID WorkerID) ([]RotationHistoryEntry, error)
}

// TransitionStore applies a worker update and its history entry atomically.
type TransitionStore interface {
	ApplyTransition(ctx context.Context, id WorkerID, state RotationState, entry RotationHistoryEntry) error
}

// =============================================================================
// STAND-BACK REPOSITORY
// =============================================================================

// StandBackRepository persists stand-back records and their repayments.
// Aggregates on returned records are always recomputed from repayments.
type StandBackRepository interface {
	// Create stores a new record and returns its ID.
	Create(ctx context.Context, rec StandBackRecord) (StandBackID, error)

	// Get returns ErrStandBackNotFound when id is unknown.
	Get(ctx context.Context, id StandBackID) (StandBackRecord, error)

	// ListOpen returns open records, for one worker or for everyone when
	// workerID is empty, oldest episode first.
	ListOpen(ctx context.Context, workerID WorkerID) ([]StandBackRecord, error)

	// ListByWorker returns all records for a worker, oldest episode first.
	ListByWorker(ctx context.Context, workerID WorkerID) ([]StandBackRecord, error)

	// ApplyRepaymentAtomic appends entry if the record's remaining days still
	// equal expectedRemaining (ErrConcurrentRepaymentConflict otherwise) and
	// the amount fits (ErrInvalidRepaymentAmount otherwise). Calls for the
	// same id are serialized. Returns the updated record.
	ApplyRepaymentAtomic(ctx context.Context, id StandBackID, expectedRemaining int, entry RepaymentEntry) (StandBackRecord, error)
}

// RecoveryStore ends an interruption in one transaction: the worker is reset
// only if still interrupted (ErrWorkerNotInterrupted otherwise) and the
// stand-back record is created alongside.
type RecoveryStore interface {
	RecordRecovery(ctx context.Context, id WorkerID, state RotationState, rec StandBackRecord) (StandBackID, error)
}

// =============================================================================
// NOTIFIER - Best-effort hook
// =============================================================================

// Notifier is told about applied transitions. Errors are logged by the
// caller and never fail a run.
type Notifier interface {
	NotifyTransition(ctx context.Context, workerID WorkerID, from, to Status, date Date) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyTransition(context.Context, WorkerID, Status, Status, Date) error {
	return nil
}
