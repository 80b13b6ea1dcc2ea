/*
errors.go - Centralized error types for the rotation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these with fmt.Errorf("...: %w") to add context; callers
  classify with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Rotation errors  - Unknown regimes, invalid worker state
  2. Ledger errors    - Invalid or conflicting repayments
  3. Store errors     - Missing records, persistence failures, marker races

NOT AN ERROR:
  An anchor date in the future is defined behavior: the clock reports
  StatusScheduled. There is deliberately no error for it.

SEE ALSO:
  - rotation/runner.go: Collects per-worker errors into the run summary
  - standback/ledger.go: Returns InvalidRepaymentError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnrecognizedRegime is returned when a regime has no known phase length.
	// The runner skips the worker and reports it; it is never fatal to a run.
	ErrUnrecognizedRegime = errors.New("unrecognized regime")

	// ErrPersistenceWriteFailed wraps any failed write for a single worker.
	// The stored status was not changed, so the next run re-detects the mismatch.
	ErrPersistenceWriteFailed = errors.New("persistence write failed")

	// ErrInvalidRepaymentAmount is returned when daysApplied is outside
	// [1, remainingDays] or the record is no longer open.
	ErrInvalidRepaymentAmount = errors.New("invalid repayment amount")

	// ErrConcurrentRepaymentConflict is returned when the remaining days read at
	// submission no longer match the stored value. Retry with fresh state.
	ErrConcurrentRepaymentConflict = errors.New("concurrent repayment conflict")

	// ErrMarkerWriteRace is returned when another run already claimed the day.
	ErrMarkerWriteRace = errors.New("run marker already claimed")

	// ErrWorkerNotFound is returned when a referenced worker doesn't exist.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrStandBackNotFound is returned when a referenced record doesn't exist.
	ErrStandBackNotFound = errors.New("stand-back record not found")

	// ErrWorkerNotInterrupted is returned by recovery for workers that are not interrupted.
	ErrWorkerNotInterrupted = errors.New("worker is not interrupted")

	// ErrInvalidTransition is returned when an external action does not apply
	// to the worker's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidWorker is returned when a worker record fails validation.
	ErrInvalidWorker = errors.New("invalid worker")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnrecognizedRegimeError names the offending regime value.
type UnrecognizedRegimeError struct {
	WorkerID WorkerID
	Value    string
}

func (e *UnrecognizedRegimeError) Error() string {
	if e.WorkerID != "" {
		return fmt.Sprintf("unrecognized regime %q for worker %s", e.Value, e.WorkerID)
	}
	return fmt.Sprintf("unrecognized regime %q", e.Value)
}

func (e *UnrecognizedRegimeError) Unwrap() error {
	return ErrUnrecognizedRegime
}

// InvalidRepaymentError provides details about a rejected repayment.
type InvalidRepaymentError struct {
	RecordID  StandBackID
	Requested int
	Remaining int
	Status    StandBackStatus
}

func (e *InvalidRepaymentError) Error() string {
	if e.Status == StandBackComplete {
		return fmt.Sprintf("invalid repayment amount: record %s is already complete", e.RecordID)
	}
	return fmt.Sprintf("invalid repayment amount: requested %d, remaining %d (record %s)",
		e.Requested, e.Remaining, e.RecordID)
}

func (e *InvalidRepaymentError) Unwrap() error {
	return ErrInvalidRepaymentAmount
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry with fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentRepaymentConflict) ||
		errors.Is(err, ErrPersistenceWriteFailed)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRepaymentAmount) ||
		errors.Is(err, ErrUnrecognizedRegime) ||
		errors.Is(err, ErrWorkerNotInterrupted) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidWorker)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrStandBackNotFound)
}
