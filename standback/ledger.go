/*
ledger.go - Stand-back ledger

PURPOSE:
  Tracks the make-up days a worker owes after an interruption episode and
  the partial repayments made against them.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Repayments are never edited or removed
  2. DERIVED:     completed = sum(repayments.daysApplied)
                  remaining = max(0, required - completed)
                  status    = complete iff remaining == 0
  3. MONOTONIC:   open -> complete, never re-opened

SINGLE MUTATION PATH:
  ApplyRepayment is the only way to change a record. Totals sent by callers
  are never trusted; the repository recomputes them from the repayment list.

CONCURRENCY:
  The remaining days read at validation time are handed to the repository
  as the expected value. If another repayment landed in between, the
  repository rejects with ErrConcurrentRepaymentConflict and nothing changes.

EXAMPLE:
  rec: required 7
  ApplyRepayment(3)  -> completed 3, remaining 4, open
  ApplyRepayment(4)  -> completed 7, remaining 0, complete
  ApplyRepayment(1)  -> InvalidRepaymentError (record complete)

SEE ALSO:
  - recovery.go: The only place records are created
  - generic/store.go: StandBackRepository contract
*/
package standback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/rotation-engine/generic"
)

// Ledger is the authorized mutation path for stand-back records.
type Ledger struct {
	Repo   generic.StandBackRepository
	Logger *slog.Logger
	Now    func() time.Time
}

func NewLedger(repo generic.StandBackRepository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{Repo: repo, Logger: logger.With("component", "standback")}
}

// Repayment is a request to apply days against a record.
type Repayment struct {
	RecordID    generic.StandBackID
	DaysApplied int
	DateRange   generic.Period
	Note        string

	// ExpectedRemaining, when set, is the remaining days the caller saw when
	// submitting. A mismatch with the current value is a conflict.
	ExpectedRemaining *int
}

// ApplyRepayment appends a repayment and returns the updated record.
func (l *Ledger) ApplyRepayment(ctx context.Context, id generic.StandBackID, daysApplied int, dateRange generic.Period, note string) (generic.StandBackRecord, error) {
	return l.Apply(ctx, Repayment{RecordID: id, DaysApplied: daysApplied, DateRange: dateRange, Note: note})
}

// Apply validates req against the current record and appends it atomically.
// No state changes on any error.
func (l *Ledger) Apply(ctx context.Context, req Repayment) (generic.StandBackRecord, error) {
	rec, err := l.Repo.Get(ctx, req.RecordID)
	if err != nil {
		return generic.StandBackRecord{}, err
	}

	if req.ExpectedRemaining != nil && *req.ExpectedRemaining != rec.RemainingDays {
		return generic.StandBackRecord{}, fmt.Errorf("%w: record %s has %d days remaining, request expected %d",
			generic.ErrConcurrentRepaymentConflict, rec.ID, rec.RemainingDays, *req.ExpectedRemaining)
	}
	if err := validateAmount(rec, req.DaysApplied); err != nil {
		return generic.StandBackRecord{}, err
	}
	if err := req.DateRange.Validate(); err != nil {
		return generic.StandBackRecord{}, fmt.Errorf("repayment date range: %w", err)
	}

	entry := generic.RepaymentEntry{
		ID:          uuid.NewString(),
		DaysApplied: req.DaysApplied,
		DateRange:   req.DateRange,
		Note:        strings.TrimSpace(req.Note),
		RecordedAt:  l.now(),
	}

	updated, err := l.Repo.ApplyRepaymentAtomic(ctx, rec.ID, rec.RemainingDays, entry)
	if err != nil {
		return generic.StandBackRecord{}, err
	}

	l.logger().Info("repayment applied",
		"record", updated.ID,
		"worker", updated.WorkerID,
		"days", entry.DaysApplied,
		"remaining", updated.RemainingDays,
		"status", updated.Status)
	return updated, nil
}

// Get returns one record. Side-effect free.
func (l *Ledger) Get(ctx context.Context, id generic.StandBackID) (generic.StandBackRecord, error) {
	return l.Repo.Get(ctx, id)
}

// ListOpen returns open records for a worker, or all workers when id is empty.
func (l *Ledger) ListOpen(ctx context.Context, id generic.WorkerID) ([]generic.StandBackRecord, error) {
	return l.Repo.ListOpen(ctx, id)
}

// ListByWorker returns every record for a worker, open or complete.
func (l *Ledger) ListByWorker(ctx context.Context, id generic.WorkerID) ([]generic.StandBackRecord, error) {
	return l.Repo.ListByWorker(ctx, id)
}

func validateAmount(rec generic.StandBackRecord, days int) error {
	if rec.Status != generic.StandBackOpen || days < 1 || days > rec.RemainingDays {
		return &generic.InvalidRepaymentError{
			RecordID:  rec.ID,
			Requested: days,
			Remaining: rec.RemainingDays,
			Status:    rec.Status,
		}
	}
	return nil
}

func (l *Ledger) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
