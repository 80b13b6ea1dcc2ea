/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every collaborator the rotation engine consumes using SQLite.
  The same patterns apply to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  generic.CrewRepository:       Workers + run marker
  generic.RotationHistoryStore: Append-only transition log
  generic.StandBackRepository:  Stand-back records + repayments
  generic.TransitionStore:      Worker update + history in one transaction
  generic.RecoveryStore:        Worker reset + record creation in one transaction

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on rotation_history
  - No UPDATE or DELETE statements on standback_repayments
  - Stand-back totals are never stored: they are summed from repayments
    on every read, so they cannot drift from the audit trail

KEY TABLES:
  workers:              Crew records with rotation anchor
  rotation_history:     Immutable transition log
  run_markers:          Last claimed run date per job
  standback_records:    One row per interruption episode
  standback_repayments: Immutable partial repayments

RUN MARKER:
  ClaimRunDate is a single upsert whose update branch only fires when the
  stored date is earlier than the claimed one. Rows affected tells the
  caller whether it won. This is atomic in SQLite without any locking.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Repayments additionally run inside a
  transaction that re-reads the remaining days before inserting.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/rotation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := rotation.NewRunner(store, notifier, logger)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/rotation-engine/generic"
)

const rotationMarker = "rotation"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.CrewRepository       = (*Store)(nil)
	_ generic.RotationHistoryStore = (*Store)(nil)
	_ generic.StandBackRepository  = (*Store)(nil)
	_ generic.TransitionStore      = (*Store)(nil)
	_ generic.RecoveryStore        = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Workers
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		regime TEXT NOT NULL,
		anchor_date TEXT,
		anchor_location TEXT,
		current_status TEXT NOT NULL,
		interrupted_since TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workers_status
		ON workers(current_status);

	-- Rotation history (append-only)
	CREATE TABLE IF NOT EXISTS rotation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		effective_date TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		source TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_worker_date
		ON rotation_history(worker_id, effective_date);

	-- Run markers (compare-and-set)
	CREATE TABLE IF NOT EXISTS run_markers (
		name TEXT PRIMARY KEY,
		last_run_date TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Stand-back records (one per interruption episode)
	CREATE TABLE IF NOT EXISTS standback_records (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		episode_start TEXT NOT NULL,
		episode_end TEXT NOT NULL,
		required_days INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_standback_worker
		ON standback_records(worker_id, episode_start);

	-- Repayments (append-only)
	CREATE TABLE IF NOT EXISTS standback_repayments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		record_id TEXT NOT NULL REFERENCES standback_records(id),
		days_applied INTEGER NOT NULL CHECK (days_applied > 0),
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		note TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_repayments_record
		ON standback_repayments(record_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CREW REPOSITORY
// =============================================================================

const workerColumns = "id, name, regime, anchor_date, anchor_location, current_status, interrupted_since, created_at, updated_at"

// ActiveRotationWorkers returns every worker that has not departed.
func (s *Store) ActiveRotationWorkers(ctx context.Context) ([]generic.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryWorkers(ctx, s.db,
		"SELECT "+workerColumns+" FROM workers WHERE current_status != ? ORDER BY id",
		string(generic.StatusDeparted))
}

// ListWorkers returns all workers.
func (s *Store) ListWorkers(ctx context.Context) ([]generic.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryWorkers(ctx, s.db, "SELECT "+workerColumns+" FROM workers ORDER BY id")
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, id generic.WorkerID) (generic.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getWorker(ctx, s.db, id)
}

func getWorker(ctx context.Context, q querier, id generic.WorkerID) (generic.Worker, error) {
	ws, err := queryWorkers(ctx, q, "SELECT "+workerColumns+" FROM workers WHERE id = ?", string(id))
	if err != nil {
		return generic.Worker{}, err
	}
	if len(ws) == 0 {
		return generic.Worker{}, fmt.Errorf("%w: %s", generic.ErrWorkerNotFound, id)
	}
	return ws[0], nil
}

// SaveWorker inserts or replaces a worker.
func (s *Store) SaveWorker(ctx context.Context, w generic.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !w.CreatedAt.IsZero() {
		createdAt = w.CreatedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (`+workerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			regime = excluded.regime,
			anchor_date = excluded.anchor_date,
			anchor_location = excluded.anchor_location,
			current_status = excluded.current_status,
			interrupted_since = excluded.interrupted_since,
			updated_at = excluded.updated_at`,
		string(w.ID), w.Name, string(w.Regime),
		nullDate(w.AnchorDate), nullString(string(w.AnchorLocation)),
		string(w.CurrentStatus), nullDate(w.InterruptedSince),
		createdAt, now,
	)
	return err
}

// UpdateRotationState writes status and anchor for one worker.
func (s *Store) UpdateRotationState(ctx context.Context, id generic.WorkerID, state generic.RotationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateRotationState(ctx, s.db, id, state, "")
}

// updateRotationState applies state; when requireStatus is set the row must
// currently have that status.
func updateRotationState(ctx context.Context, q querier, id generic.WorkerID, state generic.RotationState, requireStatus generic.Status) error {
	query := `
		UPDATE workers SET
			current_status = ?,
			anchor_date = ?,
			anchor_location = ?,
			interrupted_since = CASE WHEN ? = 'interrupted' THEN interrupted_since ELSE NULL END,
			updated_at = ?
		WHERE id = ?`
	args := []any{
		string(state.Status), nullDate(state.AnchorDate), nullString(string(state.AnchorLocation)),
		string(state.Status), time.Now().UTC().Format(time.RFC3339), string(id),
	}
	if requireStatus != "" {
		query += " AND current_status = ?"
		args = append(args, string(requireStatus))
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if requireStatus != "" {
			if _, gerr := getWorker(ctx, q, id); gerr != nil {
				return gerr
			}
			return fmt.Errorf("%w: %s", generic.ErrWorkerNotInterrupted, id)
		}
		return fmt.Errorf("%w: %s", generic.ErrWorkerNotFound, id)
	}
	return nil
}

func queryWorkers(ctx context.Context, q querier, query string, args ...any) ([]generic.Worker, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []generic.Worker
	for rows.Next() {
		var (
			w                                  generic.Worker
			id, regime, status                 string
			anchorDate, anchorLoc, interrupted sql.NullString
			createdAt, updatedAt               string
		)
		if err := rows.Scan(&id, &w.Name, &regime, &anchorDate, &anchorLoc, &status, &interrupted, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		w.ID = generic.WorkerID(id)
		// unknown regimes are kept verbatim; the runner reports them
		w.Regime = generic.Regime(regime)
		w.CurrentStatus = generic.Status(status)
		w.AnchorLocation = generic.Location(anchorLoc.String)
		if w.AnchorDate, err = parseNullDate(anchorDate); err != nil {
			return nil, fmt.Errorf("worker %s anchor_date: %w", id, err)
		}
		if w.InterruptedSince, err = parseNullDate(interrupted); err != nil {
			return nil, fmt.Errorf("worker %s interrupted_since: %w", id, err)
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// =============================================================================
// RUN MARKER
// =============================================================================

// LastRunDate returns the last claimed rotation run date.
func (s *Store) LastRunDate(ctx context.Context) (generic.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_run_date FROM run_markers WHERE name = ?", rotationMarker,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Date{}, nil
	}
	if err != nil {
		return generic.Date{}, err
	}
	return generic.ParseDate(last)
}

// ClaimRunDate sets the marker to date if absent or earlier, in one statement.
func (s *Store) ClaimRunDate(ctx context.Context, date generic.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_markers (name, last_run_date, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_run_date = excluded.last_run_date,
			updated_at = excluded.updated_at
		WHERE run_markers.last_run_date < excluded.last_run_date`,
		rotationMarker, date.String(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseRunDate restores previous if the marker still holds date.
func (s *Store) ReleaseRunDate(ctx context.Context, date, previous generic.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if previous.IsZero() {
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM run_markers WHERE name = ? AND last_run_date = ?",
			rotationMarker, date.String())
	} else {
		_, err = s.db.ExecContext(ctx,
			"UPDATE run_markers SET last_run_date = ?, updated_at = ? WHERE name = ? AND last_run_date = ?",
			previous.String(), time.Now().UTC().Format(time.RFC3339), rotationMarker, date.String())
	}
	return err
}

// =============================================================================
// ROTATION HISTORY (append-only)
// =============================================================================

// Append persists a history entry.
func (s *Store) Append(ctx context.Context, entry generic.RotationHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendHistory(ctx, s.db, entry)
}

func appendHistory(ctx context.Context, q querier, entry generic.RotationHistoryEntry) error {
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO rotation_history (worker_id, effective_date, from_status, to_status, source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(entry.WorkerID), entry.EffectiveDate.String(),
		string(entry.From), string(entry.To), string(entry.Source),
		recordedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// History returns a worker's entries ordered by effective date.
func (s *Store) History(ctx context.Context, workerID generic.WorkerID) ([]generic.RotationHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, effective_date, from_status, to_status, source, recorded_at
		FROM rotation_history WHERE worker_id = ? ORDER BY effective_date, id`,
		string(workerID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []generic.RotationHistoryEntry
	for rows.Next() {
		var (
			e                                        generic.RotationHistoryEntry
			wid, effective, from, to, src, recorded string
		)
		if err := rows.Scan(&e.ID, &wid, &effective, &from, &to, &src, &recorded); err != nil {
			return nil, err
		}
		e.WorkerID = generic.WorkerID(wid)
		if e.EffectiveDate, err = generic.ParseDate(effective); err != nil {
			return nil, err
		}
		e.From = generic.Status(from)
		e.To = generic.Status(to)
		e.Source = generic.HistorySource(src)
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ApplyTransition updates the worker and appends history in one transaction.
func (s *Store) ApplyTransition(ctx context.Context, id generic.WorkerID, state generic.RotationState, entry generic.RotationHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateRotationState(ctx, tx, id, state, ""); err != nil {
			return err
		}
		return appendHistory(ctx, tx, entry)
	})
}

// =============================================================================
// STAND-BACK REPOSITORY
// =============================================================================

// Create stores a new stand-back record.
func (s *Store) Create(ctx context.Context, rec generic.StandBackRecord) (generic.StandBackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id generic.StandBackID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = createRecord(ctx, tx, rec)
		return err
	})
	return id, err
}

func createRecord(ctx context.Context, q querier, rec generic.StandBackRecord) (generic.StandBackID, error) {
	if rec.ID == "" {
		rec.ID = generic.StandBackID(uuid.NewString())
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO standback_records (id, worker_id, episode_start, episode_end, required_days, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.ID), string(rec.WorkerID), rec.EpisodeStart.String(), rec.EpisodeEnd.String(),
		rec.RequiredDays, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", err
	}
	for _, p := range rec.Repayments {
		if err := insertRepayment(ctx, q, rec.ID, p); err != nil {
			return "", err
		}
	}
	return rec.ID, nil
}

// Get retrieves a record with its repayments.
func (s *Store) Get(ctx context.Context, id generic.StandBackID) (generic.StandBackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getRecord(ctx, s.db, id)
}

func getRecord(ctx context.Context, q querier, id generic.StandBackID) (generic.StandBackRecord, error) {
	recs, err := queryRecords(ctx, q, "WHERE r.id = ?", string(id))
	if err != nil {
		return generic.StandBackRecord{}, err
	}
	if len(recs) == 0 {
		return generic.StandBackRecord{}, fmt.Errorf("%w: %s", generic.ErrStandBackNotFound, id)
	}
	return recs[0], nil
}

// ListOpen returns records with days still owed.
func (s *Store) ListOpen(ctx context.Context, workerID generic.WorkerID) ([]generic.StandBackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := "WHERE r.required_days > " + completedExpr
	var args []any
	if workerID != "" {
		where += " AND r.worker_id = ?"
		args = append(args, string(workerID))
	}
	return queryRecords(ctx, s.db, where, args...)
}

// ListByWorker returns all of a worker's records.
func (s *Store) ListByWorker(ctx context.Context, workerID generic.WorkerID) ([]generic.StandBackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryRecords(ctx, s.db, "WHERE r.worker_id = ?", string(workerID))
}

// ApplyRepaymentAtomic appends a repayment after re-checking remaining days
// inside the transaction.
func (s *Store) ApplyRepaymentAtomic(ctx context.Context, id generic.StandBackID, expectedRemaining int, entry generic.RepaymentEntry) (generic.StandBackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated generic.StandBackRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.RemainingDays != expectedRemaining {
			return generic.ErrConcurrentRepaymentConflict
		}
		if rec.Status != generic.StandBackOpen || entry.DaysApplied < 1 || entry.DaysApplied > rec.RemainingDays {
			return &generic.InvalidRepaymentError{
				RecordID: id, Requested: entry.DaysApplied, Remaining: rec.RemainingDays, Status: rec.Status,
			}
		}
		if err := insertRepayment(ctx, tx, id, entry); err != nil {
			return err
		}
		updated, err = getRecord(ctx, tx, id)
		return err
	})
	if err != nil {
		return generic.StandBackRecord{}, err
	}
	return updated, nil
}

// RecordRecovery resets an interrupted worker and creates its record.
func (s *Store) RecordRecovery(ctx context.Context, id generic.WorkerID, state generic.RotationState, rec generic.StandBackRecord) (generic.StandBackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recID generic.StandBackID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateRotationState(ctx, tx, id, state, generic.StatusInterrupted); err != nil {
			return err
		}
		var err error
		recID, err = createRecord(ctx, tx, rec)
		return err
	})
	return recID, err
}

// completedExpr sums a record's repayments; r is the record alias.
const completedExpr = "COALESCE((SELECT SUM(p.days_applied) FROM standback_repayments p WHERE p.record_id = r.id), 0)"

func queryRecords(ctx context.Context, q querier, where string, args ...any) ([]generic.StandBackRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.worker_id, r.episode_start, r.episode_end, r.required_days, r.created_at
		FROM standback_records r `+where+`
		ORDER BY r.episode_start, r.id`, args...)
	if err != nil {
		return nil, err
	}

	var recs []generic.StandBackRecord
	for rows.Next() {
		var (
			rec                         generic.StandBackRecord
			id, wid, start, end, created string
		)
		if err := rows.Scan(&id, &wid, &start, &end, &rec.RequiredDays, &created); err != nil {
			rows.Close()
			return nil, err
		}
		rec.ID = generic.StandBackID(id)
		rec.WorkerID = generic.WorkerID(wid)
		if rec.EpisodeStart, err = generic.ParseDate(start); err != nil {
			rows.Close()
			return nil, err
		}
		if rec.EpisodeEnd, err = generic.ParseDate(end); err != nil {
			rows.Close()
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// repayments are loaded after the cursor is closed: in-memory databases
	// run on a single connection
	for i := range recs {
		if recs[i].Repayments, err = loadRepayments(ctx, q, recs[i].ID); err != nil {
			return nil, err
		}
		recs[i].Recompute()
	}
	return recs, nil
}

func loadRepayments(ctx context.Context, q querier, id generic.StandBackID) ([]generic.RepaymentEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, days_applied, range_start, range_end, note, recorded_at
		FROM standback_repayments WHERE record_id = ? ORDER BY seq`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []generic.RepaymentEntry
	for rows.Next() {
		var (
			e                  generic.RepaymentEntry
			start, end, stamp string
			note               sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DaysApplied, &start, &end, &note, &stamp); err != nil {
			return nil, err
		}
		if e.DateRange.Start, err = generic.ParseDate(start); err != nil {
			return nil, err
		}
		if e.DateRange.End, err = generic.ParseDate(end); err != nil {
			return nil, err
		}
		e.Note = note.String
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, stamp)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertRepayment(ctx context.Context, q querier, recordID generic.StandBackID, e generic.RepaymentEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO standback_repayments (id, record_id, days_applied, range_start, range_end, note, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(recordID), e.DaysApplied, e.DateRange.Start.String(), e.DateRange.End.String(),
		nullString(e.Note), recordedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// withTx runs fn in a transaction. Callers hold s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d generic.Date) sql.NullString {
	return nullString(d.String())
}

func parseNullDate(s sql.NullString) (generic.Date, error) {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return generic.Date{}, nil
	}
	return generic.ParseDate(s.String)
}
