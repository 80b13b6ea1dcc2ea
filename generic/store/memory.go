// Package store provides in-memory implementations of the collaborator interfaces.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/rotation-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements CrewRepository, RotationHistoryStore, StandBackRepository,
// TransitionStore and RecoveryStore behind a single mutex.
type Memory struct {
	mu        sync.RWMutex
	workers   map[generic.WorkerID]generic.Worker
	history   []generic.RotationHistoryEntry
	standback map[generic.StandBackID]generic.StandBackRecord
	lastRun   generic.Date
	historyID int64
}

func NewMemory() *Memory {
	return &Memory{
		workers:   make(map[generic.WorkerID]generic.Worker),
		standback: make(map[generic.StandBackID]generic.StandBackRecord),
	}
}

var (
	_ generic.CrewRepository       = (*Memory)(nil)
	_ generic.RotationHistoryStore = (*Memory)(nil)
	_ generic.StandBackRepository  = (*Memory)(nil)
	_ generic.TransitionStore      = (*Memory)(nil)
	_ generic.RecoveryStore        = (*Memory)(nil)
)

// =============================================================================
// CREW
// =============================================================================

func (m *Memory) ActiveRotationWorkers(_ context.Context) ([]generic.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Worker
	for _, w := range m.workers {
		if w.CurrentStatus != generic.StatusDeparted {
			result = append(result, w)
		}
	}
	sortWorkers(result)
	return result, nil
}

func (m *Memory) ListWorkers(_ context.Context) ([]generic.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		result = append(result, w)
	}
	sortWorkers(result)
	return result, nil
}

func (m *Memory) GetWorker(_ context.Context, id generic.WorkerID) (generic.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[id]
	if !ok {
		return generic.Worker{}, fmt.Errorf("%w: %s", generic.ErrWorkerNotFound, id)
	}
	return w, nil
}

func (m *Memory) SaveWorker(_ context.Context, w generic.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.workers[w.ID]; ok {
		w.CreatedAt = existing.CreatedAt
	} else if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	m.workers[w.ID] = w
	return nil
}

func (m *Memory) UpdateRotationState(_ context.Context, id generic.WorkerID, state generic.RotationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(id, state)
}

func (m *Memory) updateLocked(id generic.WorkerID, state generic.RotationState) error {
	w, ok := m.workers[id]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrWorkerNotFound, id)
	}
	w.CurrentStatus = state.Status
	w.AnchorDate = state.AnchorDate
	w.AnchorLocation = state.AnchorLocation
	if state.Status != generic.StatusInterrupted {
		w.InterruptedSince = generic.Date{}
	}
	w.UpdatedAt = time.Now()
	m.workers[id] = w
	return nil
}

func (m *Memory) LastRunDate(_ context.Context) (generic.Date, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRun, nil
}

func (m *Memory) ClaimRunDate(_ context.Context, date generic.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastRun.IsZero() && !m.lastRun.Before(date) {
		return false, nil
	}
	m.lastRun = date
	return true, nil
}

func (m *Memory) ReleaseRunDate(_ context.Context, date, previous generic.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastRun.Equal(date) {
		m.lastRun = previous
	}
	return nil
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func (m *Memory) Append(_ context.Context, entry generic.RotationHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(entry)
	return nil
}

func (m *Memory) appendLocked(entry generic.RotationHistoryEntry) {
	m.historyID++
	entry.ID = m.historyID
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	m.history = append(m.history, entry)
}

func (m *Memory) History(_ context.Context, workerID generic.WorkerID) ([]generic.RotationHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.RotationHistoryEntry
	for _, e := range m.history {
		if e.WorkerID == workerID {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EffectiveDate.Before(result[j].EffectiveDate)
	})
	return result, nil
}

// ApplyTransition updates the worker and appends history under one lock.
func (m *Memory) ApplyTransition(_ context.Context, id generic.WorkerID, state generic.RotationState, entry generic.RotationHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateLocked(id, state); err != nil {
		return err
	}
	m.appendLocked(entry)
	return nil
}

// =============================================================================
// STAND-BACK
// =============================================================================

func (m *Memory) Create(_ context.Context, rec generic.StandBackRecord) (generic.StandBackID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(rec), nil
}

func (m *Memory) createLocked(rec generic.StandBackRecord) generic.StandBackID {
	if rec.ID == "" {
		rec.ID = generic.StandBackID(uuid.NewString())
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Repayments = append([]generic.RepaymentEntry(nil), rec.Repayments...)
	rec.Recompute()
	m.standback[rec.ID] = rec
	return rec.ID
}

func (m *Memory) Get(_ context.Context, id generic.StandBackID) (generic.StandBackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.standback[id]
	if !ok {
		return generic.StandBackRecord{}, fmt.Errorf("%w: %s", generic.ErrStandBackNotFound, id)
	}
	return cloneRecord(rec), nil
}

func (m *Memory) ListOpen(_ context.Context, workerID generic.WorkerID) ([]generic.StandBackRecord, error) {
	return m.list(workerID, true), nil
}

func (m *Memory) ListByWorker(_ context.Context, workerID generic.WorkerID) ([]generic.StandBackRecord, error) {
	return m.list(workerID, false), nil
}

func (m *Memory) list(workerID generic.WorkerID, openOnly bool) []generic.StandBackRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.StandBackRecord
	for _, rec := range m.standback {
		if workerID != "" && rec.WorkerID != workerID {
			continue
		}
		if openOnly && rec.Status != generic.StandBackOpen {
			continue
		}
		result = append(result, cloneRecord(rec))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].EpisodeStart.Equal(result[j].EpisodeStart) {
			return result[i].EpisodeStart.Before(result[j].EpisodeStart)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) ApplyRepaymentAtomic(_ context.Context, id generic.StandBackID, expectedRemaining int, entry generic.RepaymentEntry) (generic.StandBackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.standback[id]
	if !ok {
		return generic.StandBackRecord{}, fmt.Errorf("%w: %s", generic.ErrStandBackNotFound, id)
	}
	if rec.RemainingDays != expectedRemaining {
		return generic.StandBackRecord{}, generic.ErrConcurrentRepaymentConflict
	}
	if rec.Status != generic.StandBackOpen || entry.DaysApplied < 1 || entry.DaysApplied > rec.RemainingDays {
		return generic.StandBackRecord{}, &generic.InvalidRepaymentError{
			RecordID: id, Requested: entry.DaysApplied, Remaining: rec.RemainingDays, Status: rec.Status,
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	rec = cloneRecord(rec)
	rec.Repayments = append(rec.Repayments, entry)
	rec.Recompute()
	m.standback[id] = rec
	return cloneRecord(rec), nil
}

// RecordRecovery resets an interrupted worker and opens its stand-back record.
func (m *Memory) RecordRecovery(_ context.Context, id generic.WorkerID, state generic.RotationState, rec generic.StandBackRecord) (generic.StandBackID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", generic.ErrWorkerNotFound, id)
	}
	if w.CurrentStatus != generic.StatusInterrupted {
		return "", fmt.Errorf("%w: %s is %s", generic.ErrWorkerNotInterrupted, id, w.CurrentStatus)
	}
	if err := m.updateLocked(id, state); err != nil {
		return "", err
	}
	return m.createLocked(rec), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneRecord(rec generic.StandBackRecord) generic.StandBackRecord {
	rec.Repayments = append([]generic.RepaymentEntry(nil), rec.Repayments...)
	return rec
}

func sortWorkers(ws []generic.Worker) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
}
