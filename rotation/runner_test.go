package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rotation-engine/generic"
	"github.com/warp/rotation-engine/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func rotatingWorker(id string, regime generic.Regime, anchor string, loc generic.Location, status generic.Status) generic.Worker {
	return generic.Worker{
		ID:             generic.WorkerID(id),
		Name:           id,
		Regime:         regime,
		AnchorDate:     d(anchor),
		AnchorLocation: loc,
		CurrentStatus:  status,
	}
}

func seed(t *testing.T, m *store.Memory, workers ...generic.Worker) {
	t.Helper()
	for _, w := range workers {
		require.NoError(t, m.SaveWorker(context.Background(), w))
	}
}

func resultFor(t *testing.T, s RunSummary, id string) WorkerResult {
	t.Helper()
	for _, r := range s.Results {
		if r.WorkerID == generic.WorkerID(id) {
			return r
		}
	}
	t.Fatalf("no result for %s", id)
	return WorkerResult{}
}

// flakyStore injects persistence failures in front of the memory store.
type flakyStore struct {
	*store.Memory
	failTransition map[generic.WorkerID]bool
	failAppend     bool
	failList       bool
}

func (f *flakyStore) ApplyTransition(ctx context.Context, id generic.WorkerID, state generic.RotationState, entry generic.RotationHistoryEntry) error {
	if f.failTransition[id] {
		return errors.New("disk I/O error")
	}
	return f.Memory.ApplyTransition(ctx, id, state, entry)
}

func (f *flakyStore) Append(ctx context.Context, entry generic.RotationHistoryEntry) error {
	if f.failAppend {
		return errors.New("history table locked")
	}
	return f.Memory.Append(ctx, entry)
}

func (f *flakyStore) ActiveRotationWorkers(ctx context.Context) ([]generic.Worker, error) {
	if f.failList {
		return nil, errors.New("connection reset")
	}
	return f.Memory.ActiveRotationWorkers(ctx)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) NotifyTransition(_ context.Context, id generic.WorkerID, from, to generic.Status, date generic.Date) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("%s %s->%s %s", id, from, to, date))
	return n.err
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestRunOnce_AppliesDueTransition(t *testing.T) {
	// GIVEN: 2/2 worker anchored aboard on 2024-01-01, still stored aboard
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))
	notifier := &recordingNotifier{}
	runner := NewRunner(m, notifier, nil)

	// WHEN: The runner processes 2024-01-15 (day 14)
	summary, err := runner.RunOnce(context.Background(), d("2024-01-15"))

	// THEN: Worker goes home, re-anchored on the boundary
	require.NoError(t, err)
	assert.False(t, summary.AlreadyRan)
	assert.Equal(t, 1, summary.TotalChanges)
	r := resultFor(t, summary, "w-1")
	assert.Equal(t, OutcomeTransitioned, r.Outcome)
	assert.Equal(t, generic.StatusAboard, r.From)
	assert.Equal(t, generic.StatusHome, r.To)

	w, err := m.GetWorker(context.Background(), "w-1")
	require.NoError(t, err)
	assert.Equal(t, generic.StatusHome, w.CurrentStatus)
	assert.Equal(t, "2024-01-15", w.AnchorDate.String())
	assert.Equal(t, generic.LocationHome, w.AnchorLocation)

	history, err := m.History(context.Background(), "w-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2024-01-15", history[0].EffectiveDate.String())
	assert.Equal(t, generic.StatusAboard, history[0].From)
	assert.Equal(t, generic.StatusHome, history[0].To)
	assert.Equal(t, generic.HistorySourceAutomatic, history[0].Source)

	assert.Equal(t, []string{"w-1 aboard->home 2024-01-15"}, notifier.calls)
}

func TestRunOnce_NoChangeMidPhase(t *testing.T) {
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))

	summary, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-01-14"))

	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalChanges)
	assert.Equal(t, OutcomeUnchanged, resultFor(t, summary, "w-1").Outcome)
	history, _ := m.History(context.Background(), "w-1")
	assert.Empty(t, history)
}

func TestRunOnce_MissedDays_EffectiveOnBoundary(t *testing.T) {
	// GIVEN: The runner did not run on the boundary day
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-1", generic.RegimeOneOne, "2024-01-01", generic.LocationAboard, generic.StatusAboard))

	// WHEN: It catches up five days later
	_, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-01-13"))
	require.NoError(t, err)

	// THEN: History and anchor use the boundary, not the run date
	history, _ := m.History(context.Background(), "w-1")
	require.Len(t, history, 1)
	assert.Equal(t, "2024-01-08", history[0].EffectiveDate.String())

	w, _ := m.GetWorker(context.Background(), "w-1")
	assert.Equal(t, "2024-01-08", w.AnchorDate.String())
	assert.Equal(t, generic.LocationHome, w.AnchorLocation)
}

func TestRunOnce_ReanchoredWorkerKeepsRotating(t *testing.T) {
	// GIVEN: A worker rotated home on 2024-01-15
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))
	runner := NewRunner(m, nil, nil)
	_, err := runner.RunOnce(context.Background(), d("2024-01-15"))
	require.NoError(t, err)

	// WHEN: The next boundary arrives
	summary, err := runner.RunOnce(context.Background(), d("2024-01-29"))

	// THEN: Back aboard, computed from the new anchor
	require.NoError(t, err)
	assert.Equal(t, generic.StatusAboard, resultFor(t, summary, "w-1").To)
	w, _ := m.GetWorker(context.Background(), "w-1")
	assert.Equal(t, "2024-01-29", w.AnchorDate.String())
	assert.Equal(t, generic.LocationAboard, w.AnchorLocation)
}

func TestRunOnce_AlwaysWorkerPinnedAboard(t *testing.T) {
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-always", generic.RegimeAlways, "2024-01-01", generic.LocationHome, generic.StatusHome))

	summary, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-02-01"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, resultFor(t, summary, "w-always").Outcome)
	w, _ := m.GetWorker(context.Background(), "w-always")
	assert.Equal(t, generic.StatusAboard, w.CurrentStatus)
	assert.Equal(t, generic.LocationAboard, w.AnchorLocation)
	history, _ := m.History(context.Background(), "w-always")
	require.Len(t, history, 1)
	assert.Equal(t, "2024-02-01", history[0].EffectiveDate.String())
}

func TestRunOnce_ScheduledWorkerStoredHome(t *testing.T) {
	// GIVEN: Anchor in the future but the record says aboard
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-new", generic.RegimeTwoTwo, "2024-03-10", generic.LocationAboard, generic.StatusAboard))

	// WHEN: Running before the anchor
	_, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-03-01"))
	require.NoError(t, err)

	// THEN: Stored as home, pending anchor untouched
	w, _ := m.GetWorker(context.Background(), "w-new")
	assert.Equal(t, generic.StatusHome, w.CurrentStatus)
	assert.Equal(t, "2024-03-10", w.AnchorDate.String())
	assert.Equal(t, generic.LocationAboard, w.AnchorLocation)
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestRunOnce_SameDayTwice_NoOp(t *testing.T) {
	// GIVEN: A completed run for 2024-01-15
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))
	runner := NewRunner(m, nil, nil)
	_, err := runner.RunOnce(context.Background(), d("2024-01-15"))
	require.NoError(t, err)

	// WHEN: Running the same day again
	summary, err := runner.RunOnce(context.Background(), d("2024-01-15"))

	// THEN: Nothing happens
	require.NoError(t, err)
	assert.True(t, summary.AlreadyRan)
	assert.Equal(t, 0, summary.TotalChanges)
	assert.Empty(t, summary.Results)
	history, _ := m.History(context.Background(), "w-1")
	assert.Len(t, history, 1)
}

func TestRunOnce_EarlierDate_NoOp(t *testing.T) {
	m := store.NewMemory()
	runner := NewRunner(m, nil, nil)
	_, err := runner.RunOnce(context.Background(), d("2024-01-15"))
	require.NoError(t, err)

	summary, err := runner.RunOnce(context.Background(), d("2024-01-10"))

	require.NoError(t, err)
	assert.True(t, summary.AlreadyRan)
	last, _ := m.LastRunDate(context.Background())
	assert.Equal(t, "2024-01-15", last.String())
}

func TestRunOnce_ConcurrentRunnersSameDay_OneWins(t *testing.T) {
	// GIVEN: Two replicas firing at the same moment
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))

	var wg sync.WaitGroup
	summaries := make([]RunSummary, 2)
	for i := range summaries {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-01-15"))
			assert.NoError(t, err)
			summaries[i] = s
		}()
	}
	wg.Wait()

	// THEN: Exactly one applied the transition
	assert.NotEqual(t, summaries[0].AlreadyRan, summaries[1].AlreadyRan)
	history, _ := m.History(context.Background(), "w-1")
	assert.Len(t, history, 1)
}

// =============================================================================
// ELIGIBILITY & UNKNOWN REGIMES
// =============================================================================

func TestRunOnce_IneligibleWorkersOmitted(t *testing.T) {
	m := store.NewMemory()
	seed(t, m,
		rotatingWorker("w-int", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusInterrupted),
		rotatingWorker("w-gone", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusDeparted),
		generic.Worker{ID: "w-none", Name: "w-none", Regime: generic.RegimeNone, CurrentStatus: generic.StatusUnassigned},
		rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard),
	)

	summary, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-01-15"))

	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, generic.WorkerID("w-1"), summary.Results[0].WorkerID)

	w, _ := m.GetWorker(context.Background(), "w-int")
	assert.Equal(t, generic.StatusInterrupted, w.CurrentStatus)
}

func TestRunOnce_UnknownRegime_SkippedNotFatal(t *testing.T) {
	// GIVEN: One corrupt regime next to a valid worker
	m := store.NewMemory()
	seed(t, m,
		rotatingWorker("w-bad", generic.Regime("4/4"), "2024-01-01", generic.LocationAboard, generic.StatusAboard),
		rotatingWorker("w-ok", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard),
	)

	summary, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-01-15"))

	// THEN: Bad worker reported as skipped, good one rotated
	require.NoError(t, err)
	bad := resultFor(t, summary, "w-bad")
	assert.Equal(t, OutcomeSkipped, bad.Outcome)
	assert.ErrorIs(t, bad.Err, generic.ErrUnrecognizedRegime)
	assert.Equal(t, OutcomeTransitioned, resultFor(t, summary, "w-ok").Outcome)
	assert.Len(t, summary.Failed(), 1)
}

func TestRunOnce_UnknownRegime_IneligibleStatusOmitted(t *testing.T) {
	// GIVEN: Corrupt regimes on workers the runner does not own
	m := store.NewMemory()
	interrupted := rotatingWorker("w-ill", generic.Regime("4/4"), "2024-01-01", generic.LocationAboard, generic.StatusInterrupted)
	interrupted.InterruptedSince = d("2024-01-10")
	seed(t, m,
		interrupted,
		rotatingWorker("w-idle", generic.Regime("weekly"), "2024-01-01", generic.LocationAboard, generic.StatusUnassigned),
	)

	// WHEN: Running any day
	summary, err := NewRunner(m, nil, nil).RunOnce(context.Background(), d("2024-01-15"))

	// THEN: Neither appears in the summary
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.Empty(t, summary.Failed())
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

func TestRunOnce_WriteFailure_IsolatedAndRetried(t *testing.T) {
	// GIVEN: Writes for w-bad fail
	flaky := &flakyStore{Memory: store.NewMemory(), failTransition: map[generic.WorkerID]bool{"w-bad": true}}
	seed(t, flaky.Memory,
		rotatingWorker("w-bad", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard),
		rotatingWorker("w-ok", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard),
	)
	runner := NewRunner(flaky, nil, nil)

	// WHEN: Running the boundary day
	summary, err := runner.RunOnce(context.Background(), d("2024-01-15"))

	// THEN: Failure recorded for w-bad only, its status untouched
	require.NoError(t, err)
	bad := resultFor(t, summary, "w-bad")
	assert.Equal(t, OutcomeFailed, bad.Outcome)
	assert.ErrorIs(t, bad.Err, generic.ErrPersistenceWriteFailed)
	assert.Equal(t, OutcomeTransitioned, resultFor(t, summary, "w-ok").Outcome)
	assert.Equal(t, 1, summary.TotalChanges)

	w, _ := flaky.GetWorker(context.Background(), "w-bad")
	assert.Equal(t, generic.StatusAboard, w.CurrentStatus)

	// WHEN: The store recovers and the next day runs
	flaky.failTransition = nil
	summary, err = runner.RunOnce(context.Background(), d("2024-01-16"))

	// THEN: The mismatch is detected again and applied
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, resultFor(t, summary, "w-bad").Outcome)
	history, _ := flaky.History(context.Background(), "w-bad")
	require.Len(t, history, 1)
	assert.Equal(t, "2024-01-15", history[0].EffectiveDate.String())
}

func TestRunOnce_SequentialWrites_RollBackOnHistoryFailure(t *testing.T) {
	// GIVEN: No atomic transition support and a failing history append
	flaky := &flakyStore{Memory: store.NewMemory(), failAppend: true}
	seed(t, flaky.Memory, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))
	runner := NewRunner(flaky, nil, nil)
	runner.Transitions = nil

	// WHEN: Running the boundary day
	summary, err := runner.RunOnce(context.Background(), d("2024-01-15"))

	// THEN: Worker is back to its previous state
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, resultFor(t, summary, "w-1").Outcome)
	w, _ := flaky.GetWorker(context.Background(), "w-1")
	assert.Equal(t, generic.StatusAboard, w.CurrentStatus)
	assert.Equal(t, "2024-01-01", w.AnchorDate.String())
	assert.Equal(t, generic.LocationAboard, w.AnchorLocation)
}

func TestRunOnce_NotifierFailure_DoesNotFailRun(t *testing.T) {
	m := store.NewMemory()
	seed(t, m, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))
	notifier := &recordingNotifier{err: errors.New("webhook 500")}

	summary, err := NewRunner(m, notifier, nil).RunOnce(context.Background(), d("2024-01-15"))

	require.NoError(t, err)
	r := resultFor(t, summary, "w-1")
	assert.Equal(t, OutcomeTransitioned, r.Outcome)
	assert.NoError(t, r.Err)
	assert.Len(t, notifier.calls, 1)
}

func TestRunOnce_ListFailure_ReleasesMarker(t *testing.T) {
	// GIVEN: Listing workers fails
	flaky := &flakyStore{Memory: store.NewMemory(), failList: true}
	seed(t, flaky.Memory, rotatingWorker("w-1", generic.RegimeTwoTwo, "2024-01-01", generic.LocationAboard, generic.StatusAboard))
	runner := NewRunner(flaky, nil, nil)

	// WHEN: Running
	_, err := runner.RunOnce(context.Background(), d("2024-01-15"))

	// THEN: The run fails and the day is not marked done
	require.Error(t, err)
	last, _ := flaky.LastRunDate(context.Background())
	assert.True(t, last.IsZero())

	// WHEN: Retried after the store recovers
	flaky.failList = false
	summary, err := runner.RunOnce(context.Background(), d("2024-01-15"))

	// THEN: The day is processed
	require.NoError(t, err)
	assert.False(t, summary.AlreadyRan)
	assert.Equal(t, 1, summary.TotalChanges)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRunOnce_BoundedPool_ProcessesEveryWorker(t *testing.T) {
	m := store.NewMemory()
	for i := 0; i < 50; i++ {
		seed(t, m, rotatingWorker(fmt.Sprintf("w-%02d", i), generic.RegimeOneOne, "2024-01-01", generic.LocationAboard, generic.StatusAboard))
	}
	runner := NewRunner(m, nil, nil)
	runner.Concurrency = 8

	summary, err := runner.RunOnce(context.Background(), d("2024-01-08"))

	require.NoError(t, err)
	assert.Equal(t, 50, summary.TotalChanges)
	require.Len(t, summary.Results, 50)
	assert.Equal(t, generic.WorkerID("w-00"), summary.Results[0].WorkerID)
	assert.Equal(t, generic.WorkerID("w-49"), summary.Results[49].WorkerID)
}
