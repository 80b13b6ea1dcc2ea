package standback_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rotation-engine/generic"
	"github.com/warp/rotation-engine/generic/store"
	"github.com/warp/rotation-engine/standback"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var d = generic.MustParseDate

func span(start, end string) generic.Period {
	return generic.Period{Start: d(start), End: d(end)}
}

func newTestLedger(t *testing.T, required int) (*standback.Ledger, *store.Memory, generic.StandBackID) {
	t.Helper()
	m := store.NewMemory()
	id, err := m.Create(context.Background(), generic.StandBackRecord{
		WorkerID:     "w-1",
		EpisodeStart: d("2024-02-10"),
		EpisodeEnd:   d("2024-03-01"),
		RequiredDays: required,
	})
	require.NoError(t, err)
	return standback.NewLedger(m, nil), m, id
}

func assertConsistent(t *testing.T, rec generic.StandBackRecord) {
	t.Helper()
	sum := 0
	for _, p := range rec.Repayments {
		sum += p.DaysApplied
	}
	assert.Equal(t, sum, rec.CompletedDays)
	assert.Equal(t, rec.RequiredDays, rec.CompletedDays+rec.RemainingDays)
	assert.Equal(t, rec.RemainingDays == 0, rec.Status == generic.StandBackComplete)
}

// =============================================================================
// REPAYMENTS
// =============================================================================

func TestApplyRepayment_PartialThenComplete(t *testing.T) {
	// GIVEN: A 7-day record
	ledger, _, id := newTestLedger(t, 7)
	ctx := context.Background()

	// WHEN: Repaying 3 days
	rec, err := ledger.ApplyRepayment(ctx, id, 3, span("2024-03-04", "2024-03-06"), "first block")

	// THEN: 4 remaining, still open
	require.NoError(t, err)
	assert.Equal(t, 3, rec.CompletedDays)
	assert.Equal(t, 4, rec.RemainingDays)
	assert.Equal(t, generic.StandBackOpen, rec.Status)
	assertConsistent(t, rec)

	// WHEN: Repaying the remaining 4
	rec, err = ledger.ApplyRepayment(ctx, id, 4, span("2024-03-11", "2024-03-14"), "")

	// THEN: Complete
	require.NoError(t, err)
	assert.Equal(t, 7, rec.CompletedDays)
	assert.Equal(t, 0, rec.RemainingDays)
	assert.Equal(t, generic.StandBackComplete, rec.Status)
	require.Len(t, rec.Repayments, 2)
	assert.Equal(t, "first block", rec.Repayments[0].Note)
	assertConsistent(t, rec)

	// WHEN: Trying a third repayment
	_, err = ledger.ApplyRepayment(ctx, id, 1, span("2024-03-18", "2024-03-18"), "")

	// THEN: Rejected, record closed for good
	var invalid *generic.InvalidRepaymentError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, generic.StandBackComplete, invalid.Status)
	assert.ErrorIs(t, err, generic.ErrInvalidRepaymentAmount)
}

func TestApplyRepayment_OverRemaining_NoStateChange(t *testing.T) {
	// GIVEN: A 7-day record with 5 repaid
	ledger, m, id := newTestLedger(t, 7)
	ctx := context.Background()
	_, err := ledger.ApplyRepayment(ctx, id, 5, span("2024-03-04", "2024-03-08"), "")
	require.NoError(t, err)

	// WHEN: Applying 3 days when only 2 remain
	_, err = ledger.ApplyRepayment(ctx, id, 3, span("2024-03-11", "2024-03-13"), "")

	// THEN: Rejected and nothing recorded
	var invalid *generic.InvalidRepaymentError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 3, invalid.Requested)
	assert.Equal(t, 2, invalid.Remaining)

	rec, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rec.Repayments, 1)
	assert.Equal(t, 2, rec.RemainingDays)
}

func TestApplyRepayment_NonPositiveRejected(t *testing.T) {
	ledger, _, id := newTestLedger(t, 7)

	for _, days := range []int{0, -2} {
		_, err := ledger.ApplyRepayment(context.Background(), id, days, span("2024-03-04", "2024-03-04"), "")
		assert.ErrorIs(t, err, generic.ErrInvalidRepaymentAmount, days)
	}
}

func TestApplyRepayment_InvalidDateRange(t *testing.T) {
	ledger, _, id := newTestLedger(t, 7)

	_, err := ledger.ApplyRepayment(context.Background(), id, 2, span("2024-03-08", "2024-03-04"), "")

	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestApplyRepayment_UnknownRecord(t *testing.T) {
	ledger, _, _ := newTestLedger(t, 7)

	_, err := ledger.ApplyRepayment(context.Background(), "nope", 1, span("2024-03-04", "2024-03-04"), "")

	assert.ErrorIs(t, err, generic.ErrStandBackNotFound)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestApply_StaleExpectedRemaining_Conflict(t *testing.T) {
	// GIVEN: A client saw 7 remaining, then another repayment landed
	ledger, m, id := newTestLedger(t, 7)
	ctx := context.Background()
	_, err := ledger.ApplyRepayment(ctx, id, 2, span("2024-03-04", "2024-03-05"), "")
	require.NoError(t, err)

	// WHEN: The stale client submits
	seen := 7
	_, err = ledger.Apply(ctx, standback.Repayment{
		RecordID:          id,
		DaysApplied:       1,
		DateRange:         span("2024-03-06", "2024-03-06"),
		ExpectedRemaining: &seen,
	})

	// THEN: Conflict, nothing applied
	assert.ErrorIs(t, err, generic.ErrConcurrentRepaymentConflict)
	assert.True(t, generic.IsRetryable(err))
	rec, _ := m.Get(ctx, id)
	assert.Equal(t, 5, rec.RemainingDays)
}

func TestApply_ConcurrentRepayments_NeverOverpay(t *testing.T) {
	// GIVEN: A 7-day record and ten clients each trying to repay 1 day
	ledger, m, id := newTestLedger(t, 7)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// retry on conflict like a real client would
			for attempt := 0; attempt < 20; attempt++ {
				_, err := ledger.ApplyRepayment(ctx, id, 1, span("2024-03-04", "2024-03-04"), "")
				if errors.Is(err, generic.ErrConcurrentRepaymentConflict) {
					continue
				}
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
				return
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly seven succeeded and the record is consistent
	rec, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, succeeded)
	assert.Equal(t, generic.StandBackComplete, rec.Status)
	assert.Len(t, rec.Repayments, 7)
	assertConsistent(t, rec)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestListOpen_ExcludesComplete(t *testing.T) {
	ledger, m, id := newTestLedger(t, 2)
	ctx := context.Background()
	other, err := m.Create(ctx, generic.StandBackRecord{
		WorkerID: "w-1", EpisodeStart: d("2024-04-01"), EpisodeEnd: d("2024-04-10"), RequiredDays: 7,
	})
	require.NoError(t, err)

	_, err = ledger.ApplyRepayment(ctx, id, 2, span("2024-03-04", "2024-03-05"), "")
	require.NoError(t, err)

	open, err := ledger.ListOpen(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, other, open[0].ID)

	all, err := ledger.ListByWorker(ctx, "w-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
