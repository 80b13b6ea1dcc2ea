package generic

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// REGIME
// =============================================================================

func TestParseRegime_KnownTags(t *testing.T) {
	for _, tag := range []string{"1/1", "2/2", "3/3", "always", "none"} {
		r, err := ParseRegime(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, Regime(tag), r)
	}
}

func TestParseRegime_ExactMatchOnly(t *testing.T) {
	// GIVEN: Tags that look close to known regimes
	for _, tag := range []string{"", "2-2", "4/4", "Always", " 1/1"} {
		// WHEN: Parsing
		_, err := ParseRegime(tag)

		// THEN: Rejected with the offending value
		require.Error(t, err, tag)
		assert.True(t, errors.Is(err, ErrUnrecognizedRegime))
		var regimeErr *UnrecognizedRegimeError
		require.True(t, errors.As(err, &regimeErr))
		assert.Equal(t, tag, regimeErr.Value)
	}
}

func TestRegime_PhaseDays(t *testing.T) {
	cases := map[Regime]int{RegimeOneOne: 7, RegimeTwoTwo: 14, RegimeThreeThree: 21}
	for r, want := range cases {
		days, ok := r.PhaseDays()
		assert.True(t, ok, r)
		assert.Equal(t, want, days, r)
	}

	_, ok := RegimeAlways.PhaseDays()
	assert.False(t, ok)
	_, ok = Regime("5/5").PhaseDays()
	assert.False(t, ok)
}

func TestRegime_Scheduled(t *testing.T) {
	assert.True(t, RegimeTwoTwo.Scheduled())
	assert.True(t, RegimeAlways.Scheduled())
	assert.False(t, RegimeNone.Scheduled())
	assert.False(t, Regime("bogus").Scheduled())
}

// =============================================================================
// STATUS
// =============================================================================

func TestStatus_ScheduledStoredAsHome(t *testing.T) {
	assert.Equal(t, StatusHome, StatusScheduled.Stored())
	assert.Equal(t, StatusAboard, StatusAboard.Stored())
	assert.False(t, StatusScheduled.Valid())

	loc, ok := StatusScheduled.Location()
	assert.True(t, ok)
	assert.Equal(t, LocationHome, loc)

	_, ok = StatusInterrupted.Location()
	assert.False(t, ok)
}

func TestLocation_Opposite(t *testing.T) {
	assert.Equal(t, LocationHome, LocationAboard.Opposite())
	assert.Equal(t, LocationAboard, LocationHome.Opposite())
}

// =============================================================================
// STAND-BACK AGGREGATES
// =============================================================================

func TestStandBackRecord_Recompute(t *testing.T) {
	// GIVEN: A 7-day record with 3 + 2 days repaid
	rec := StandBackRecord{
		RequiredDays: 7,
		Repayments:   []RepaymentEntry{{DaysApplied: 3}, {DaysApplied: 2}},
	}

	// WHEN: Aggregates are derived
	rec.Recompute()

	// THEN: completed + remaining == required, still open
	assert.Equal(t, 5, rec.CompletedDays)
	assert.Equal(t, 2, rec.RemainingDays)
	assert.Equal(t, StandBackOpen, rec.Status)
	assert.Equal(t, rec.RequiredDays, rec.CompletedDays+rec.RemainingDays)

	// WHEN: The rest is repaid
	rec.Repayments = append(rec.Repayments, RepaymentEntry{DaysApplied: 2})
	rec.Recompute()

	// THEN: Complete with nothing remaining
	assert.Equal(t, 0, rec.RemainingDays)
	assert.Equal(t, StandBackComplete, rec.Status)
}

func TestStandBackRecord_Progress(t *testing.T) {
	rec := StandBackRecord{RequiredDays: 7, Repayments: []RepaymentEntry{{DaysApplied: 3}}}
	rec.Recompute()
	assert.True(t, decimal.RequireFromString("0.4286").Equal(rec.Progress()), rec.Progress().String())

	rec.Repayments = append(rec.Repayments, RepaymentEntry{DaysApplied: 4})
	rec.Recompute()
	assert.True(t, decimal.NewFromInt(1).Equal(rec.Progress()))
}

// =============================================================================
// DATES
// =============================================================================

func TestDaysBetween(t *testing.T) {
	a := MustParseDate("2024-01-01")
	assert.Equal(t, 14, DaysBetween(a, MustParseDate("2024-01-15")))
	assert.Equal(t, -1, DaysBetween(a, MustParseDate("2023-12-31")))
	// leap day
	assert.Equal(t, 29, DaysBetween(MustParseDate("2024-02-01"), MustParseDate("2024-03-01")))
	// spans longer than time.Duration can hold
	assert.Equal(t, 118359, DaysBetween(MustParseDate("1700-01-01"), MustParseDate("2024-01-22")))
	assert.Equal(t, -118359, DaysBetween(MustParseDate("2024-01-22"), MustParseDate("1700-01-01")))
}

func TestDate_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		D Date `json:"d"`
	}
	data, err := json.Marshal(wrapper{D: NewDate(2024, 3, 1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2024-03-01"}`, string(data))

	var back wrapper
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.D.Equal(NewDate(2024, 3, 1)))

	require.Error(t, json.Unmarshal([]byte(`{"d":"03/01/2024"}`), &back))
}

func TestPeriod_Validate(t *testing.T) {
	ok := Period{Start: MustParseDate("2024-03-04"), End: MustParseDate("2024-03-06")}
	require.NoError(t, ok.Validate())
	assert.Equal(t, 3, ok.Days())

	bad := Period{Start: ok.End, End: ok.Start}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPeriod)
	assert.ErrorIs(t, Period{}.Validate(), ErrInvalidPeriod)
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsClientError(&InvalidRepaymentError{Requested: 9, Remaining: 2}))
	assert.True(t, IsNotFound(ErrStandBackNotFound))
	assert.True(t, IsRetryable(ErrConcurrentRepaymentConflict))
	assert.False(t, IsClientError(ErrPersistenceWriteFailed))
}
