/*
types.go - Core domain types for the rotation engine

PURPOSE:
  Defines the vocabulary shared by the rotation clock, the runner and the
  stand-back ledger. Everything here is plain data: no persistence, no I/O.

KEY TYPES:
  Regime:               Closed set of duty patterns, each carrying its phase length
  Location:             Where a worker physically is (aboard / home)
  Status:               Authoritative worker status (location or side-state)
  Worker:               Crew member with rotation anchor
  RotationHistoryEntry: Immutable record of one automatic transition
  StandBackRecord:      Make-up day obligation for one interruption episode
  RepaymentEntry:       One partial repayment against a StandBackRecord

REGIMES:
  1/1     one week aboard, one week home      (7-day phase)
  2/2     two weeks aboard, two weeks home    (14-day phase)
  3/3     three weeks aboard, three weeks home (21-day phase)
  always  permanently aboard, no rotation
  none    not on a rotation at all

SEE ALSO:
  - time.go: Date and Period
  - store.go: Collaborator interfaces that persist these types
  - rotation/clock.go: Pure status derivation from a Regime + anchor
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type StandBackID string

// =============================================================================
// REGIME - Closed duty-pattern variant
// =============================================================================

// Regime is the duty pattern a worker follows. Unknown values can only
// arrive from storage or API input and are rejected by ParseRegime.
type Regime string

const (
	RegimeOneOne     Regime = "1/1"
	RegimeTwoTwo     Regime = "2/2"
	RegimeThreeThree Regime = "3/3"
	RegimeAlways     Regime = "always"
	RegimeNone       Regime = "none"
)

// regimeWeeks is the phase length in weeks of each rotating regime.
var regimeWeeks = map[Regime]int{
	RegimeOneOne:     1,
	RegimeTwoTwo:     2,
	RegimeThreeThree: 3,
}

// ParseRegime validates a regime tag by exact match.
func ParseRegime(s string) (Regime, error) {
	r := Regime(s)
	if !r.Valid() {
		return "", &UnrecognizedRegimeError{Value: s}
	}
	return r, nil
}

// Valid reports whether r is one of the known regimes.
func (r Regime) Valid() bool {
	switch r {
	case RegimeOneOne, RegimeTwoTwo, RegimeThreeThree, RegimeAlways, RegimeNone:
		return true
	}
	return false
}

// Rotates reports whether the regime alternates between locations.
func (r Regime) Rotates() bool {
	_, ok := regimeWeeks[r]
	return ok
}

// PhaseDays returns the length of one phase in days.
// ok is false for non-rotating or unknown regimes.
func (r Regime) PhaseDays() (days int, ok bool) {
	weeks, ok := regimeWeeks[r]
	return weeks * 7, ok
}

// Scheduled reports whether the runner is responsible for this regime.
func (r Regime) Scheduled() bool {
	return r.Rotates() || r == RegimeAlways
}

// =============================================================================
// LOCATION & STATUS
// =============================================================================

// Location is one side of a rotation.
type Location string

const (
	LocationAboard Location = "aboard"
	LocationHome   Location = "home"
)

// Opposite returns the other side of the rotation.
func (l Location) Opposite() Location {
	if l == LocationAboard {
		return LocationHome
	}
	return LocationAboard
}

func (l Location) Valid() bool { return l == LocationAboard || l == LocationHome }

// Status is the authoritative status stored on a worker.
type Status string

const (
	StatusAboard      Status = "aboard"
	StatusHome        Status = "home"
	StatusInterrupted Status = "interrupted"
	StatusUnassigned  Status = "unassigned"
	StatusDeparted    Status = "departed"

	// StatusScheduled is only ever derived, never stored: the anchor lies in
	// the future. By convention it is displayed and persisted as home.
	StatusScheduled Status = "scheduled"
)

// StatusFor maps a location onto the matching status.
func StatusFor(l Location) Status { return Status(l) }

// Location returns the location a status implies, if any.
func (s Status) Location() (Location, bool) {
	switch s {
	case StatusAboard:
		return LocationAboard, true
	case StatusHome, StatusScheduled:
		return LocationHome, true
	}
	return "", false
}

// Stored returns the status as it is persisted (scheduled collapses to home).
func (s Status) Stored() Status {
	if s == StatusScheduled {
		return StatusHome
	}
	return s
}

// Valid reports whether s may be persisted on a worker.
func (s Status) Valid() bool {
	switch s {
	case StatusAboard, StatusHome, StatusInterrupted, StatusUnassigned, StatusDeparted:
		return true
	}
	return false
}

// =============================================================================
// WORKER
// =============================================================================

// Worker is a crew member as seen by the rotation engine. Records are created
// externally; rotation fields are owned by the runner and the recovery action.
type Worker struct {
	ID             WorkerID
	Name           string
	Regime         Regime
	AnchorDate     Date
	AnchorLocation Location
	CurrentStatus  Status

	// InterruptedSince is the start of the open interruption episode.
	// Zero unless CurrentStatus is interrupted.
	InterruptedSince Date

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RotationState is the subset of worker fields the runner mutates.
type RotationState struct {
	Status         Status
	AnchorDate     Date
	AnchorLocation Location
}

// RotationState returns the worker's current rotation fields.
func (w Worker) RotationState() RotationState {
	return RotationState{
		Status:         w.CurrentStatus,
		AnchorDate:     w.AnchorDate,
		AnchorLocation: w.AnchorLocation,
	}
}

// =============================================================================
// ROTATION HISTORY
// =============================================================================

// HistorySource identifies who produced a history entry.
type HistorySource string

const HistorySourceAutomatic HistorySource = "automatic"

// RotationHistoryEntry is written once per applied transition and never changed.
type RotationHistoryEntry struct {
	ID            int64
	WorkerID      WorkerID
	EffectiveDate Date
	From          Status
	To            Status
	Source        HistorySource
	RecordedAt    time.Time
}

// =============================================================================
// STAND-BACK LEDGER
// =============================================================================

type StandBackStatus string

const (
	StandBackOpen     StandBackStatus = "open"
	StandBackComplete StandBackStatus = "complete"
)

// RepaymentEntry is one partial repayment. Immutable once appended.
type RepaymentEntry struct {
	ID          string
	DaysApplied int
	DateRange   Period
	Note        string
	RecordedAt  time.Time
}

// StandBackRecord is the obligation created when one interruption episode ends.
//
// INVARIANTS:
//   - Repayments is append-only
//   - CompletedDays, RemainingDays and Status are derived from Repayments
//     (use Recompute; never set them by hand)
type StandBackRecord struct {
	ID           StandBackID
	WorkerID     WorkerID
	EpisodeStart Date
	EpisodeEnd   Date
	RequiredDays int

	CompletedDays int
	RemainingDays int
	Status        StandBackStatus
	Repayments    []RepaymentEntry

	CreatedAt time.Time
}

// Recompute derives the aggregate fields from the repayment list.
func (r *StandBackRecord) Recompute() {
	completed := 0
	for _, p := range r.Repayments {
		completed += p.DaysApplied
	}
	r.CompletedDays = completed
	r.RemainingDays = max(0, r.RequiredDays-completed)
	if r.RemainingDays == 0 {
		r.Status = StandBackComplete
	} else {
		r.Status = StandBackOpen
	}
}

// Progress is the repaid fraction in [0, 1], rounded to four places.
func (r StandBackRecord) Progress() decimal.Decimal {
	if r.RequiredDays <= 0 {
		return decimal.NewFromInt(1)
	}
	done := decimal.NewFromInt(int64(min(r.CompletedDays, r.RequiredDays)))
	return done.DivRound(decimal.NewFromInt(int64(r.RequiredDays)), 4)
}
