/*
clock.go - Regime clock: pure status derivation

PURPOSE:
  Derives where a worker should be today from nothing but their regime,
  anchor date, anchor location and an interruption flag. No I/O, no clock
  reads: "today" is always passed in.

ALGORITHM:
  phaseDays  = weeks(regime) * 7
  elapsed    = days(today - anchor)
  phaseIndex = elapsed / phaseDays
  status     = anchorLocation when phaseIndex is even, else the opposite
  next       = anchor + (phaseIndex+1) * phaseDays

EXAMPLE (2/2, anchored aboard on 2024-01-01):
  2024-01-14 (day 13)  aboard, rotates 2024-01-15
  2024-01-15 (day 14)  home,   rotates 2024-01-29
  2024-01-29 (day 28)  aboard

SPECIAL CASES (checked in this order):
  interrupted        -> interrupted, no rotation fields
  always             -> aboard, no rotation fields
  none               -> unassigned, no rotation fields
  anchor after today -> scheduled (displayed as home), rotates on the anchor
  unknown regime     -> UnrecognizedRegimeError (caller error)
*/
package rotation

import (
	"errors"

	"github.com/warp/rotation-engine/generic"
)

// ClockResult is the derived rotation state for one day.
// NextRotationDate and DaysUntilRotation are nil when the worker does not rotate.
type ClockResult struct {
	Status            generic.Status
	NextRotationDate  *generic.Date
	DaysUntilRotation *int

	// PhaseStart is the first day of the phase containing today.
	// Zero unless the regime rotates and the anchor has been reached.
	PhaseStart generic.Date
}

// Compute derives status and the next rotation boundary.
func Compute(regime generic.Regime, anchorDate generic.Date, anchorLocation generic.Location, today generic.Date, interrupted bool) (ClockResult, error) {
	if interrupted {
		return ClockResult{Status: generic.StatusInterrupted}, nil
	}

	switch regime {
	case generic.RegimeAlways:
		return ClockResult{Status: generic.StatusAboard}, nil
	case generic.RegimeNone:
		return ClockResult{Status: generic.StatusUnassigned}, nil
	}

	phaseDays, ok := regime.PhaseDays()
	if !ok {
		return ClockResult{}, &generic.UnrecognizedRegimeError{Value: string(regime)}
	}

	if anchorDate.After(today) {
		return scheduled(anchorDate, generic.DaysBetween(today, anchorDate)), nil
	}

	elapsed := generic.DaysBetween(anchorDate, today)
	phaseIndex := elapsed / phaseDays

	location := anchorLocation
	if phaseIndex%2 == 1 {
		location = anchorLocation.Opposite()
	}

	next := anchorDate.AddDays((phaseIndex + 1) * phaseDays)
	days := generic.DaysBetween(today, next)
	return ClockResult{
		Status:            generic.StatusFor(location),
		NextRotationDate:  &next,
		DaysUntilRotation: &days,
		PhaseStart:        anchorDate.AddDays(phaseIndex * phaseDays),
	}, nil
}

// ComputeFor runs Compute against a stored worker record.
func ComputeFor(w generic.Worker, today generic.Date) (ClockResult, error) {
	res, err := Compute(w.Regime, w.AnchorDate, w.AnchorLocation, today, w.CurrentStatus == generic.StatusInterrupted)
	var regimeErr *generic.UnrecognizedRegimeError
	if errors.As(err, &regimeErr) {
		regimeErr.WorkerID = w.ID
	}
	return res, err
}

func scheduled(anchor generic.Date, days int) ClockResult {
	return ClockResult{
		Status:            generic.StatusScheduled,
		NextRotationDate:  &anchor,
		DaysUntilRotation: &days,
	}
}
