/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and domain packages, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/rotation-engine/generic"
	"github.com/warp/rotation-engine/rotation"
)

// =============================================================================
// WORKERS
// =============================================================================

// WorkerDTO represents a worker in API responses.
type WorkerDTO struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Regime           string        `json:"regime"`
	AnchorDate       generic.Date  `json:"anchorDate"`
	AnchorLocation   string        `json:"anchorLocation"`
	CurrentStatus    string        `json:"currentStatus"`
	InterruptedSince *generic.Date `json:"interruptedSince,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// CreateWorkerRequest onboards a worker.
type CreateWorkerRequest struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Regime         string       `json:"regime"`
	AnchorDate     generic.Date `json:"anchorDate"`
	AnchorLocation string       `json:"anchorLocation"`
}

// StatusDTO is the regime clock's view of a worker on a date.
type StatusDTO struct {
	WorkerID          string        `json:"workerId"`
	Date              generic.Date  `json:"date"`
	StoredStatus      string        `json:"storedStatus"`
	DerivedStatus     string        `json:"derivedStatus"`
	DisplayStatus     string        `json:"displayStatus"`
	NextRotationDate  *generic.Date `json:"nextRotationDate"`
	DaysUntilRotation *int          `json:"daysUntilRotation"`
}

// HistoryEntryDTO is one rotation history line.
type HistoryEntryDTO struct {
	ID            int64        `json:"id"`
	EffectiveDate generic.Date `json:"effectiveDate"`
	From          string       `json:"from"`
	To            string       `json:"to"`
	Source        string       `json:"source"`
	RecordedAt    time.Time    `json:"recordedAt"`
}

// InterruptRequest suspends a worker's rotation.
type InterruptRequest struct {
	Since generic.Date `json:"since"`
}

// RecoverRequest ends an interruption.
type RecoverRequest struct {
	ReturnDate generic.Date `json:"returnDate"`
}

// RecoverResponse carries the reset worker and the new obligation.
type RecoverResponse struct {
	Worker    WorkerDTO    `json:"worker"`
	StandBack StandBackDTO `json:"standBack"`
}

// ChangeRegimeRequest switches a worker's regime.
type ChangeRegimeRequest struct {
	Regime string        `json:"regime"`
	Date   *generic.Date `json:"date,omitempty"`
}

// =============================================================================
// STAND-BACK
// =============================================================================

// StandBackDTO represents a stand-back record.
type StandBackDTO struct {
	ID            string          `json:"id"`
	WorkerID      string          `json:"workerId"`
	EpisodeStart  generic.Date    `json:"episodeStart"`
	EpisodeEnd    generic.Date    `json:"episodeEnd"`
	RequiredDays  int             `json:"requiredDays"`
	CompletedDays int             `json:"completedDays"`
	RemainingDays int             `json:"remainingDays"`
	Status        string          `json:"status"`
	Progress      decimal.Decimal `json:"progress"`
	Repayments    []RepaymentDTO  `json:"repayments"`
}

// RepaymentDTO is one repayment line.
type RepaymentDTO struct {
	ID          string         `json:"id"`
	DaysApplied int            `json:"daysApplied"`
	DateRange   generic.Period `json:"dateRange"`
	Note        string         `json:"note,omitempty"`
	RecordedAt  time.Time      `json:"recordedAt"`
}

// ApplyRepaymentRequest records days worked back.
type ApplyRepaymentRequest struct {
	DaysApplied       int            `json:"daysApplied"`
	DateRange         generic.Period `json:"dateRange"`
	Note              string         `json:"note"`
	ExpectedRemaining *int           `json:"expectedRemaining,omitempty"`
}

// =============================================================================
// RUNS
// =============================================================================

// RunSummaryDTO is the JSON form of rotation.RunSummary.
type RunSummaryDTO struct {
	Date         generic.Date      `json:"date"`
	AlreadyRan   bool              `json:"alreadyRan"`
	TotalChanges int               `json:"totalChanges"`
	Results      []WorkerResultDTO `json:"perWorkerResults"`
}

// WorkerResultDTO is one per-worker outcome.
type WorkerResultDTO struct {
	WorkerID string  `json:"workerId"`
	Outcome  string  `json:"outcome"`
	From     string  `json:"from,omitempty"`
	To       string  `json:"to,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toWorkerDTO(w generic.Worker) WorkerDTO {
	dto := WorkerDTO{
		ID:             string(w.ID),
		Name:           w.Name,
		Regime:         string(w.Regime),
		AnchorDate:     w.AnchorDate,
		AnchorLocation: string(w.AnchorLocation),
		CurrentStatus:  string(w.CurrentStatus),
		UpdatedAt:      w.UpdatedAt,
	}
	if !w.InterruptedSince.IsZero() {
		since := w.InterruptedSince
		dto.InterruptedSince = &since
	}
	return dto
}

func toStandBackDTO(r generic.StandBackRecord) StandBackDTO {
	dto := StandBackDTO{
		ID:            string(r.ID),
		WorkerID:      string(r.WorkerID),
		EpisodeStart:  r.EpisodeStart,
		EpisodeEnd:    r.EpisodeEnd,
		RequiredDays:  r.RequiredDays,
		CompletedDays: r.CompletedDays,
		RemainingDays: r.RemainingDays,
		Status:        string(r.Status),
		Progress:      r.Progress(),
		Repayments:    make([]RepaymentDTO, 0, len(r.Repayments)),
	}
	for _, p := range r.Repayments {
		dto.Repayments = append(dto.Repayments, RepaymentDTO{
			ID:          p.ID,
			DaysApplied: p.DaysApplied,
			DateRange:   p.DateRange,
			Note:        p.Note,
			RecordedAt:  p.RecordedAt,
		})
	}
	return dto
}

func toRunSummaryDTO(s rotation.RunSummary) RunSummaryDTO {
	dto := RunSummaryDTO{
		Date:         s.Date,
		AlreadyRan:   s.AlreadyRan,
		TotalChanges: s.TotalChanges,
		Results:      make([]WorkerResultDTO, 0, len(s.Results)),
	}
	for _, r := range s.Results {
		line := WorkerResultDTO{
			WorkerID: string(r.WorkerID),
			Outcome:  string(r.Outcome),
			From:     string(r.From),
			To:       string(r.To),
		}
		if r.Err != nil {
			line.Error = strPtr(r.Err.Error())
		}
		dto.Results = append(dto.Results, line)
	}
	return dto
}

func strPtr(s string) *string {
	return &s
}
