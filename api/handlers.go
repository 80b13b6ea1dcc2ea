/*
handlers.go - HTTP API handlers for the rotation service

PURPOSE:
  Exposes the rotation engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain packages.

ENDPOINTS:
  Workers:
    GET    /api/workers                    List all workers
    POST   /api/workers                    Onboard worker
    GET    /api/workers/{id}               Get worker
    GET    /api/workers/{id}/status        Clock view (?date=YYYY-MM-DD)
    GET    /api/workers/{id}/history       Rotation history
    POST   /api/workers/{id}/interrupt     Mark interrupted (illness)
    POST   /api/workers/{id}/recover       End interruption, open stand-back
    PUT    /api/workers/{id}/regime        Change regime

  Stand-back:
    GET    /api/standback                  Open records (?worker=, ?all=true)
    GET    /api/standback/{id}             Get record
    POST   /api/standback/{id}/repayments  Apply repayment

  Admin:
    POST   /api/admin/rotation/run         Run the rotation runner (?date=)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Worker or record not found
  - 409: Concurrent repayment conflict
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Deploy behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/rotation-engine/generic"
	"github.com/warp/rotation-engine/rotation"
	"github.com/warp/rotation-engine/standback"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the handlers read and write.
type Store interface {
	generic.CrewRepository
	generic.RotationHistoryStore
	generic.StandBackRepository
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Runner   DailyRunner
	Actions  *rotation.Actions
	Ledger   *standback.Ledger
	Recovery *standback.Recovery
	Location *time.Location
	Logger   *slog.Logger
}

// NewHandler wires handlers against one store.
func NewHandler(store Store, runner DailyRunner, requiredDays int, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Runner:   runner,
		Actions:  rotation.NewActions(store, logger),
		Ledger:   standback.NewLedger(store, logger),
		Recovery: standback.NewRecovery(store, requiredDays, logger),
		Location: loc,
		Logger:   logger.With("component", "api"),
	}
}

// =============================================================================
// WORKERS
// =============================================================================

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.ListWorkers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list workers", err)
		return
	}
	dtos := make([]WorkerDTO, 0, len(workers))
	for _, wk := range workers {
		dtos = append(dtos, toWorkerDTO(wk))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := h.Store.GetWorker(r.Context(), workerParam(r))
	if err != nil {
		writeDomainError(w, "failed to get worker", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(wk))
}

func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	wk, err := h.newWorker(req)
	if err != nil {
		writeDomainError(w, "invalid worker", err)
		return
	}
	if _, err := h.Store.GetWorker(r.Context(), wk.ID); err == nil {
		writeError(w, http.StatusConflict, "worker already exists", nil)
		return
	}
	if err := h.Store.SaveWorker(r.Context(), wk); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save worker", err)
		return
	}
	saved, err := h.Store.GetWorker(r.Context(), wk.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload worker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(saved))
}

// newWorker validates an onboarding request and derives the initial status.
func (h *Handler) newWorker(req CreateWorkerRequest) (generic.Worker, error) {
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Name) == "" {
		return generic.Worker{}, fmt.Errorf("%w: id and name are required", generic.ErrInvalidWorker)
	}
	regime, err := generic.ParseRegime(req.Regime)
	if err != nil {
		return generic.Worker{}, err
	}
	wk := generic.Worker{
		ID:             generic.WorkerID(strings.TrimSpace(req.ID)),
		Name:           strings.TrimSpace(req.Name),
		Regime:         regime,
		AnchorDate:     req.AnchorDate,
		AnchorLocation: generic.Location(req.AnchorLocation),
	}
	if regime.Rotates() {
		if wk.AnchorDate.IsZero() || !wk.AnchorLocation.Valid() {
			return generic.Worker{}, fmt.Errorf("%w: rotating regimes need anchorDate and anchorLocation", generic.ErrInvalidWorker)
		}
	}
	res, err := rotation.ComputeFor(wk, h.today())
	if err != nil {
		return generic.Worker{}, err
	}
	wk.CurrentStatus = res.Status.Stored()
	return wk, nil
}

func (h *Handler) GetWorkerStatus(w http.ResponseWriter, r *http.Request) {
	date, err := h.dateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	wk, err := h.Store.GetWorker(r.Context(), workerParam(r))
	if err != nil {
		writeDomainError(w, "failed to get worker", err)
		return
	}
	res, err := rotation.ComputeFor(wk, date)
	if err != nil {
		writeDomainError(w, "cannot compute status", err)
		return
	}

	display := res.Status.Stored()
	if wk.CurrentStatus == generic.StatusDeparted {
		display = generic.StatusDeparted
	}
	writeJSON(w, http.StatusOK, StatusDTO{
		WorkerID:          string(wk.ID),
		Date:              date,
		StoredStatus:      string(wk.CurrentStatus),
		DerivedStatus:     string(res.Status),
		DisplayStatus:     string(display),
		NextRotationDate:  res.NextRotationDate,
		DaysUntilRotation: res.DaysUntilRotation,
	})
}

func (h *Handler) GetWorkerHistory(w http.ResponseWriter, r *http.Request) {
	id := workerParam(r)
	if _, err := h.Store.GetWorker(r.Context(), id); err != nil {
		writeDomainError(w, "failed to get worker", err)
		return
	}
	entries, err := h.Store.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history", err)
		return
	}
	dtos := make([]HistoryEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, HistoryEntryDTO{
			ID:            e.ID,
			EffectiveDate: e.EffectiveDate,
			From:          string(e.From),
			To:            string(e.To),
			Source:        string(e.Source),
			RecordedAt:    e.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) InterruptWorker(w http.ResponseWriter, r *http.Request) {
	var req InterruptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Since.IsZero() {
		req.Since = h.today()
	}
	wk, err := h.Actions.Interrupt(r.Context(), workerParam(r), req.Since)
	if err != nil {
		writeDomainError(w, "failed to interrupt worker", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(wk))
}

func (h *Handler) RecoverWorker(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ReturnDate.IsZero() {
		writeError(w, http.StatusBadRequest, "returnDate is required", nil)
		return
	}
	wk, rec, err := h.Recovery.Recover(r.Context(), workerParam(r), req.ReturnDate)
	if err != nil {
		writeDomainError(w, "failed to record recovery", err)
		return
	}
	writeJSON(w, http.StatusCreated, RecoverResponse{
		Worker:    toWorkerDTO(wk),
		StandBack: toStandBackDTO(rec),
	})
}

func (h *Handler) ChangeRegime(w http.ResponseWriter, r *http.Request) {
	var req ChangeRegimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	regime, err := generic.ParseRegime(req.Regime)
	if err != nil {
		writeDomainError(w, "invalid regime", err)
		return
	}
	date := h.today()
	if req.Date != nil && !req.Date.IsZero() {
		date = *req.Date
	}
	wk, err := h.Actions.ChangeRegime(r.Context(), workerParam(r), regime, date)
	if err != nil {
		writeDomainError(w, "failed to change regime", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(wk))
}

// =============================================================================
// STAND-BACK
// =============================================================================

func (h *Handler) ListStandBack(w http.ResponseWriter, r *http.Request) {
	workerID := generic.WorkerID(r.URL.Query().Get("worker"))
	all := r.URL.Query().Get("all") == "true"

	var (
		recs []generic.StandBackRecord
		err  error
	)
	if all && workerID != "" {
		recs, err = h.Ledger.ListByWorker(r.Context(), workerID)
	} else {
		recs, err = h.Ledger.ListOpen(r.Context(), workerID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list stand-back records", err)
		return
	}
	dtos := make([]StandBackDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, toStandBackDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetStandBack(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Get(r.Context(), generic.StandBackID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to get stand-back record", err)
		return
	}
	writeJSON(w, http.StatusOK, toStandBackDTO(rec))
}

func (h *Handler) ApplyRepayment(w http.ResponseWriter, r *http.Request) {
	var req ApplyRepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rec, err := h.Ledger.Apply(r.Context(), standback.Repayment{
		RecordID:          generic.StandBackID(chi.URLParam(r, "id")),
		DaysApplied:       req.DaysApplied,
		DateRange:         req.DateRange,
		Note:              req.Note,
		ExpectedRemaining: req.ExpectedRemaining,
	})
	if err != nil {
		writeDomainError(w, "failed to apply repayment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStandBackDTO(rec))
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerRotationRun runs the runner for ?date= (default today). A day that
// was already processed returns alreadyRan=true with no changes.
func (h *Handler) TriggerRotationRun(w http.ResponseWriter, r *http.Request) {
	date, err := h.dateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	summary, err := h.Runner.RunOnce(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rotation run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(summary))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) today() generic.Date {
	return generic.Today(h.Location)
}

func (h *Handler) dateParam(r *http.Request, name string) (generic.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return h.today(), nil
	}
	return generic.ParseDate(raw)
}

func workerParam(r *http.Request) generic.WorkerID {
	return generic.WorkerID(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, generic.ErrConcurrentRepaymentConflict):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]string{"error": message}
	if err != nil {
		resp["details"] = err.Error()
	}
	writeJSON(w, status, resp)
}
