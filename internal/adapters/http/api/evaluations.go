package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
)

// EvaluationDependencies defines the evaluation and query operations used
// by EvaluationHandler.
type EvaluationDependencies interface {
	EvaluateDate(ctx context.Context, day time.Time) ([]types.DailyStatus, error)
	Status(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error)
	StatusesOn(ctx context.Context, day time.Time) ([]types.DailyStatus, error)
}

type statusesResponse struct {
	Date     string              `json:"date"`
	Statuses []types.DailyStatus `json:"statuses"`
}

// EvaluationHandler handles batch evaluation and status requests.
type EvaluationHandler struct {
	deps EvaluationDependencies
	now  func() time.Time
}

// NewEvaluationHandler creates a new evaluation handler. now supplies the
// date for status queries that omit one.
func NewEvaluationHandler(deps EvaluationDependencies, now func() time.Time) *EvaluationHandler {
	if now == nil {
		now = time.Now
	}
	return &EvaluationHandler{deps: deps, now: now}
}

// HandleEvaluate handles POST /evaluations?date=YYYY-MM-DD requests.
func (h *EvaluationHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingDate)
		return
	}
	day, err := parseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	statuses, err := h.deps.EvaluateDate(r.Context(), day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusesResponse{Date: model.DayKey(day), Statuses: nonNil(statuses)})
}

// HandleStatuses handles GET /status?date= requests.
func (h *EvaluationHandler) HandleStatuses(w http.ResponseWriter, r *http.Request) {
	day, err := h.queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	statuses, err := h.deps.StatusesOn(r.Context(), day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusesResponse{Date: model.DayKey(day), Statuses: nonNil(statuses)})
}

// HandleAthleteStatus handles GET /status/{athleteID}?date= requests.
func (h *EvaluationHandler) HandleAthleteStatus(w http.ResponseWriter, r *http.Request) {
	athleteID := chi.URLParam(r, "athleteID")
	day, err := h.queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	st, err := h.deps.Status(r.Context(), athleteID, day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// queryDate reads ?date=, defaulting to today.
func (h *EvaluationHandler) queryDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return model.Day(h.now().UTC()), nil
	}
	return parseDate(raw)
}

func parseDate(raw string) (time.Time, error) {
	day, err := model.ParseDay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return day, nil
}

func nonNil(s []types.DailyStatus) []types.DailyStatus {
	if s == nil {
		return []types.DailyStatus{}
	}
	return s
}
