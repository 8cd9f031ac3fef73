package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/readiness/internal/domain/model"
)

// RosterDependencies defines the roster operations used by AthletesHandler.
type RosterDependencies interface {
	UpsertAthlete(ctx context.Context, a model.Athlete) error
	Athletes(ctx context.Context) ([]model.Athlete, error)
}

// AthletesHandler handles roster requests.
type AthletesHandler struct {
	deps RosterDependencies
}

// NewAthletesHandler creates a new athletes handler.
func NewAthletesHandler(deps RosterDependencies) *AthletesHandler {
	return &AthletesHandler{deps: deps}
}

// HandleUpsert handles POST /athletes requests. The service validates the
// entry.
func (h *AthletesHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var a model.Athlete
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := h.deps.UpsertAthlete(r.Context(), a); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleList handles GET /athletes requests.
func (h *AthletesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	roster, err := h.deps.Athletes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if roster == nil {
		roster = []model.Athlete{}
	}
	writeJSON(w, http.StatusOK, roster)
}
