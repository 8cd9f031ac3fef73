package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/readiness/internal/app"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/pkg/logger"
)

// RecordDependencies defines the ingestion operation used by RecordsHandler.
type RecordDependencies interface {
	Ingest(ctx context.Context, r model.Record) (service.IngestResult, error)
}

// recordRequest is the body of POST /records.
type recordRequest struct {
	RecordID  string             `json:"record_id"`
	AthleteID string             `json:"athlete_id" validate:"required"`
	Date      string             `json:"date" validate:"required,datetime=2006-01-02"`
	Domain    string             `json:"domain" validate:"required"`
	Fields    map[string]float64 `json:"fields" validate:"required,min=1"`
}

func (req recordRequest) record() (model.Record, error) {
	day, err := model.ParseDay(req.Date)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: %w", ErrInvalidDate, err)
	}
	return model.Record{
		ID:        req.RecordID,
		AthleteID: req.AthleteID,
		Date:      day,
		Domain:    model.Domain(req.Domain),
		Fields:    req.Fields,
	}, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	RecordID  string `json:"record_id"`
	Duplicate bool   `json:"duplicate"`
	Queued    bool   `json:"queued"`
}

// RecordsHandler handles record ingestion requests.
type RecordsHandler struct {
	deps     RecordDependencies
	validate *validator.Validate
	logger   logger.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordDependencies, v *validator.Validate, l logger.Logger) *RecordsHandler {
	return &RecordsHandler{deps: deps, validate: v, logger: l}
}

// HandlePostRecord handles POST /records requests. A repeated record id is
// acknowledged with 200 and changes nothing.
func (h *RecordsHandler) HandlePostRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	rec, err := req.record()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	res, err := h.deps.Ingest(r.Context(), rec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", RecordID: res.RecordID, Duplicate: true})
		return
	}

	h.logger.Debug(r.Context(), "record accepted",
		logger.String("record_id", res.RecordID),
		logger.String("athlete_id", rec.AthleteID),
		logger.Bool("queued", res.Queued),
	)
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", RecordID: res.RecordID, Queued: res.Queued})
}
