// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/okian/readiness/internal/adapters/repository"
	service "github.com/okian/readiness/internal/app"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	StatsProvider

	UpsertAthlete(ctx context.Context, a model.Athlete) error
	Athletes(ctx context.Context) ([]model.Athlete, error)

	// Ingest stores one record and queues its re-evaluation.
	Ingest(ctx context.Context, r model.Record) (service.IngestResult, error)

	EvaluateDate(ctx context.Context, day time.Time) ([]types.DailyStatus, error)
	Status(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error)
	StatusesOn(ctx context.Context, day time.Time) ([]types.DailyStatus, error)
}

// Server wires HTTP routes for the readiness API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	athletesHandler   *AthletesHandler
	recordsHandler    *RecordsHandler
	evaluationHandler *EvaluationHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("api")
	}
	v := validator.New()

	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(deps),
		athletesHandler:   NewAthletesHandler(deps),
		recordsHandler:    NewRecordsHandler(deps, v, o.logger),
		evaluationHandler: NewEvaluationHandler(deps, o.now),
	}
}

// Routes returns a router with every API route and the common middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.With(MetricsMiddleware("healthz")).Get("/healthz", s.healthHandler.HandleHealth)
	r.With(MetricsMiddleware("stats")).Get("/stats", s.statsHandler.HandleStats)

	r.Route("/athletes", func(r chi.Router) {
		r.Use(MetricsMiddleware("athletes"))
		r.Get("/", s.athletesHandler.HandleList)
		r.Post("/", s.athletesHandler.HandleUpsert)
	})
	r.With(MetricsMiddleware("records")).Post("/records", s.recordsHandler.HandlePostRecord)
	r.With(MetricsMiddleware("evaluations")).Post("/evaluations", s.evaluationHandler.HandleEvaluate)

	r.Route("/status", func(r chi.Router) {
		r.Use(MetricsMiddleware("status"))
		r.Get("/", s.evaluationHandler.HandleStatuses)
		r.Get("/{athleteID}", s.evaluationHandler.HandleAthleteStatus)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrMalformedRecord):
		writeError(w, http.StatusBadRequest, "malformed_record", err)
	case errors.Is(err, service.ErrInvalidAthlete):
		writeError(w, http.StatusBadRequest, "invalid_athlete", err)
	case errors.Is(err, repository.ErrAthleteNotFound):
		writeError(w, http.StatusNotFound, "athlete_not_found", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "cancelled", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", nil)
	}
}
