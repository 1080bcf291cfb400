// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/rubric/internal/app"
	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/internal/domain/types"
	"github.com/okian/rubric/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RecordsDependencies
	StatsDependencies
	NormalizeDependencies
}

// Entry mirrors the read shape returned by record listings.
type Entry = types.Entry

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger request outcomes are written to. The global
// logger named "http" is used otherwise.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// Server wires HTTP routes for the business API.
type Server struct {
	logger           logger.Logger
	healthHandler    *HealthHandler
	recordsHandler   *RecordsHandler
	statsHandler     *StatsHandler
	normalizeHandler *NormalizeHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:    NewHealthHandler(),
		recordsHandler:   NewRecordsHandler(deps),
		statsHandler:     NewStatsHandler(deps),
		normalizeHandler: NewNormalizeHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	log := s.logger
	if log == nil {
		log = logger.Named("http")
	}
	mux.HandleFunc("GET /healthz", Instrument(log, "healthz", s.healthHandler.HandleHealth))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /records", Instrument(log, "records", s.recordsHandler.HandleList))
	mux.HandleFunc("GET /records/{id}", Instrument(log, "record", s.recordsHandler.HandleGet))
	mux.HandleFunc("GET /records/{id}/history", Instrument(log, "history", s.recordsHandler.HandleHistory))
	mux.HandleFunc("GET /stats", Instrument(log, "stats", s.statsHandler.HandleStats))
	mux.HandleFunc("POST /normalize", Instrument(log, "normalize", s.normalizeHandler.HandleNormalize))
}

// normalizeRequest is the optional body of POST /normalize. All three
// fields are required when a body is sent.
type normalizeRequest struct {
	Mean *float64 `json:"mean"`
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
}

func (n normalizeRequest) target() (model.TargetDistribution, bool) {
	if n.Mean == nil || n.Min == nil || n.Max == nil {
		return model.TargetDistribution{}, false
	}
	return model.TargetDistribution{Mean: *n.Mean, Min: *n.Min, Max: *n.Max}, true
}

// normalizeResponse wraps a run report with its overall outcome.
type normalizeResponse struct {
	Partial bool           `json:"partial"`
	Report  service.Report `json:"report"`
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
