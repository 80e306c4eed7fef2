// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	service "github.com/okian/medrisk/internal/app"
	"github.com/okian/medrisk/internal/domain/features"
	"github.com/okian/medrisk/internal/domain/job"
	"github.com/okian/medrisk/internal/domain/scoring"
	"github.com/okian/medrisk/pkg/logger"
	"github.com/okian/medrisk/pkg/metrics"
)

// Route prefixes.
const (
	PathPrefix   = "/api/ai"
	PathLight    = PathPrefix + "/predict/light"
	PathFull     = PathPrefix + "/predict/full"
	PathJobs     = PathPrefix + "/predict/jobs/"
	maxBodyBytes = 64 << 10
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PredictDependencies
	JobDependencies
	StatsProvider
	ReadinessProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	rootHandler    *RootHandler
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
	jobsHandler    *JobsHandler
	fullLimiter    *rate.Limiter
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithFullRateLimit limits POST /predict/full to rps requests per second
// with the given burst. rps <= 0 disables the limiter.
func WithFullRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.fullLimiter = nil
			return
		}
		if burst <= 0 {
			burst = max(int(rps), 1)
		}
		s.fullLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		rootHandler:    NewRootHandler(deps),
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		predictHandler: NewPredictHandler(deps),
		jobsHandler:    NewJobsHandler(deps),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/", MetricsMiddleware(s.rootHandler.HandleRoot, "root"))
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc(PathLight, MetricsMiddleware(s.predictHandler.HandleLight, "predict_light"))
	mux.HandleFunc(PathFull, MetricsMiddleware(
		RateLimitMiddleware(s.predictHandler.HandleFull, "predict_full", s.fullLimiter), "predict_full"))
	mux.HandleFunc(PathJobs, MetricsMiddleware(s.jobsHandler.HandleJob, "predict_jobs"))
}

// errorBody is the error member of the failure envelope.
type errorBody struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Fields  []features.FieldError `json:"fields,omitempty"`
}

type errorResponse struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

type dataResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeFailure maps err to a status and a caller-safe message. Only the
// kinds below reach the client verbatim; everything else is logged and
// reported as an internal error.
func writeFailure(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error) {
	var verr *features.ValidationError
	switch {
	case errors.As(err, &verr):
		metrics.RecordValidationError()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Code:    "validation_error",
			Message: "invalid feature payload",
			Fields:  verr.Fields,
		}})
	case errors.Is(err, features.ErrMalformed), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", "request body must be a JSON object")
	case errors.Is(err, ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
			"request body exceeds "+strconv.Itoa(maxBodyBytes)+" bytes")
	case errors.Is(err, ErrRouteNotFound):
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", "job queue is full, retry later")
	case errors.Is(err, ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, retry later")
	default:
		log.Error(ctx, "request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// jobView is the wire shape of a job.
type jobView struct {
	JobID       string              `json:"job_id"`
	State       job.State           `json:"state"`
	Preview     scoring.Result      `json:"preview"`
	Result      *scoring.FullResult `json:"result,omitempty"`
	Error       *job.ErrorRecord    `json:"error,omitempty"`
	CreatedAt   string              `json:"created_at"`
	StartedAt   string              `json:"started_at,omitempty"`
	CompletedAt string              `json:"completed_at,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func newJobView(j job.Job) jobView {
	v := jobView{
		JobID:     j.ID,
		State:     j.State,
		Preview:   j.Preview,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.UTC().Format(timeLayout),
	}
	if !j.StartedAt.IsZero() {
		v.StartedAt = j.StartedAt.UTC().Format(timeLayout)
	}
	if !j.CompletedAt.IsZero() {
		v.CompletedAt = j.CompletedAt.UTC().Format(timeLayout)
	}
	return v
}

func statusURL(id string) string {
	return PathJobs + id
}
