package api

import (
	"net/http"

	"github.com/okian/medrisk/pkg/logger"
)

// ServiceName is reported by the root route.
const ServiceName = "ai-service"

// ReadinessProvider reports whether the service accepts work.
type ReadinessProvider interface {
	Ready() bool
}

// RootHandler serves GET /, the service status route.
type RootHandler struct {
	deps   ReadinessProvider
	logger logger.Logger
}

// NewRootHandler creates a new root handler.
func NewRootHandler(deps ReadinessProvider) *RootHandler {
	return &RootHandler{deps: deps, logger: logger.Get().Named("api")}
}

type rootResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Status  string `json:"status"`
}

// HandleRoot handles GET / requests. Every other unmatched path is a 404.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeFailure(r.Context(), w, h.logger, NewKind("api.root", ErrRouteNotFound))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	if !h.deps.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, rootResponse{Service: ServiceName, Status: "starting"})
		return
	}
	writeJSON(w, http.StatusOK, rootResponse{OK: true, Service: ServiceName, Status: "ready"})
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	deps ReadinessProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps ReadinessProvider) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// HandleHealth handles GET /healthz requests. Liveness never depends on
// readiness; the ready flag is informational.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Status: "ok", Ready: h.deps.Ready()})
}
