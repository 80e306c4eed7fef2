package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/medrisk/internal/domain/job"
	"github.com/okian/medrisk/pkg/logger"
)

// JobDependencies defines the interface for job lookup and cancellation.
type JobDependencies interface {
	Job(ctx context.Context, id string) (job.Job, error)
	Cancel(ctx context.Context, id string) (job.Job, error)
}

// JobsHandler handles job status requests.
type JobsHandler struct {
	deps   JobDependencies
	logger logger.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobDependencies) *JobsHandler {
	return &JobsHandler{deps: deps, logger: logger.Get().Named("api")}
}

// HandleJob handles GET and DELETE /api/ai/predict/jobs/{id} requests.
func (h *JobsHandler) HandleJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.job"
	id := strings.TrimPrefix(r.URL.Path, PathJobs)
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", "job id is required")
		return
	}

	var (
		j   job.Job
		err error
	)
	switch r.Method {
	case http.MethodGet:
		j, err = h.deps.Job(r.Context(), id)
	case http.MethodDelete:
		j, err = h.deps.Cancel(r.Context(), id)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
		return
	}
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}

	writeData(w, http.StatusOK, newJobView(j))
}
