package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	service "github.com/okian/medrisk/internal/app"
	"github.com/okian/medrisk/internal/domain/features"
	"github.com/okian/medrisk/internal/domain/scoring"
	"github.com/okian/medrisk/pkg/logger"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 255

	msgAccepted  = "Full compute started in background (simulated)"
	msgDuplicate = "Duplicate submission, returning the original job"
)

// PredictDependencies defines the interface for prediction operations.
type PredictDependencies interface {
	PredictLight(ctx context.Context, fs features.FeatureSet) scoring.Result
	Submit(ctx context.Context, fs features.FeatureSet, idempotencyKey string) (service.Submission, error)
}

// PredictHandler handles the light and full prediction routes.
type PredictHandler struct {
	deps   PredictDependencies
	logger logger.Logger
}

// NewPredictHandler creates a new prediction handler.
func NewPredictHandler(deps PredictDependencies) *PredictHandler {
	return &PredictHandler{deps: deps, logger: logger.Get().Named("api")}
}

// fullResponse is the acknowledgement of POST /predict/full.
type fullResponse struct {
	OK          bool           `json:"ok"`
	Status      string         `json:"status"`
	JobID       string         `json:"job_id"`
	StatusURL   string         `json:"status_url"`
	DataPreview scoring.Result `json:"data_preview"`
	Message     string         `json:"message"`
}

// HandleLight handles POST /api/ai/predict/light requests.
func (h *PredictHandler) HandleLight(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_light"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	fs, err := decodeFeatures(w, r)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}

	writeData(w, http.StatusOK, h.deps.PredictLight(r.Context(), fs))
}

// HandleFull handles POST /api/ai/predict/full requests.
func (h *PredictHandler) HandleFull(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_full"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, http.StatusBadRequest, "bad_request", "Idempotency-Key is too long")
		return
	}

	fs, err := decodeFeatures(w, r)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}

	sub, err := h.deps.Submit(r.Context(), fs, key)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}

	resp := fullResponse{
		OK:          true,
		Status:      "accepted",
		JobID:       sub.Job.ID,
		StatusURL:   statusURL(sub.Job.ID),
		DataPreview: sub.Job.Preview,
		Message:     msgAccepted,
	}
	if sub.Duplicate {
		resp.Status = "duplicate"
		resp.Message = msgDuplicate
	}
	w.Header().Set("Location", resp.StatusURL)
	writeJSON(w, http.StatusOK, resp)
}

// decodeFeatures reads a bounded body and decodes it into a FeatureSet.
func decodeFeatures(w http.ResponseWriter, r *http.Request) (features.FeatureSet, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return features.FeatureSet{}, ErrPayloadTooLarge
		}
		return features.FeatureSet{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return features.Decode(body)
}
