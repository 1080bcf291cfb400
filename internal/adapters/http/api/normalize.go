package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/okian/rubric/internal/app"
	"github.com/okian/rubric/internal/domain/model"
)

// maxBodyBytes bounds the POST /normalize body.
const maxBodyBytes = 4 << 10

// NormalizeDependencies defines the normalization operation.
type NormalizeDependencies interface {
	Normalize(ctx context.Context, target *model.TargetDistribution) (service.Report, error)
}

// NormalizeHandler handles normalization requests.
type NormalizeHandler struct {
	deps NormalizeDependencies
}

// NewNormalizeHandler creates a new normalize handler.
func NewNormalizeHandler(deps NormalizeDependencies) *NormalizeHandler {
	return &NormalizeHandler{deps: deps}
}

// HandleNormalize handles POST /normalize requests. An empty body uses the
// course target.
func (h *NormalizeHandler) HandleNormalize(w http.ResponseWriter, r *http.Request) {
	const op = "api.normalize"
	var target *model.TargetDistribution

	var req normalizeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	switch err := dec.Decode(&req); {
	case errors.Is(err, io.EOF):
	case err != nil:
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	default:
		t, ok := req.target()
		if !ok {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, errors.New("mean, min and max are required")))
			return
		}
		target = &t
	}

	rep, err := h.deps.Normalize(r.Context(), target)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrConfig):
		writeError(w, http.StatusBadRequest, "invalid_target", Wrap(op, err))
		return
	case errors.Is(err, service.ErrNoRecords):
		writeError(w, http.StatusConflict, "no_records", Wrap(op, err))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, normalizeResponse{Partial: rep.Partial(), Report: rep})
}
