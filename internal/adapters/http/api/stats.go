package api

import (
	"context"
	"net/http"

	"github.com/okian/rubric/internal/domain/types"
)

// StatsDependencies defines the interface for cohort statistics.
type StatsDependencies interface {
	Stats(ctx context.Context) (types.Stats, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps StatsDependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps StatsDependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap("api.stats", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
