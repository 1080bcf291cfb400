package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/rubric/internal/adapters/repository"
	"github.com/okian/rubric/internal/domain/model"
)

// RecordsDependencies defines the read operations on score records.
type RecordsDependencies interface {
	Records(ctx context.Context) ([]Entry, error)
	Record(ctx context.Context, id string) (model.ScoreRecord, error)
	History(ctx context.Context, id string) ([]model.NormalizationAudit, error)
}

// RecordsHandler handles record requests.
type RecordsHandler struct {
	deps RecordsDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordsDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

// HandleList handles GET /records requests.
func (h *RecordsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_records"
	entries, err := h.deps.Records(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGet handles GET /records/{id} requests.
func (h *RecordsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_record"
	id, ok := recordID(w, r, op)
	if !ok {
		return
	}
	rec, err := h.deps.Record(r.Context(), id)
	if err != nil {
		writeLookupError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleHistory handles GET /records/{id}/history requests.
func (h *RecordsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_history"
	id, ok := recordID(w, r, op)
	if !ok {
		return
	}
	audits, err := h.deps.History(r.Context(), id)
	if err != nil {
		writeLookupError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, audits)
}

func recordID(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return "", false
	}
	return id, true
}

func writeLookupError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
	case errors.Is(err, repository.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, model.ErrData):
		writeError(w, http.StatusUnprocessableEntity, "invalid_record", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
