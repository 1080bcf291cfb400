package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rubric/pkg/logger"
	"github.com/okian/rubric/pkg/metrics"
)

// RequestIDHeader carries the id assigned to each request. A client supplied
// value is kept.
const RequestIDHeader = "X-Request-ID"

// Instrument wraps a route handler: it assigns a request id, records request
// count and latency under route, and logs every response to log.
func Instrument(log logger.Logger, route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(logger.WithFields(r.Context(), logger.String("request_id", id)))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		elapsed := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(route, r.Method, status)
		metrics.RecordHTTPRequestDuration(route, r.Method, status, float64(elapsed.Milliseconds()))

		fields := []logger.Field{
			logger.String("route", route),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("took", elapsed),
		}
		switch {
		case rec.status >= http.StatusInternalServerError:
			log.Error(r.Context(), "request failed", fields...)
		case rec.status >= http.StatusBadRequest:
			log.Warn(r.Context(), "request rejected", append(fields, logger.String("kind", statusKind(rec.status)))...)
		default:
			log.Debug(r.Context(), "request served", fields...)
		}
	}
}

func statusKind(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_record"
	default:
		return "client_error"
	}
}

// statusRecorder remembers the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
