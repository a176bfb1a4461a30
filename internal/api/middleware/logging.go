package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logging writes one access log line per request. It runs inside RequestID
// so request_id (and trace_id/span_id when tracing is active) are on the
// context when the line is emitted.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		slog.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}
