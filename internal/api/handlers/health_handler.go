package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lingodeck/hub/internal/api/response"
)

// Pinger checks connectivity to a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler. db may be nil, in which
// case Ready only reports process liveness.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health check response", "error", err)
	}
}

// Ready handles GET /health/ready: 200 when the database is reachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			response.RespondServiceUnavailable(w, "database unreachable")

			return
		}
	}

	h.Check(w, r)
}
