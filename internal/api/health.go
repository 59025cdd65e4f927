package api

import (
	"context"
	"net/http"
	"time"

	"go.hookrelay.dev/internal/dispatch"
)

// HealthHandler reports process and dispatch pool health
type HealthHandler struct {
	pool *dispatch.Pool
	ping func(ctx context.Context) error
}

// NewHealthHandler creates a new health handler. ping is optional and
// usually wraps the Mongo client's Ping.
func NewHealthHandler(pool *dispatch.Pool, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{
		pool: pool,
		ping: ping,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "UP"}

	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "DOWN"
			body["database"] = err.Error()
		} else {
			body["database"] = "UP"
		}
	}

	if h.pool != nil {
		body["dispatch"] = h.pool.Health()
	}

	WriteJSON(w, status, body)
}
