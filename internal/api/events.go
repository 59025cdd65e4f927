package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/publisher"
)

// EventHandler handles the producer-facing event intake
type EventHandler struct {
	publisher *publisher.Publisher
	batcher   *publisher.Batcher
}

// NewEventHandler creates a new event handler. The batcher is optional;
// without it async requests fall back to synchronous publishing.
func NewEventHandler(pub *publisher.Publisher, batcher *publisher.Batcher) *EventHandler {
	return &EventHandler{
		publisher: pub,
		batcher:   batcher,
	}
}

// Routes returns the router for event endpoints
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	return r
}

// CreateEventRequest represents an event submission
type CreateEventRequest struct {
	Type       string         `json:"type"`
	UserID     string         `json:"userId,omitempty"`
	ResourceID string         `json:"resourceId,omitempty"`
	Payload    map[string]any `json:"payload"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Async queues the event instead of waiting for fan-out
	Async bool `json:"async,omitempty"`
}

// Create handles POST /events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if common.PrincipalFrom(r.Context()) == nil {
		WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateEventRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	event := &publisher.Event{
		Type:       req.Type,
		UserID:     req.UserID,
		ResourceID: req.ResourceID,
		Payload:    req.Payload,
		Metadata:   req.Metadata,
	}

	if req.Async && h.batcher != nil {
		if req.Type == "" || req.Payload == nil {
			WriteBadRequest(w, "type and payload are required")
			return
		}
		if !h.batcher.PublishAsync(event) {
			WriteError(w, http.StatusServiceUnavailable, "buffer_full", "Publish buffer is full")
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	result := h.publisher.Publish(r.Context(), event)
	WriteUseCaseResult(w, result, http.StatusCreated)
}
