package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"go.hookrelay.dev/internal/analytics"
	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/publisher"
	"go.hookrelay.dev/internal/registry"
	"go.hookrelay.dev/internal/registry/operations"
	"go.hookrelay.dev/internal/security"
)

// WebhookHandler handles subscription endpoints using use cases
type WebhookHandler struct {
	createUseCase *operations.CreateSubscriptionUseCase
	updateUseCase *operations.UpdateSubscriptionUseCase
	deleteUseCase *operations.DeleteSubscriptionUseCase
	getUseCase    *operations.GetSubscriptionUseCase
	listUseCase   *operations.ListSubscriptionsUseCase

	analytics *analytics.Service
	publisher *publisher.Publisher
}

// NewWebhookHandler creates a new webhook handler with its use cases
func NewWebhookHandler(
	repo registry.Repository,
	validator *security.Validator,
	purger operations.DeliveryPurger,
	analyticsService *analytics.Service,
	pub *publisher.Publisher,
) *WebhookHandler {
	return &WebhookHandler{
		createUseCase: operations.NewCreateSubscriptionUseCase(repo, validator),
		updateUseCase: operations.NewUpdateSubscriptionUseCase(repo, validator),
		deleteUseCase: operations.NewDeleteSubscriptionUseCase(repo, purger),
		getUseCase:    operations.NewGetSubscriptionUseCase(repo),
		listUseCase:   operations.NewListSubscriptionsUseCase(repo),
		analytics:     analyticsService,
		publisher:     pub,
	}
}

// Routes returns the router for webhook endpoints
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/retry", h.Retry)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/test", h.Test)
	r.Get("/{id}/analytics", h.Analytics)

	return r
}

// Create handles POST /webhooks
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd operations.CreateSubscriptionCommand
	if err := DecodeJSON(r, &cmd); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	result := h.createUseCase.Execute(r.Context(), cmd, common.PrincipalFrom(r.Context()))
	WriteUseCaseResult(w, result, http.StatusCreated)
}

// List handles GET /webhooks with pagination, sorting, and filters
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := registry.ListOptions{
		SortField: r.URL.Query().Get("sort"),
		SortDir:   r.URL.Query().Get("order"),
		EventType: r.URL.Query().Get("eventType"),
	}
	if v := r.URL.Query().Get("page"); v != "" {
		opts.Page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		opts.PageSize, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			WriteBadRequest(w, "active must be true or false")
			return
		}
		opts.Active = &active
	}

	result := h.listUseCase.Execute(r.Context(), opts, common.PrincipalFrom(r.Context()))
	if result.IsFailure() {
		WriteUseCaseError(w, result.Error())
		return
	}

	opts.Normalize()
	page := result.Value()
	totalPages := int((page.Total + int64(opts.PageSize) - 1) / int64(opts.PageSize))
	WriteJSON(w, http.StatusOK, PagedResponse[*registry.Subscription]{
		Data:       page.Items,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalItems: page.Total,
		TotalPages: totalPages,
	})
}

// Get handles GET /webhooks/{id}
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	result := h.getUseCase.Execute(r.Context(), chi.URLParam(r, "id"), common.PrincipalFrom(r.Context()))
	WriteUseCaseResult(w, result, http.StatusOK)
}

// Update handles PUT /webhooks/{id}
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cmd operations.UpdateSubscriptionCommand
	if err := DecodeJSON(r, &cmd); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}
	cmd.ID = chi.URLParam(r, "id")

	result := h.updateUseCase.Execute(r.Context(), cmd, common.PrincipalFrom(r.Context()))
	WriteUseCaseResult(w, result, http.StatusOK)
}

// Delete handles DELETE /webhooks/{id}
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	result := h.deleteUseCase.Execute(r.Context(), chi.URLParam(r, "id"), common.PrincipalFrom(r.Context()))
	if result.IsFailure() {
		WriteUseCaseError(w, result.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Webhook deleted",
		"id":      result.Value(),
	})
}

// Test handles POST /webhooks/{id}/test: sends a synthetic event to just
// this webhook
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	principal := common.PrincipalFrom(r.Context())
	subResult := h.getUseCase.Execute(r.Context(), chi.URLParam(r, "id"), principal)
	if subResult.IsFailure() {
		WriteUseCaseError(w, subResult.Error())
		return
	}

	result := h.publisher.PublishTest(r.Context(), subResult.Value())
	WriteUseCaseResult(w, result, http.StatusAccepted)
}

// Analytics handles GET /webhooks/{id}/analytics?period=
func (h *WebhookHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	result := h.analytics.Analytics(r.Context(),
		chi.URLParam(r, "id"),
		r.URL.Query().Get("period"),
		common.PrincipalFrom(r.Context()))
	WriteUseCaseResult(w, result, http.StatusOK)
}

// Retry handles POST /webhooks/retry
func (h *WebhookHandler) Retry(w http.ResponseWriter, r *http.Request) {
	var req analytics.RetryRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	result := h.analytics.ManualRetry(r.Context(), req, common.PrincipalFrom(r.Context()))
	if result.IsFailure() {
		WriteUseCaseError(w, result.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Retry finished",
		"results": result.Value(),
	})
}
