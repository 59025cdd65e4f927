package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the router-level settings
type RouterConfig struct {
	CORSOrigins []string

	// DevMode exposes the token-minting endpoint for local testing
	DevMode bool
}

// NewRouter assembles the HTTP surface: health and metrics in the open,
// the API under bearer auth, and the legacy retry path kept for older
// integrations.
func NewRouter(
	cfg RouterConfig,
	auth *AuthMiddleware,
	webhooks *WebhookHandler,
	events *EventHandler,
	health *HealthHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health.Health)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.DevMode {
		r.Post("/auth/dev-token", devTokenHandler(auth))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Mount("/webhooks", webhooks.Routes())
		r.Mount("/events", events.Routes())
	})

	// Compatibility path for integrations predating the /api/v1 prefix
	r.With(auth.RequireAuth).Post("/webhooks/retry", webhooks.Retry)

	return r
}

// devTokenRequest asks for a local bearer token
type devTokenRequest struct {
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Admin   bool   `json:"admin,omitempty"`
}

func devTokenHandler(auth *AuthMiddleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req devTokenRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteBadRequest(w, "Invalid request body: "+err.Error())
			return
		}
		if req.Subject == "" {
			WriteBadRequest(w, "subject is required")
			return
		}

		token, err := auth.IssueToken(req.Subject, req.Name, req.Admin, 8*time.Hour)
		if err != nil {
			WriteInternalError(w, "Failed to issue token")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
