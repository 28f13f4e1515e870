// Package router assembles the HTTP API: public webhook endpoints, the
// JWT-protected admin API, health and metrics.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/citaflow/citaflow/internal/http/handlers"
	"github.com/citaflow/citaflow/internal/http/middleware"
	"github.com/citaflow/citaflow/pkg/logging"
)

// Config carries everything the router needs. Admin is optional; when nil
// the admin routes are not mounted.
type Config struct {
	Webhooks       *handlers.MetaWebhookHandler
	Admin          *handlers.AdminHandler
	AdminJWTSecret string
	AllowedOrigins []string
	Logger         *logging.Logger
}

// New builds the chi router.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.Webhooks != nil {
		r.Get("/webhooks/meta", cfg.Webhooks.HandleVerify)
		r.Post("/webhooks/meta", cfg.Webhooks.HandleWebhook)
	}

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Get("/clients", cfg.Admin.ListClients)
			admin.Get("/conversations", cfg.Admin.ListConversations)
			admin.Get("/conversations/{conversationID}/messages", cfg.Admin.ListMessages)
			admin.Get("/conversations/{conversationID}/bookings", cfg.Admin.ListBookings)
			admin.Get("/handoffs", cfg.Admin.ListHandoffs)
			admin.Patch("/handoffs/{handoffID}", cfg.Admin.UpdateHandoff)
			admin.Get("/knowledge", cfg.Admin.ListKnowledge)
			admin.Put("/knowledge", cfg.Admin.UpsertKnowledge)
			admin.Delete("/knowledge/{key}", cfg.Admin.DeleteKnowledge)
			admin.Get("/jobs/{jobID}", cfg.Admin.GetJob)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
