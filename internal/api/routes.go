package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/courier/internal/auth"
)

// SetupRoutes configures the full route tree. The webhook endpoint stays
// outside the key middleware: the notification transport cannot present a
// project key, so its payloads authenticate by content instead.
func SetupRoutes(h *Handlers, authManager *auth.Manager) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Post("/webhooks/incoming", h.IncomingWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		if authManager != nil {
			r.Use(authManager.Middleware)
		}

		r.Post("/send", h.SendMessage)

		r.Route("/identities", func(r chi.Router) {
			r.Get("/", h.ListIdentities)
			r.Post("/", h.CreateIdentity)
			r.Get("/{id}", h.GetIdentity)
			r.Delete("/{id}", h.DeleteIdentity)
			r.Post("/{id}/verify", h.VerifyIdentity)
			r.Put("/{id}/tracking", h.ConfigureTracking)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", h.ListMessages)
			r.Get("/{id}", h.GetMessage)
			r.Get("/{id}/events", h.ListMessageEvents)
		})
	})

	return r
}
