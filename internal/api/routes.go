package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the HTTP router. The webhook and redirect
// endpoints live outside /api: they are called by the provider and by
// recipients' mail clients, not by the admin surface.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/emails", func(r chi.Router) {
			r.Post("/", h.CreateEmail)
			r.Get("/{id}", h.GetEmail)
			r.Post("/{id}/retry", h.RetryEmail)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/bulk", h.BulkSuppressionCheck)
			r.Get("/{email}", h.GetSuppression)
			r.Delete("/{email}", h.RemoveSuppression)
		})
	})

	r.Post("/webhooks/mail-events", h.MailEventWebhook)
	r.Get("/r/{token}/{sig}", h.Redirect)

	return r
}
