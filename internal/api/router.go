package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/powerpulse/pulsedesk/internal/api/middleware"
	"github.com/powerpulse/pulsedesk/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler            http.HandlerFunc
	UploadHandler            http.HandlerFunc
	ActiveUploadsHandler     http.HandlerFunc
	ProgressHandler          http.HandlerFunc
	MetricsHandler           http.HandlerFunc
	HistoricalMetricsHandler http.HandlerFunc
	ListConversations        http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Rate limited routes
	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/uploads", orNotImplemented(deps.UploadHandler))
		r.Get("/api/v1/uploads", orNotImplemented(deps.ActiveUploadsHandler))
		r.Get("/api/v1/uploads/{uploadID}/progress", orNotImplemented(deps.ProgressHandler))

		r.Get("/api/v1/metrics", orNotImplemented(deps.MetricsHandler))
		r.Get("/api/v1/metrics/history", orNotImplemented(deps.HistoricalMetricsHandler))

		r.Get("/api/v1/conversations", orNotImplemented(deps.ListConversations))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
