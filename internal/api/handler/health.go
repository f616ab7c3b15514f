// Package handler contains the HTTP handlers for the PulseDesk API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/powerpulse/pulsedesk/internal/api/response"
)

// Pinger is anything with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. It
// reports degraded with a 503 when either backing service is unreachable.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Database: "ok", Cache: "ok"}
		if err := db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
		}
		if err := cache.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Cache = "unreachable"
		}

		if resp.Status != "ok" {
			response.JSONStatus(w, http.StatusServiceUnavailable, resp)
			return
		}
		response.JSON(w, resp)
	}
}
