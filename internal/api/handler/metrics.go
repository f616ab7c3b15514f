package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/powerpulse/pulsedesk/internal/api/response"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

const dateLayout = "2006-01-02"

// MetricsProvider serves cached aggregate rollups.
type MetricsProvider interface {
	Metrics(ctx context.Context) (*models.Rollup, error)
	HistoricalMetrics(ctx context.Context, start, end time.Time) ([]*models.DailyRollup, error)
}

// NewMetricsHandler returns an http.HandlerFunc for GET /api/v1/metrics.
func NewMetricsHandler(svc MetricsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rollup, err := svc.Metrics(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to compute metrics", nil)
			return
		}
		response.JSON(w, rollup)
	}
}

// NewHistoricalMetricsHandler returns an http.HandlerFunc for
// GET /api/v1/metrics/history?start=YYYY-MM-DD&end=YYYY-MM-DD.
func NewHistoricalMetricsHandler(svc MetricsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := parseDateParam(r, "start")
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "start must be a date in YYYY-MM-DD format", nil)
			return
		}
		end, err := parseDateParam(r, "end")
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "end must be a date in YYYY-MM-DD format", nil)
			return
		}
		if end.Before(start) {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "end must not be before start", nil)
			return
		}

		rollups, err := svc.HistoricalMetrics(r.Context(), start, end)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to compute historical metrics", nil)
			return
		}
		if rollups == nil {
			rollups = []*models.DailyRollup{}
		}
		response.JSON(w, rollups)
	}
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	return time.Parse(dateLayout, r.URL.Query().Get(name))
}
