// Package analytics aggregates scored units into dashboard rollups, with a
// Redis cache in front of the database and a persisted metrics table behind.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/internal/cache"
	"github.com/powerpulse/pulsedesk/internal/store"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

const defaultTTL = 5 * time.Minute

// Service computes and caches metric rollups.
type Service struct {
	store store.Store
	cache cache.Cache
	ttl   time.Duration
}

func NewService(st store.Store, c cache.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{store: st, cache: c, ttl: ttl}
}

// Metrics returns the global rollup, serving from cache when fresh. A cache
// failure is never fatal; the database is the source of truth.
func (s *Service) Metrics(ctx context.Context) (*models.Rollup, error) {
	key := cache.MetricsKey()
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("metrics cache read failed", "error", err)
	} else if ok {
		var r models.Rollup
		if err := json.Unmarshal(raw, &r); err == nil {
			return &r, nil
		}
		slog.Warn("discarding corrupt metrics cache entry")
	}

	rollup, err := s.store.GlobalRollup(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute global rollup: %w", err)
	}

	if raw, err := json.Marshal(rollup); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			slog.Warn("metrics cache write failed", "error", err)
		}
	}
	return rollup, nil
}

// HistoricalMetrics returns per-date rollups over [start, end], cached per
// range.
func (s *Service) HistoricalMetrics(ctx context.Context, start, end time.Time) ([]*models.DailyRollup, error) {
	key := cache.HistoricalMetricsKey(start, end)
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("historical metrics cache read failed", "error", err)
	} else if ok {
		var out []*models.DailyRollup
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		slog.Warn("discarding corrupt historical metrics cache entry")
	}

	rollups, err := s.store.HistoricalRollup(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("compute historical rollup: %w", err)
	}

	if raw, err := json.Marshal(rollups); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			slog.Warn("historical metrics cache write failed", "error", err)
		}
	}
	return rollups, nil
}

// Refresh recomputes the global rollup, replaces the cache entry, and
// persists the headline numbers to the metrics table.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.cache.Delete(ctx, cache.MetricsKey()); err != nil {
		slog.Warn("metrics cache invalidation failed", "error", err)
	}

	rollup, err := s.Metrics(ctx)
	if err != nil {
		return err
	}
	return s.persist(ctx, rollup)
}

func (s *Service) persist(ctx context.Context, r *models.Rollup) error {
	now := time.Now().UTC()
	rows := []struct {
		name  string
		value float64
		meta  any
	}{
		{"avg_csi", r.AvgCSI, nil},
		{"avg_effectiveness", r.AvgEffectiveness, nil},
		{"avg_effort", r.AvgEffort, nil},
		{"avg_efficiency", r.AvgEfficiency, nil},
		{"avg_empathy", r.AvgEmpathy, nil},
		{"units_analyzed", float64(r.UnitsAnalyzed), nil},
		{"resolution_rate", r.ResolutionRate, nil},
		{"fcr_rate", r.FCRRate, nil},
		{"avg_response_seconds", r.AvgResponseSeconds, nil},
		{"top_topics", float64(len(r.TopTopics)), r.TopTopics},
	}

	for _, row := range rows {
		var meta json.RawMessage
		if row.meta != nil {
			meta, _ = json.Marshal(row.meta)
		}
		err := s.store.UpsertMetric(ctx, &models.Metric{
			ID:           uuid.New(),
			Name:         row.name,
			Value:        row.value,
			Metadata:     meta,
			CalculatedAt: now,
			UpdatedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("persist metric %s: %w", row.name, err)
		}
	}
	return nil
}
