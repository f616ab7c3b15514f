package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/internal/store"
	"github.com/powerpulse/pulsedesk/internal/store/storetest"
	"github.com/powerpulse/pulsedesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is a map-backed cache.Cache for tests. TTLs are ignored.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) SetUploadStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}

func (c *memCache) GetUploadStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}

func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

// countingStore counts rollup computations to observe cache hits.
type countingStore struct {
	store.Store
	mu      sync.Mutex
	rollups int
}

func (c *countingStore) GlobalRollup(ctx context.Context) (*models.Rollup, error) {
	c.mu.Lock()
	c.rollups++
	c.mu.Unlock()
	return c.Store.GlobalRollup(ctx)
}

func seedScored(t *testing.T, st *storetest.MemoryStore, chatID string, date time.Time, csi, sentiment float64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	conv := &models.Conversation{
		ID: uuid.New(), ChatID: chatID, Topics: []string{"billing"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateConversation(ctx, conv))

	unit := &models.DailyAnalysis{
		ID: uuid.New(), ConversationID: conv.ID, ChatID: chatID,
		AnalysisDate: date, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateDailyAnalyses(ctx, []*models.DailyAnalysis{unit}))

	unit.CSIScore = &csi
	unit.SentimentScore = &sentiment
	unit.ScoredAt = &now
	require.NoError(t, st.UpdateDailyAnalysisScores(ctx, unit))
}

func TestMetrics_EmptyIsAllZero(t *testing.T) {
	svc := NewService(storetest.NewMemoryStore(), newMemCache(), time.Minute)

	r, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.UnitsAnalyzed)
	assert.Zero(t, r.AvgCSI)
	assert.Zero(t, r.ResolutionRate)
	assert.Empty(t, r.TopTopics)
}

func TestMetrics_ComputesAndCaches(t *testing.T) {
	mem := storetest.NewMemoryStore()
	counting := &countingStore{Store: mem}
	svc := NewService(counting, newMemCache(), time.Minute)
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedScored(t, mem, "chat-a", date, 8, 9)
	seedScored(t, mem, "chat-b", date, 6, 3)

	r, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, r.UnitsAnalyzed)
	assert.InDelta(t, 7.0, r.AvgCSI, 1e-9)
	assert.Equal(t, 1, r.SentimentPositive)
	assert.Equal(t, 1, r.SentimentNegative)
	require.NotEmpty(t, r.TopTopics)
	assert.Equal(t, "billing", r.TopTopics[0].Topic)

	// Second call is served from cache.
	_, err = svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counting.rollups)
}

func TestRefresh_InvalidatesCacheAndPersists(t *testing.T) {
	mem := storetest.NewMemoryStore()
	counting := &countingStore{Store: mem}
	svc := NewService(counting, newMemCache(), time.Minute)
	ctx := context.Background()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedScored(t, mem, "chat-r1", date, 8, 8)
	_, err := svc.Metrics(ctx)
	require.NoError(t, err)

	// New data lands, Refresh must recompute past the cache.
	seedScored(t, mem, "chat-r2", date.AddDate(0, 0, 1), 4, 4)
	require.NoError(t, err)
	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, 2, counting.rollups)

	r, err := svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.UnitsAnalyzed)

	metrics, err := mem.ListMetrics(ctx)
	require.NoError(t, err)
	byName := make(map[string]float64)
	for _, m := range metrics {
		byName[m.Name] = m.Value
	}
	assert.InDelta(t, 6.0, byName["avg_csi"], 1e-9)
	assert.InDelta(t, 2.0, byName["units_analyzed"], 1e-9)
	assert.Contains(t, byName, "resolution_rate")
	assert.Contains(t, byName, "top_topics")
}

func TestHistoricalMetrics_GroupsByDate(t *testing.T) {
	mem := storetest.NewMemoryStore()
	svc := NewService(mem, newMemCache(), time.Minute)
	ctx := context.Background()

	day1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	seedScored(t, mem, "chat-h1", day1, 8, 8)
	seedScored(t, mem, "chat-h2", day1, 6, 6)
	seedScored(t, mem, "chat-h3", day2, 4, 4)

	rollups, err := svc.HistoricalMetrics(ctx, day1, day2)
	require.NoError(t, err)
	require.Len(t, rollups, 2)
	assert.Equal(t, day1, rollups[0].Date)
	assert.Equal(t, 2, rollups[0].UnitsAnalyzed)
	assert.InDelta(t, 7.0, rollups[0].AvgCSI, 1e-9)
	assert.Equal(t, 1, rollups[1].UnitsAnalyzed)

	// Range excluding day2.
	rollups, err = svc.HistoricalMetrics(ctx, day1, day1)
	require.NoError(t, err)
	require.Len(t, rollups, 1)
}
