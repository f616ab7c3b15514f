// Package storetest provides an in-memory Store implementation for tests
// that exercise the pipeline without a database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/internal/store"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

// MemoryStore implements store.Store with plain maps. Safe for concurrent use.
type MemoryStore struct {
	mu sync.Mutex

	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID]*models.Message
	analyses      map[uuid.UUID]*models.DailyAnalysis
	jobs          map[uuid.UUID]*models.Job
	processed     map[string]*models.ProcessedChat
	metrics       map[string]*models.Metric
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID]*models.Message),
		analyses:      make(map[uuid.UUID]*models.DailyAnalysis),
		jobs:          make(map[uuid.UUID]*models.Job),
		processed:     make(map[string]*models.ProcessedChat),
		metrics:       make(map[string]*models.Metric),
	}
}

var _ store.Store = (*MemoryStore)(nil)

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// --- Conversations ---

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.ChatID == conv.ChatID {
			return store.ErrDuplicateKey
		}
	}
	cp := *conv
	m.conversations[conv.ID] = &cp
	return nil
}

func (m *MemoryStore) GetConversationByChatID(_ context.Context, chatID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.ChatID == chatID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryStore) ListConversations(_ context.Context, filter store.ConversationFilter) ([]*models.Conversation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.Conversation
	for _, c := range m.conversations {
		if filter.ChatID != "" && c.ChatID != filter.ChatID {
			continue
		}
		if filter.Topic != "" && !contains(c.Topics, filter.Topic) {
			continue
		}
		if !filter.Since.IsZero() && (c.LastMessageAt == nil || c.LastMessageAt.Before(filter.Since)) {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].LastMessageAt, matched[j].LastMessageAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) UpdateConversationTopics(_ context.Context, id uuid.UUID, topics []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Topics = append([]string(nil), topics...)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteConversationByChatID(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.conversations {
		if c.ChatID != chatID {
			continue
		}
		delete(m.conversations, id)
		for mid, msg := range m.messages {
			if msg.ConversationID == id {
				delete(m.messages, mid)
			}
		}
		for aid, a := range m.analyses {
			if a.ConversationID == id {
				delete(m.analyses, aid)
			}
		}
	}
	return nil
}

// --- Messages ---

func (m *MemoryStore) CreateMessages(_ context.Context, msgs []*models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		cp := *msg
		m.messages[msg.ID] = &cp
	}
	return nil
}

func (m *MemoryStore) ListMessagesByConversation(_ context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// --- Daily analyses ---

func (m *MemoryStore) CreateDailyAnalyses(_ context.Context, units []*models.DailyAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range units {
		for _, existing := range m.analyses {
			if existing.ConversationID == u.ConversationID && existing.AnalysisDate.Equal(u.AnalysisDate) {
				return store.ErrDuplicateKey
			}
		}
		cp := *u
		m.analyses[u.ID] = &cp
	}
	return nil
}

func (m *MemoryStore) AssignJob(_ context.Context, unitIDs []uuid.UUID, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range unitIDs {
		if u, ok := m.analyses[id]; ok {
			jid := jobID
			u.JobID = &jid
		}
	}
	return nil
}

func (m *MemoryStore) UpdateDailyAnalysisScores(_ context.Context, unit *models.DailyAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.analyses[unit.ID]
	if !ok {
		return store.ErrNotFound
	}
	u.SentimentScore = unit.SentimentScore
	u.SentimentShift = unit.SentimentShift
	u.ResolutionAchieved = unit.ResolutionAchieved
	u.FCRScore = unit.FCRScore
	u.CustomerEffort = unit.CustomerEffort
	u.EffectivenessScore = unit.EffectivenessScore
	u.EffortScore = unit.EffortScore
	u.EfficiencyScore = unit.EfficiencyScore
	u.EmpathyScore = unit.EmpathyScore
	u.CSIScore = unit.CSIScore
	u.ScoredAt = unit.ScoredAt
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ListDailyAnalysesByConversation(_ context.Context, conversationID uuid.UUID) ([]*models.DailyAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DailyAnalysis
	for _, u := range m.analyses {
		if u.ConversationID == conversationID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalysisDate.Before(out[j].AnalysisDate) })
	return out, nil
}

// --- Jobs ---

func (m *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) ClaimJob(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusInProgress
	j.StartedAt = &now
	return true, nil
}

func (m *MemoryStore) FinishJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	j.Status = job.Status
	j.Result = job.Result
	j.ErrorMessage = job.ErrorMessage
	j.Trace = job.Trace
	j.Metric = job.Metric
	j.CompletedAt = job.CompletedAt
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) ListJobsByUpload(_ context.Context, uploadID uuid.UUID) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.UploadID == uploadID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Processed chats ---

func (m *MemoryStore) IsChatProcessed(_ context.Context, chatID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[chatID]
	return ok, nil
}

func (m *MemoryStore) MarkChatProcessed(_ context.Context, rec *models.ProcessedChat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.processed[rec.ChatID] = &cp
	return nil
}

func (m *MemoryStore) DeleteProcessedChat(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processed, chatID)
	return nil
}

// --- Rollups and metrics ---

func (m *MemoryStore) GlobalRollup(_ context.Context) (*models.Rollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var scored []*models.DailyAnalysis
	for _, u := range m.analyses {
		if u.ScoredAt != nil {
			scored = append(scored, u)
		}
	}
	r := rollupOf(scored)
	r.TopTopics = m.topTopicsLocked(10)
	return r, nil
}

func (m *MemoryStore) HistoricalRollup(_ context.Context, start, end time.Time) ([]*models.DailyRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDate := make(map[time.Time][]*models.DailyAnalysis)
	for _, u := range m.analyses {
		if u.ScoredAt == nil || u.AnalysisDate.Before(start) || u.AnalysisDate.After(end) {
			continue
		}
		byDate[u.AnalysisDate] = append(byDate[u.AnalysisDate], u)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]*models.DailyRollup, 0, len(dates))
	for _, d := range dates {
		out = append(out, &models.DailyRollup{Date: d, Rollup: *rollupOf(byDate[d])})
	}
	return out, nil
}

func (m *MemoryStore) UpsertMetric(_ context.Context, metric *models.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *metric
	m.metrics[metric.Name] = &cp
	return nil
}

func (m *MemoryStore) ListMetrics(_ context.Context) ([]*models.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Metric
	for _, metric := range m.metrics {
		cp := *metric
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) topTopicsLocked(limit int) []models.TopicCount {
	counts := make(map[string]int)
	for _, c := range m.conversations {
		for _, t := range c.Topics {
			counts[t]++
		}
	}
	out := make([]models.TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, models.TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func rollupOf(units []*models.DailyAnalysis) *models.Rollup {
	r := &models.Rollup{}
	if len(units) == 0 {
		return r
	}
	r.UnitsAnalyzed = len(units)

	var csi, eff, effort, effic, emp, resp avg
	var resolved, fcr int
	for _, u := range units {
		csi.add(u.CSIScore)
		eff.add(u.EffectivenessScore)
		effort.add(u.EffortScore)
		effic.add(u.EfficiencyScore)
		emp.add(u.EmpathyScore)
		resp.add(u.AvgResponseSeconds)
		if u.SentimentScore != nil {
			switch {
			case *u.SentimentScore >= 7:
				r.SentimentPositive++
			case *u.SentimentScore <= 4:
				r.SentimentNegative++
			default:
				r.SentimentNeutral++
			}
		}
		if u.ResolutionAchieved != nil && *u.ResolutionAchieved > 7 {
			resolved++
		}
		if u.FCRScore != nil && *u.FCRScore > 7 {
			fcr++
		}
	}
	r.AvgCSI = csi.value()
	r.AvgEffectiveness = eff.value()
	r.AvgEffort = effort.value()
	r.AvgEfficiency = effic.value()
	r.AvgEmpathy = emp.value()
	r.AvgResponseSeconds = resp.value()
	r.ResolutionRate = float64(resolved) / float64(len(units)) * 100
	r.FCRRate = float64(fcr) / float64(len(units)) * 100
	return r
}

type avg struct {
	sum float64
	n   int
}

func (a *avg) add(v *float64) {
	if v != nil {
		a.sum += *v
		a.n++
	}
}

func (a *avg) value() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
