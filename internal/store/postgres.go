package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Conversations ---

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, chat_id, customer_name, total_messages, customer_messages, agent_messages, first_message_at, last_message_at, topics, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		conv.ID, conv.ChatID, conv.CustomerName, conv.TotalMessages, conv.CustomerMessages,
		conv.AgentMessages, conv.FirstMessageAt, conv.LastMessageAt, conv.Topics,
		conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversationByChatID(ctx context.Context, chatID string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, chat_id, customer_name, total_messages, customer_messages, agent_messages, first_message_at, last_message_at, topics, created_at, updated_at
		 FROM conversations WHERE chat_id = $1`, chatID,
	).Scan(&c.ID, &c.ChatID, &c.CustomerName, &c.TotalMessages, &c.CustomerMessages,
		&c.AgentMessages, &c.FirstMessageAt, &c.LastMessageAt, &c.Topics,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation by chat id: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]*models.Conversation, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.ChatID != "" {
		conditions = append(conditions, fmt.Sprintf("chat_id = $%d", argIdx))
		args = append(args, filter.ChatID)
		argIdx++
	}
	if filter.Topic != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(topics)", argIdx))
		args = append(args, filter.Topic)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("last_message_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM conversations WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT id, chat_id, customer_name, total_messages, customer_messages, agent_messages, first_message_at, last_message_at, topics, created_at, updated_at
		 FROM conversations WHERE %s ORDER BY last_message_at DESC NULLS LAST LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.ChatID, &c.CustomerName, &c.TotalMessages, &c.CustomerMessages,
			&c.AgentMessages, &c.FirstMessageAt, &c.LastMessageAt, &c.Topics,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, &c)
	}
	return convs, total, rows.Err()
}

func (s *PostgresStore) UpdateConversationTopics(ctx context.Context, id uuid.UUID, topics []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET topics = $2, updated_at = NOW() WHERE id = $1`, id, topics)
	if err != nil {
		return fmt.Errorf("update conversation topics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteConversationByChatID(ctx context.Context, chatID string) error {
	// Messages and daily analyses go with it via ON DELETE CASCADE.
	_, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("delete conversation by chat id: %w", err)
	}
	return nil
}

// --- Messages ---

func (s *PostgresStore) CreateMessages(ctx context.Context, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(
			`INSERT INTO messages (id, conversation_id, chat_id, content, direction, sent_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.ConversationID, m.ChatID, m.Content, m.Direction, m.SentAt, m.CreatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range msgs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("create messages: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, chat_id, content, direction, sent_at, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY sent_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ChatID, &m.Content, &m.Direction,
			&m.SentAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// --- Daily analyses ---

func (s *PostgresStore) CreateDailyAnalyses(ctx context.Context, units []*models.DailyAnalysis) error {
	if len(units) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range units {
		batch.Queue(
			`INSERT INTO daily_analyses (id, conversation_id, chat_id, analysis_date, first_response_seconds, avg_response_seconds, handling_seconds, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			u.ID, u.ConversationID, u.ChatID, u.AnalysisDate,
			u.FirstResponseSeconds, u.AvgResponseSeconds, u.HandlingSeconds,
			u.CreatedAt, u.UpdatedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range units {
		if _, err := br.Exec(); err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create daily analyses: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) AssignJob(ctx context.Context, unitIDs []uuid.UUID, jobID uuid.UUID) error {
	if len(unitIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE daily_analyses SET job_id = $2, updated_at = NOW() WHERE id = ANY($1)`,
		unitIDs, jobID)
	if err != nil {
		return fmt.Errorf("assign job to daily analyses: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDailyAnalysisScores(ctx context.Context, unit *models.DailyAnalysis) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE daily_analyses SET
		   sentiment_score = $2,
		   sentiment_shift = $3,
		   resolution_achieved = $4,
		   fcr_score = $5,
		   customer_effort = $6,
		   effectiveness_score = $7,
		   effort_score = $8,
		   efficiency_score = $9,
		   empathy_score = $10,
		   csi_score = $11,
		   scored_at = $12,
		   updated_at = NOW()
		 WHERE id = $1`,
		unit.ID, unit.SentimentScore, unit.SentimentShift, unit.ResolutionAchieved,
		unit.FCRScore, unit.CustomerEffort, unit.EffectivenessScore, unit.EffortScore,
		unit.EfficiencyScore, unit.EmpathyScore, unit.CSIScore, unit.ScoredAt)
	if err != nil {
		return fmt.Errorf("update daily analysis scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDailyAnalysesByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.DailyAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, chat_id, analysis_date, job_id,
		        sentiment_score, sentiment_shift, resolution_achieved, fcr_score, customer_effort,
		        first_response_seconds, avg_response_seconds, handling_seconds,
		        effectiveness_score, effort_score, efficiency_score, empathy_score, csi_score,
		        scored_at, created_at, updated_at
		 FROM daily_analyses WHERE conversation_id = $1 ORDER BY analysis_date ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list daily analyses: %w", err)
	}
	defer rows.Close()

	var units []*models.DailyAnalysis
	for rows.Next() {
		var u models.DailyAnalysis
		if err := rows.Scan(&u.ID, &u.ConversationID, &u.ChatID, &u.AnalysisDate, &u.JobID,
			&u.SentimentScore, &u.SentimentShift, &u.ResolutionAchieved, &u.FCRScore, &u.CustomerEffort,
			&u.FirstResponseSeconds, &u.AvgResponseSeconds, &u.HandlingSeconds,
			&u.EffectivenessScore, &u.EffortScore, &u.EfficiencyScore, &u.EmpathyScore, &u.CSIScore,
			&u.ScoredAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan daily analysis: %w", err)
		}
		units = append(units, &u)
	}
	return units, rows.Err()
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, upload_id, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		job.ID, job.UploadID, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// ClaimJob atomically moves a pending job to in_progress. Returns false when
// the job was already claimed or does not exist.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, started_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, models.JobStatusInProgress, models.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinishJob records a job's terminal state, result blob and cost metrics.
func (s *PostgresStore) FinishJob(ctx context.Context, job *models.Job) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET
		   status = $2,
		   result = $3,
		   error_message = $4,
		   trace = $5,
		   prompt_tokens = $6,
		   output_tokens = $7,
		   backend_calls = $8,
		   wall_millis = $9,
		   completed_at = $10
		 WHERE id = $1`,
		job.ID, job.Status, job.Result, job.ErrorMessage, job.Trace,
		job.Metric.PromptTokens, job.Metric.OutputTokens, job.Metric.Calls,
		job.Metric.WallMillis, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, upload_id, status, result, error_message, trace,
		        prompt_tokens, output_tokens, backend_calls, wall_millis,
		        started_at, completed_at, created_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.UploadID, &j.Status, &j.Result, &j.ErrorMessage, &j.Trace,
		&j.Metric.PromptTokens, &j.Metric.OutputTokens, &j.Metric.Calls, &j.Metric.WallMillis,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobsByUpload(ctx context.Context, uploadID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, upload_id, status, result, error_message, trace,
		        prompt_tokens, output_tokens, backend_calls, wall_millis,
		        started_at, completed_at, created_at
		 FROM jobs WHERE upload_id = $1 ORDER BY created_at ASC`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by upload: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.UploadID, &j.Status, &j.Result, &j.ErrorMessage, &j.Trace,
			&j.Metric.PromptTokens, &j.Metric.OutputTokens, &j.Metric.Calls, &j.Metric.WallMillis,
			&j.StartedAt, &j.CompletedAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// --- Processed chats ---

func (s *PostgresStore) IsChatProcessed(ctx context.Context, chatID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_chats WHERE chat_id = $1)`, chatID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed chat: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) MarkChatProcessed(ctx context.Context, rec *models.ProcessedChat) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_chats (id, chat_id, message_count, processed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   message_count = EXCLUDED.message_count,
		   processed_at = EXCLUDED.processed_at`,
		rec.ID, rec.ChatID, rec.MessageCount, rec.ProcessedAt)
	if err != nil {
		return fmt.Errorf("mark chat processed: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProcessedChat(ctx context.Context, chatID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_chats WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("delete processed chat: %w", err)
	}
	return nil
}

// --- Rollups and metrics ---

const rollupColumns = `
	COALESCE(AVG(csi_score), 0),
	COALESCE(AVG(effectiveness_score), 0),
	COALESCE(AVG(effort_score), 0),
	COALESCE(AVG(efficiency_score), 0),
	COALESCE(AVG(empathy_score), 0),
	COUNT(*),
	COUNT(*) FILTER (WHERE sentiment_score >= 7),
	COUNT(*) FILTER (WHERE sentiment_score <= 4),
	COUNT(*) FILTER (WHERE sentiment_score > 4 AND sentiment_score < 7),
	COALESCE(AVG(CASE WHEN resolution_achieved > 7 THEN 100.0 ELSE 0.0 END), 0),
	COALESCE(AVG(CASE WHEN fcr_score > 7 THEN 100.0 ELSE 0.0 END), 0),
	COALESCE(AVG(avg_response_seconds), 0)`

func (s *PostgresStore) GlobalRollup(ctx context.Context) (*models.Rollup, error) {
	var r models.Rollup
	err := s.pool.QueryRow(ctx,
		`SELECT `+rollupColumns+` FROM daily_analyses WHERE scored_at IS NOT NULL`,
	).Scan(&r.AvgCSI, &r.AvgEffectiveness, &r.AvgEffort, &r.AvgEfficiency, &r.AvgEmpathy,
		&r.UnitsAnalyzed, &r.SentimentPositive, &r.SentimentNegative, &r.SentimentNeutral,
		&r.ResolutionRate, &r.FCRRate, &r.AvgResponseSeconds)
	if err != nil {
		return nil, fmt.Errorf("global rollup: %w", err)
	}

	topics, err := s.topTopics(ctx, 10)
	if err != nil {
		return nil, err
	}
	r.TopTopics = topics
	return &r, nil
}

func (s *PostgresStore) HistoricalRollup(ctx context.Context, start, end time.Time) ([]*models.DailyRollup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT analysis_date, `+rollupColumns+`
		 FROM daily_analyses
		 WHERE scored_at IS NOT NULL AND analysis_date >= $1 AND analysis_date <= $2
		 GROUP BY analysis_date ORDER BY analysis_date ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("historical rollup: %w", err)
	}
	defer rows.Close()

	var out []*models.DailyRollup
	for rows.Next() {
		var d models.DailyRollup
		if err := rows.Scan(&d.Date, &d.AvgCSI, &d.AvgEffectiveness, &d.AvgEffort,
			&d.AvgEfficiency, &d.AvgEmpathy, &d.UnitsAnalyzed,
			&d.SentimentPositive, &d.SentimentNegative, &d.SentimentNeutral,
			&d.ResolutionRate, &d.FCRRate, &d.AvgResponseSeconds); err != nil {
			return nil, fmt.Errorf("scan daily rollup: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) topTopics(ctx context.Context, limit int) ([]models.TopicCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic, COUNT(*) AS cnt
		 FROM conversations, unnest(topics) AS topic
		 GROUP BY topic ORDER BY cnt DESC, topic ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top topics: %w", err)
	}
	defer rows.Close()

	var topics []models.TopicCount
	for rows.Next() {
		var t models.TopicCount
		if err := rows.Scan(&t.Topic, &t.Count); err != nil {
			return nil, fmt.Errorf("scan topic count: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (s *PostgresStore) UpsertMetric(ctx context.Context, metric *models.Metric) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO metrics (id, name, value, metadata, calculated_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO UPDATE SET
		   value = EXCLUDED.value,
		   metadata = EXCLUDED.metadata,
		   calculated_at = EXCLUDED.calculated_at,
		   updated_at = NOW()`,
		metric.ID, metric.Name, metric.Value, metric.Metadata, metric.CalculatedAt, metric.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert metric: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMetrics(ctx context.Context) ([]*models.Metric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, value, metadata, calculated_at, updated_at FROM metrics ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.Metric
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &m.Metadata, &m.CalculatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
