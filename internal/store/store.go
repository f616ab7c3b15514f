package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversationByChatID(ctx context.Context, chatID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]*models.Conversation, int, error)
	UpdateConversationTopics(ctx context.Context, id uuid.UUID, topics []string) error
	DeleteConversationByChatID(ctx context.Context, chatID string) error

	CreateMessages(ctx context.Context, msgs []*models.Message) error
	ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)

	CreateDailyAnalyses(ctx context.Context, units []*models.DailyAnalysis) error
	AssignJob(ctx context.Context, unitIDs []uuid.UUID, jobID uuid.UUID) error
	UpdateDailyAnalysisScores(ctx context.Context, unit *models.DailyAnalysis) error
	ListDailyAnalysesByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.DailyAnalysis, error)

	CreateJob(ctx context.Context, job *models.Job) error
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)
	FinishJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobsByUpload(ctx context.Context, uploadID uuid.UUID) ([]*models.Job, error)

	IsChatProcessed(ctx context.Context, chatID string) (bool, error)
	MarkChatProcessed(ctx context.Context, rec *models.ProcessedChat) error
	DeleteProcessedChat(ctx context.Context, chatID string) error

	GlobalRollup(ctx context.Context) (*models.Rollup, error)
	HistoricalRollup(ctx context.Context, start, end time.Time) ([]*models.DailyRollup, error)
	UpsertMetric(ctx context.Context, metric *models.Metric) error
	ListMetrics(ctx context.Context) ([]*models.Metric, error)
}

// ConversationFilter narrows and paginates conversation listings.
type ConversationFilter struct {
	ChatID string
	Topic  string
	Since  time.Time
	Page   int
	Limit  int
}
