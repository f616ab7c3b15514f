// Package pipeline runs an upload end to end: normalize the payload, persist
// conversations and their daily units, batch and score them, then refresh the
// aggregate metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/powerpulse/pulsedesk/internal/analytics"
	"github.com/powerpulse/pulsedesk/internal/batch"
	"github.com/powerpulse/pulsedesk/internal/cache"
	"github.com/powerpulse/pulsedesk/internal/config"
	"github.com/powerpulse/pulsedesk/internal/ingest"
	"github.com/powerpulse/pulsedesk/internal/progress"
	"github.com/powerpulse/pulsedesk/internal/scheduler"
	"github.com/powerpulse/pulsedesk/internal/store"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

// statusTTL bounds how long the mirrored upload status lives in Redis.
const statusTTL = 24 * time.Hour

// Result summarizes what one upload produced.
type Result struct {
	UploadID               uuid.UUID `json:"upload_id"`
	ConversationsProcessed int       `json:"conversations_processed"`
	ConversationsSkipped   int       `json:"conversations_skipped"`
	MessagesProcessed      int       `json:"messages_processed"`
	UnitsPlanned           int       `json:"units_planned"`
	UnitsDropped           int       `json:"units_dropped"`
	Jobs                   int       `json:"jobs"`
}

// Service orchestrates the upload pipeline.
type Service struct {
	store     store.Store
	cache     cache.Cache
	tracker   *progress.Tracker
	scheduler *scheduler.Scheduler
	analytics *analytics.Service
	batchCfg  config.BatchConfig
}

func NewService(st store.Store, c cache.Cache, tracker *progress.Tracker, sched *scheduler.Scheduler, an *analytics.Service, batchCfg config.BatchConfig) *Service {
	return &Service{
		store:     st,
		cache:     c,
		tracker:   tracker,
		scheduler: sched,
		analytics: an,
		batchCfg:  batchCfg,
	}
}

// Process ingests one payload and blocks until every scoring job for it has
// reached a terminal state. Callers wanting async behavior run it in a
// goroutine and poll the tracker.
//
// Chats already processed by an earlier upload are skipped unless force is
// set, in which case their stored conversation is replaced wholesale.
func (s *Service) Process(ctx context.Context, uploadID uuid.UUID, raw []byte, force bool) (*Result, error) {
	s.tracker.Start(uploadID, 0)
	s.setStatus(ctx, uploadID, progress.StatusProcessing)

	res, err := s.run(ctx, uploadID, raw, force)
	if err != nil {
		s.tracker.AddError(uploadID, err.Error())
		s.tracker.Complete(uploadID, progress.StatusFailed)
		s.setStatus(ctx, uploadID, progress.StatusFailed)
		return nil, err
	}

	s.tracker.Complete(uploadID, progress.StatusCompleted)
	s.setStatus(ctx, uploadID, progress.StatusCompleted)
	return res, nil
}

func (s *Service) run(ctx context.Context, uploadID uuid.UUID, raw []byte, force bool) (*Result, error) {
	normalized, err := ingest.Normalize(raw, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	s.tracker.AddFiltered(uploadID, normalized.Stats.FilteredAutoresponses)
	if normalized.Stats.LossyTimestamps > 0 {
		slog.Warn("timestamps fell back to ingestion time",
			"upload_id", uploadID,
			"count", normalized.Stats.LossyTimestamps,
		)
	}

	result := &Result{UploadID: uploadID}
	var rows []*models.DailyAnalysis
	var scoringUnits []models.ScoringUnit
	var stored []*ingest.ConversationData

	s.tracker.Update(uploadID, 0, "persisting", "")
	for _, conv := range normalized.Conversations {
		ok, err := s.persistConversation(ctx, conv, force)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.ConversationsSkipped++
			continue
		}

		result.ConversationsProcessed++
		result.MessagesProcessed += len(conv.Messages)
		rows = append(rows, conv.Units...)
		scoringUnits = append(scoringUnits, conv.ScoringUnits...)
		stored = append(stored, conv)
	}

	batches, dropped := batch.Plan(scoringUnits, s.batchCfg)
	for _, u := range dropped {
		s.tracker.AddError(uploadID, fmt.Sprintf("unit %s (%s) exceeds the batch token budget", u.ID, u.ChatID))
	}
	result.UnitsDropped = len(dropped)
	result.UnitsPlanned = len(scoringUnits) - len(dropped)
	result.Jobs = len(batches)
	s.tracker.SetTotal(uploadID, result.UnitsPlanned)

	if len(batches) > 0 {
		s.tracker.Update(uploadID, 0, "scoring", fmt.Sprintf("%d jobs", len(batches)))
		jobs, err := s.scheduler.CreateJobs(ctx, uploadID, batches, rows)
		if err != nil {
			return nil, fmt.Errorf("create scoring jobs: %w", err)
		}
		s.scheduler.Dispatch(ctx, uploadID, jobs)
	}

	now := time.Now().UTC()
	for _, conv := range stored {
		rec := &models.ProcessedChat{
			ID:           uuid.New(),
			ChatID:       conv.Conversation.ChatID,
			MessageCount: len(conv.Messages),
			ProcessedAt:  now,
		}
		if err := s.store.MarkChatProcessed(ctx, rec); err != nil {
			return nil, fmt.Errorf("mark chat %s processed: %w", rec.ChatID, err)
		}
	}

	if err := s.analytics.Refresh(ctx); err != nil {
		slog.Warn("metrics refresh failed after upload", "upload_id", uploadID, "error", err)
	}

	slog.Info("upload processed",
		"upload_id", uploadID,
		"conversations", result.ConversationsProcessed,
		"skipped", result.ConversationsSkipped,
		"units", result.UnitsPlanned,
		"jobs", result.Jobs,
	)
	return result, nil
}

// persistConversation writes one normalized conversation with its messages and
// units. Returns false when the chat was already processed and force is off.
func (s *Service) persistConversation(ctx context.Context, conv *ingest.ConversationData, force bool) (bool, error) {
	chatID := conv.Conversation.ChatID

	seen, err := s.store.IsChatProcessed(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("check processed chat %s: %w", chatID, err)
	}
	if seen && !force {
		slog.Info("skipping already processed chat", "chat_id", chatID)
		return false, nil
	}
	if force {
		// Clears any stored conversation, including one left behind without
		// a processed marker when an earlier run died mid-upload.
		if err := s.store.DeleteConversationByChatID(ctx, chatID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("replace conversation %s: %w", chatID, err)
		}
		if err := s.store.DeleteProcessedChat(ctx, chatID); err != nil {
			return false, fmt.Errorf("reset processed chat %s: %w", chatID, err)
		}
	}

	if err := s.store.CreateConversation(ctx, conv.Conversation); err != nil {
		// An unmarked leftover chat is treated as already processed unless
		// the caller forces replacement.
		if errors.Is(err, store.ErrDuplicateKey) {
			slog.Warn("conversation already exists, skipping", "chat_id", chatID)
			return false, nil
		}
		return false, fmt.Errorf("create conversation %s: %w", chatID, err)
	}
	if err := s.store.CreateMessages(ctx, conv.Messages); err != nil {
		return false, fmt.Errorf("create messages for %s: %w", chatID, err)
	}
	if err := s.store.CreateDailyAnalyses(ctx, conv.Units); err != nil {
		return false, fmt.Errorf("create daily units for %s: %w", chatID, err)
	}
	return true, nil
}

func (s *Service) setStatus(ctx context.Context, uploadID uuid.UUID, status string) {
	if err := s.cache.SetUploadStatus(ctx, uploadID, status, statusTTL); err != nil {
		slog.Warn("upload status cache write failed", "upload_id", uploadID, "error", err)
	}
}
