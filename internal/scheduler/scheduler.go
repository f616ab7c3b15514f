// Package scheduler creates scoring jobs from planned batches and dispatches
// them concurrently against the backend, bounded by a global semaphore.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/powerpulse/pulsedesk/internal/progress"
	"github.com/powerpulse/pulsedesk/internal/scoring"
	"github.com/powerpulse/pulsedesk/internal/store"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

// Job pairs a persisted job record with the units it scores.
type Job struct {
	Record *models.Job
	Units  []models.ScoringUnit
}

// jobResult is the summary blob persisted on the job row.
type jobResult struct {
	Units     int    `json:"units"`
	Fallbacks int    `json:"fallbacks"`
	Provider  string `json:"provider"`
}

// Scheduler owns the scoring job lifecycle. The semaphore is shared across
// uploads so concurrent uploads still respect the global backend bound.
type Scheduler struct {
	store   store.Store
	backend models.ScoringBackend
	tracker *progress.Tracker
	weights scoring.Weights
	sem     *semaphore.Weighted

	// rows maps unit IDs to their persisted analysis rows for the uploads
	// currently in flight, so scored results land on the right row.
	mu   sync.Mutex
	rows map[uuid.UUID]*models.DailyAnalysis
}

func New(st store.Store, backend models.ScoringBackend, tracker *progress.Tracker, weights scoring.Weights, concurrency int64) (*Scheduler, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		store:   st,
		backend: backend,
		tracker: tracker,
		weights: weights,
		sem:     semaphore.NewWeighted(concurrency),
		rows:    make(map[uuid.UUID]*models.DailyAnalysis),
	}, nil
}

// CreateJobs persists one pending job per batch and assigns each batch's
// units to it. The analysis rows back the units and receive the scores when
// the job completes.
func (s *Scheduler) CreateJobs(ctx context.Context, uploadID uuid.UUID, batches [][]models.ScoringUnit, units []*models.DailyAnalysis) ([]*Job, error) {
	s.mu.Lock()
	for _, u := range units {
		s.rows[u.ID] = u
	}
	s.mu.Unlock()

	jobs := make([]*Job, 0, len(batches))
	for _, batch := range batches {
		record := &models.Job{
			ID:        uuid.New(),
			UploadID:  uploadID,
			Status:    models.JobStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.CreateJob(ctx, record); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}

		unitIDs := make([]uuid.UUID, len(batch))
		for i, u := range batch {
			unitIDs[i] = u.ID
		}
		if err := s.store.AssignJob(ctx, unitIDs, record.ID); err != nil {
			return nil, fmt.Errorf("assign units to job: %w", err)
		}

		jobs = append(jobs, &Job{Record: record, Units: batch})
	}
	return jobs, nil
}

// Dispatch runs all jobs concurrently under the global semaphore and blocks
// until every job has reached a terminal state. One job failing never
// short-circuits its siblings.
func (s *Scheduler) Dispatch(ctx context.Context, uploadID uuid.UUID, jobs []*Job) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.failJob(ctx, uploadID, job, err, "")
				return
			}
			defer s.sem.Release(1)
			s.runJob(ctx, uploadID, job)
		}(job)
	}
	wg.Wait()

	s.mu.Lock()
	for _, job := range jobs {
		for _, u := range job.Units {
			delete(s.rows, u.ID)
		}
	}
	s.mu.Unlock()
}

func (s *Scheduler) runJob(ctx context.Context, uploadID uuid.UUID, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.failJob(ctx, uploadID, job, fmt.Errorf("job panicked: %v", r), string(debug.Stack()))
		}
	}()

	claimed, err := s.store.ClaimJob(ctx, job.Record.ID)
	if err != nil {
		s.failJob(ctx, uploadID, job, fmt.Errorf("claim job: %w", err), "")
		return
	}
	if !claimed {
		slog.Warn("job already claimed, skipping", "job_id", job.Record.ID)
		return
	}

	start := time.Now()
	results, usage, err := s.backend.Analyze(ctx, job.Units)
	s.tracker.AddCalls(uploadID, usage.Calls)
	if err != nil {
		job.Record.Metric = metricFrom(usage, start)
		s.failJob(ctx, uploadID, job, fmt.Errorf("backend analyze: %w", err), "")
		return
	}

	var fallbacks int
	for _, r := range results {
		if r.Fallback {
			fallbacks++
			s.tracker.AddError(uploadID, fmt.Sprintf("unit %s: %s", r.UnitID, r.ErrorTag))
		}
		if err := s.applyResult(ctx, r); err != nil {
			job.Record.Metric = metricFrom(usage, start)
			s.failJob(ctx, uploadID, job, fmt.Errorf("apply result for unit %s: %w", r.UnitID, err), "")
			return
		}
	}

	if err := s.mergeTopics(ctx, results, job.Units); err != nil {
		slog.Warn("failed to merge conversation topics", "job_id", job.Record.ID, "error", err)
	}

	blob, _ := json.Marshal(jobResult{
		Units:     len(job.Units),
		Fallbacks: fallbacks,
		Provider:  s.backend.Name(),
	})
	now := time.Now().UTC()
	job.Record.Result = blob
	job.Record.Metric = metricFrom(usage, start)
	job.Record.CompletedAt = &now

	// Fallback scores are persisted for continuity, but a job that produced
	// any is still a failed job so operators see it.
	if fallbacks > 0 {
		msg := fmt.Sprintf("%d of %d units fell back to neutral scores", fallbacks, len(job.Units))
		job.Record.Status = models.JobStatusFailed
		job.Record.ErrorMessage = &msg
	} else {
		job.Record.Status = models.JobStatusCompleted
	}

	if err := s.store.FinishJob(ctx, job.Record); err != nil {
		slog.Error("failed to finish job", "job_id", job.Record.ID, "error", err)
	}
	s.tracker.Advance(uploadID, len(job.Units))

	slog.Info("scoring job finished",
		"job_id", job.Record.ID,
		"upload_id", uploadID,
		"status", job.Record.Status,
		"units", len(job.Units),
		"fallbacks", fallbacks,
		"backend_calls", usage.Calls,
		"wall_millis", job.Record.Metric.WallMillis,
	)
}

// applyResult copies the backend micro-metrics onto the unit's analysis row,
// derives the pillar scores and index, and persists them.
func (s *Scheduler) applyResult(ctx context.Context, r models.UnitResult) error {
	s.mu.Lock()
	row, ok := s.rows[r.UnitID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no analysis row for unit %s", r.UnitID)
	}

	row.SentimentScore = r.Scores.SentimentScore
	row.SentimentShift = r.Scores.SentimentShift
	row.ResolutionAchieved = r.Scores.ResolutionAchieved
	row.FCRScore = r.Scores.FCRScore
	row.CustomerEffort = r.Scores.CustomerEffort
	scoring.Compute(row, s.weights)

	now := time.Now().UTC()
	row.ScoredAt = &now
	return s.store.UpdateDailyAnalysisScores(ctx, row)
}

// mergeTopics unions each conversation's stored topics with the topics the
// backend returned for its units.
func (s *Scheduler) mergeTopics(ctx context.Context, results []models.UnitResult, units []models.ScoringUnit) error {
	chatByUnit := make(map[uuid.UUID]string, len(units))
	for _, u := range units {
		chatByUnit[u.ID] = u.ChatID
	}

	byChat := make(map[string][]string)
	for _, r := range results {
		chatID, ok := chatByUnit[r.UnitID]
		if !ok || len(r.Scores.Topics) == 0 {
			continue
		}
		byChat[chatID] = append(byChat[chatID], r.Scores.Topics...)
	}

	for chatID, topics := range byChat {
		conv, err := s.store.GetConversationByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		merged := unionTopics(conv.Topics, topics)
		if err := s.store.UpdateConversationTopics(ctx, conv.ID, merged); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) failJob(ctx context.Context, uploadID uuid.UUID, job *Job, cause error, trace string) {
	slog.Error("scoring job failed",
		"job_id", job.Record.ID,
		"upload_id", uploadID,
		"error", cause,
	)
	s.tracker.AddError(uploadID, cause.Error())

	msg := cause.Error()
	now := time.Now().UTC()
	job.Record.Status = models.JobStatusFailed
	job.Record.ErrorMessage = &msg
	if trace != "" {
		job.Record.Trace = &trace
	}
	job.Record.CompletedAt = &now
	if err := s.store.FinishJob(ctx, job.Record); err != nil {
		slog.Error("failed to record job failure", "job_id", job.Record.ID, "error", err)
	}
	s.tracker.Advance(uploadID, len(job.Units))
}

func metricFrom(usage models.Usage, start time.Time) models.JobMetric {
	return models.JobMetric{
		PromptTokens: usage.PromptTokens,
		OutputTokens: usage.OutputTokens,
		Calls:        usage.Calls,
		WallMillis:   time.Since(start).Milliseconds(),
	}
}

func unionTopics(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range incoming {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
