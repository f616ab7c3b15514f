// Package progress tracks in-flight upload processing so clients can poll
// for status. State is in-memory and scoped to the process lifetime.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Snapshot is a point-in-time view of one upload's processing state.
type Snapshot struct {
	UploadID         uuid.UUID `json:"upload_id"`
	Status           string    `json:"status"`
	Stage            string    `json:"stage"`
	Detail           string    `json:"detail,omitempty"`
	TotalUnits       int       `json:"total_units"`
	ProcessedUnits   int       `json:"processed_units"`
	Percent          float64   `json:"percent"`
	FilteredMessages int       `json:"filtered_messages"`
	BackendCalls     int       `json:"backend_calls"`
	Errors           []string  `json:"errors,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Tracker holds progress state for all uploads seen by this process.
type Tracker struct {
	mu        sync.Mutex
	uploads   map[uuid.UUID]*Snapshot
	maxErrors int
}

func NewTracker(maxErrors int) *Tracker {
	if maxErrors < 1 {
		maxErrors = 1
	}
	return &Tracker{
		uploads:   make(map[uuid.UUID]*Snapshot),
		maxErrors: maxErrors,
	}
}

// Start registers an upload. A re-run of the same upload resets its state.
func (t *Tracker) Start(uploadID uuid.UUID, totalUnits int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.uploads[uploadID] = &Snapshot{
		UploadID:   uploadID,
		Status:     StatusProcessing,
		Stage:      "normalizing",
		TotalUnits: totalUnits,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// SetTotal adjusts the unit count once batching has settled it.
func (t *Tracker) SetTotal(uploadID uuid.UUID, totalUnits int) {
	t.mutate(uploadID, func(s *Snapshot) {
		s.TotalUnits = totalUnits
		s.recompute()
	})
}

// Update advances the processed count and current stage.
func (t *Tracker) Update(uploadID uuid.UUID, processed int, stage, detail string) {
	t.mutate(uploadID, func(s *Snapshot) {
		s.ProcessedUnits = processed
		s.Stage = stage
		s.Detail = detail
		s.recompute()
	})
}

// Advance adds n to the processed count without touching the stage.
func (t *Tracker) Advance(uploadID uuid.UUID, n int) {
	t.mutate(uploadID, func(s *Snapshot) {
		s.ProcessedUnits += n
		s.recompute()
	})
}

// AddFiltered records messages dropped by the autoresponse filter.
func (t *Tracker) AddFiltered(uploadID uuid.UUID, n int) {
	t.mutate(uploadID, func(s *Snapshot) {
		s.FilteredMessages += n
	})
}

// AddCalls records scoring backend calls made on behalf of the upload.
func (t *Tracker) AddCalls(uploadID uuid.UUID, n int) {
	t.mutate(uploadID, func(s *Snapshot) {
		s.BackendCalls += n
	})
}

// AddError appends an error message, keeping only the most recent maxErrors.
func (t *Tracker) AddError(uploadID uuid.UUID, msg string) {
	t.mutate(uploadID, func(s *Snapshot) {
		s.Errors = append(s.Errors, msg)
		if len(s.Errors) > t.maxErrors {
			s.Errors = s.Errors[len(s.Errors)-t.maxErrors:]
		}
	})
}

// Complete marks the upload finished with the given terminal status.
func (t *Tracker) Complete(uploadID uuid.UUID, status string) {
	t.mutate(uploadID, func(s *Snapshot) {
		s.Status = status
		s.Stage = "done"
		s.Detail = ""
		if status == StatusCompleted {
			s.ProcessedUnits = s.TotalUnits
		}
		s.recompute()
	})
}

// Get returns a copy of the upload's snapshot.
func (t *Tracker) Get(uploadID uuid.UUID) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.uploads[uploadID]
	if !ok {
		return Snapshot{}, false
	}
	return s.clone(), true
}

// Active returns snapshots for all tracked uploads, newest first.
func (t *Tracker) Active() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Snapshot, 0, len(t.uploads))
	for _, s := range t.uploads {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Cleanup drops finished snapshots older than maxAge and returns how many
// were removed. Running uploads are never evicted.
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	var removed int
	for id, s := range t.uploads {
		if s.Status != StatusProcessing && s.UpdatedAt.Before(cutoff) {
			delete(t.uploads, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) mutate(uploadID uuid.UUID, fn func(*Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.uploads[uploadID]
	if !ok {
		return
	}
	fn(s)
	s.UpdatedAt = time.Now().UTC()
}

func (s *Snapshot) recompute() {
	if s.TotalUnits <= 0 {
		s.Percent = 0
		return
	}
	if s.ProcessedUnits > s.TotalUnits {
		s.ProcessedUnits = s.TotalUnits
	}
	s.Percent = float64(s.ProcessedUnits) / float64(s.TotalUnits) * 100
}

func (s *Snapshot) clone() Snapshot {
	out := *s
	out.Errors = append([]string(nil), s.Errors...)
	return out
}
