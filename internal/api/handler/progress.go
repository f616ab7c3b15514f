package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/internal/api/response"
	"github.com/powerpulse/pulsedesk/internal/cache"
	"github.com/powerpulse/pulsedesk/internal/progress"
)

// NewProgressHandler returns an http.HandlerFunc for
// GET /api/v1/uploads/{uploadID}/progress. When the in-process tracker has no
// snapshot (the server restarted), the status mirrored in Redis is the
// fallback.
func NewProgressHandler(tracker *progress.Tracker, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID, err := uuid.Parse(chi.URLParam(r, "uploadID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "uploadID must be a valid UUID", nil)
			return
		}

		if snap, ok := tracker.Get(uploadID); ok {
			response.JSON(w, snap)
			return
		}

		status, found, err := c.GetUploadStatus(r.Context(), uploadID)
		if err == nil && found {
			response.JSON(w, map[string]any{
				"upload_id": uploadID,
				"status":    status,
			})
			return
		}

		response.Error(w, http.StatusNotFound,
			"UPLOAD_NOT_FOUND", "No upload with that ID", nil)
	}
}

// NewActiveUploadsHandler returns an http.HandlerFunc for GET /api/v1/uploads,
// listing the tracker's known uploads newest first.
func NewActiveUploadsHandler(tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snaps := tracker.Active()
		if snaps == nil {
			snaps = []progress.Snapshot{}
		}
		response.JSON(w, snaps)
	}
}
