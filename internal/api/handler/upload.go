package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/internal/api/response"
	"github.com/powerpulse/pulsedesk/internal/pipeline"
	"github.com/powerpulse/pulsedesk/internal/progress"
)

// maxUploadBytes caps the accepted payload size.
const maxUploadBytes = 64 << 20

// UploadProcessor runs an upload through the scoring pipeline.
type UploadProcessor interface {
	Process(ctx context.Context, uploadID uuid.UUID, raw []byte, force bool) (*pipeline.Result, error)
}

type uploadAccepted struct {
	UploadID uuid.UUID `json:"upload_id"`
	Status   string    `json:"status"`
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/uploads.
// Processing runs in the background; the response carries the upload ID to
// poll progress with. The optional force query parameter reprocesses chats
// that were already ingested.
func NewUploadHandler(proc UploadProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			response.Error(w, http.StatusRequestEntityTooLarge,
				"PAYLOAD_TOO_LARGE", "Upload payload exceeds the size limit", nil)
			return
		}
		if len(raw) == 0 {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "Request body is required", nil)
			return
		}

		force := r.URL.Query().Get("force") == "true"
		uploadID := uuid.New()

		// Detached from the request context so a closed connection does not
		// abort scoring mid-flight.
		go func() {
			if _, err := proc.Process(context.Background(), uploadID, raw, force); err != nil {
				slog.Error("upload processing failed", "upload_id", uploadID, "error", err)
			}
		}()

		response.Accepted(w, uploadAccepted{UploadID: uploadID, Status: progress.StatusProcessing})
	}
}
