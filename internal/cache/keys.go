package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func MetricsKey() string {
	return "metrics:global"
}

func HistoricalMetricsKey(start, end time.Time) string {
	return fmt.Sprintf("metrics:history:%s:%s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func UploadStatusKey(uploadID uuid.UUID) string {
	return fmt.Sprintf("upload:%s", uploadID)
}

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:%s", clientIP)
}
