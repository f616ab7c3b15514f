package backend

import (
	"errors"
	"time"
)

var ErrEmptyResponse = errors.New("scoring backend returned empty response")

// retryAfterer is implemented by provider errors carrying a server-suggested
// retry delay, which overrides the computed exponential backoff.
type retryAfterer interface {
	RetryAfter() (time.Duration, bool)
}

// suggestedDelay extracts a provider-suggested retry delay from err, if any.
func suggestedDelay(err error) (time.Duration, bool) {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0, false
}
