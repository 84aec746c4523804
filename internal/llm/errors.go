package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrRetryable marks failures a later cycle may succeed on: rate limits,
// upstream 5xx, timeouts and dropped connections.
var ErrRetryable = errors.New("llm: retryable error")

// StatusError is a non-2xx response from the extraction service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, truncate(e.Body, 512))
}

// Is lets errors.Is(err, ErrRetryable) match 429 and 5xx responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrRetryable && (e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500)
}

// IsRetryable reports whether err is worth seeing again on the next poll.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable) || errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
