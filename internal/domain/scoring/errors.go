package scoring

import "errors"

var (
	// ErrTransient marks a failure worth retrying (timeouts, 5xx).
	ErrTransient = errors.New("transient grader failure")
	// ErrRateLimited marks a quota rejection. Retried after the longer
	// rate limit delay.
	ErrRateLimited = errors.New("grader rate limited")
	// ErrInvalidResponse marks model output that could not be read as a
	// score and comment.
	ErrInvalidResponse = errors.New("invalid grader response")
)

// Retryable reports whether err should be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
