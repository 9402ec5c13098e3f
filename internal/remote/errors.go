package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is returned by Reader implementations. It separates requests that got
// no response at all (network, timeout) from error responses.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	NoResponse bool
	Err        error
}

func (e *Error) Error() string {
	if e.NoResponse {
		return fmt.Sprintf("%s %s: no response: %v", e.Method, e.Path, e.Err)
	}
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, body)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable classifies err for the retry executor: missing responses and
// 5xx/408/429 are transient, other 4xx and cancellations are terminal.
// Errors of unknown type are treated as transient.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var re *Error
	if !errors.As(err, &re) {
		return !errors.Is(err, context.DeadlineExceeded)
	}
	if re.NoResponse {
		return true
	}
	switch {
	case re.StatusCode >= 500:
		return true
	case re.StatusCode == http.StatusTooManyRequests, re.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
