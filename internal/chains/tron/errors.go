package tron

import (
	"fmt"
	"net/http"
)

// ResponseError reports an explorer response that could not be used
type ResponseError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Transient reports whether another attempt, possibly with a different key, may succeed.
// Auth failures count as transient since they are specific to the key used.
func (e *ResponseError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusUnauthorized,
		e.StatusCode == http.StatusForbidden:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

func statusError(provider string, status int, body []byte) *ResponseError {
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &ResponseError{Provider: provider, StatusCode: status, Body: string(body)}
}

func decodeError(provider string, err error) *ResponseError {
	return &ResponseError{Provider: provider, StatusCode: http.StatusOK, Err: fmt.Errorf("failed to decode response: %w", err)}
}
