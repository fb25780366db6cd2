package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuth marks a credential rejected by the upstream API. Callers match it
// with errors.Is so a bad secret can be surfaced differently from other
// upstream failures.
var ErrAuth = errors.New("upstream credential rejected")

// APIError is any non-2xx response from the upstream API, carrying the
// status and the parsed error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}

	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrAuth
	}

	return nil
}
