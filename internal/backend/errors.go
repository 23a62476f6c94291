package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means there is no usable token; the user has to log in.
	ErrUnauthorized = errors.New("login required")
	// ErrUnavailable wraps transport failures: DNS, refused connections, timeouts.
	ErrUnavailable = errors.New("backend unavailable")
)

// APIError is a response the backend rejected, with its own message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Message extracts a human readable message from err, preferring the
// backend's own wording.
func Message(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized.Error()
	case errors.Is(err, ErrUnavailable):
		return "network error, please try again"
	default:
		return err.Error()
	}
}
