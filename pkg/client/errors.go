package client

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBackendUnavailable wraps transport failures reaching the backend
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrSessionExpired is returned when the refresh token was refused; the session is cleared
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrNotAuthenticated is returned for authenticated calls without any stored session
	ErrNotAuthenticated = errors.New("not logged in")
)

// APIError is a non-2xx response from the backend
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
