package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a response the remote produced deliberately: the request
// arrived, the remote refused or failed it. Transport failures (timeouts,
// unreachable host) are never APIErrors.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d", e.Status)
	}
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
}

// IsValidation reports whether err is a remote rejection of the payload
// itself (4xx). Validation faults will fail the same way on every retry.
func IsValidation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError
}

// IsTransient reports whether err is worth retrying on a later pass:
// transport failures, timeouts, and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsValidation(err)
}
