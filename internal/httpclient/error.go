package httpclient

import (
	"fmt"

	ierr "github.com/vibefunder/billing/internal/errors"
)

// Error is a non-2xx response from a downstream service
type Error struct {
	StatusCode int
	Response   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// NewError creates a new HTTP client error
func NewError(statusCode int, response []byte) *Error {
	return &Error{
		StatusCode: statusCode,
		Response:   response,
	}
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if ierr.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
