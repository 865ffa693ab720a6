package sopqa

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped from HTTP status codes. Use errors.Is() to check.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrProviderFailure   = errors.New("upstream provider failure")
	ErrUnavailable       = errors.New("service unavailable")
)

// APIError is the decoded JSON error body of a failed request. It wraps
// the sentinel matching its HTTP status.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	sentinel   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sopqa: %s (%d %s)", e.Message, e.StatusCode, e.Code)
}

func (e *APIError) Unwrap() error { return e.sentinel }

func sentinelForStatus(status int) error {
	switch status {
	case 400:
		return ErrInvalidRequest
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	case 415:
		return ErrUnsupportedFormat
	case 502:
		return ErrProviderFailure
	case 503:
		return ErrUnavailable
	default:
		return nil
	}
}
