package ratesource

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrNotConfigured means no API key is set; the provider was not contacted.
	ErrNotConfigured = errors.ConstError("exchange rate API key not configured")

	// ErrMalformedPayload covers undecodable bodies and missing or
	// non-positive INR rates.
	ErrMalformedPayload = errors.ConstError("Invalid exchange rate received from API")
)

// HTTPError is a non-2xx response from the provider.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API request failed: %s", e.Status)
}

// APIError is a 2xx response whose body reports result "error".
type APIError struct {
	Type string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return "Unknown API error"
	}
	return e.Type
}
