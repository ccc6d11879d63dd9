package telemetry

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable is returned when the first page cannot be fetched.
var ErrUpstreamUnavailable = errors.New("telemetry upstream unavailable")

// StatusError is a non-2xx response from the trace API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("trace api returned status %d", e.Code)
	}
	return fmt.Sprintf("trace api returned status %d: %s", e.Code, e.Body)
}
