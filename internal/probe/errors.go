package probe

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid probe config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrViolations    = errors.New("usage invariants violated")
)
