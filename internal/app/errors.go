package service

import "errors"

var (
	// ErrNoSource is returned when neither usage source is configured.
	ErrNoSource = errors.New("no usage source configured")

	// ErrSourcesFailed is returned when every configured source failed.
	ErrSourcesFailed = errors.New("all usage sources failed")

	// ErrNotStarted is returned by queries issued before Start.
	ErrNotStarted = errors.New("service not started")
)
