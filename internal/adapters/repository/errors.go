package repository

import "errors"

// Sentinel kinds for ledger store errors.
var (
	ErrNotConfigured = errors.New("ledger database not configured")
	ErrConnect       = errors.New("ledger database connect failed")
)
