package ledger

import "errors"

var (
	// ErrLedgerUnavailable is returned when the authoritative count or the
	// row scan cannot be obtained.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrSeriesUnavailable is returned when neither the aggregated series
	// nor any sampled date could be read.
	ErrSeriesUnavailable = errors.New("ledger series unavailable")
)
