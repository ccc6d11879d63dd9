package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeBucket aggregates events whose timestamps truncate to Start.
type TimeBucket struct {
	Start       time.Time
	EventCount  int64
	TotalCost   decimal.Decimal
	TotalTokens int64
}

// OrganizationUsage is a per-organization rollup. Counts are float64 because
// ledger sampling rescales them.
type OrganizationUsage struct {
	OrgID        string
	DisplayName  string
	RequestCount float64
	Cost         decimal.Decimal
	Tokens       float64
	Registered   bool
}

// RegistrySource identifies which key registry produced a mapping.
type RegistrySource int

const (
	RegistryNone RegistrySource = iota
	RegistryCurrent
	RegistryLegacy
)

func (s RegistrySource) String() string {
	switch s {
	case RegistryCurrent:
		return "current"
	case RegistryLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// KeyMapping is the organization a raw API key identifier resolves to.
type KeyMapping struct {
	OrgID       string
	DisplayName string
	KeyLabel    string
	Source      RegistrySource
	Registered  bool
}

// RegistryEntry is one row of a key registry table.
type RegistryEntry struct {
	KeyID    string
	OrgID    string
	KeyLabel string
}

// Source selects which backing data serves a usage request.
type Source string

const (
	SourceTelemetry Source = "telemetry"
	SourceLedger    Source = "ledger"
)

// ParseSource validates a source name. Empty input returns def.
func ParseSource(s string, def Source) (Source, error) {
	switch Source(s) {
	case "":
		return def, nil
	case SourceTelemetry, SourceLedger:
		return Source(s), nil
	default:
		return "", ErrUnknownSource
	}
}

// Other returns the alternate source used for fallback.
func (s Source) Other() Source {
	if s == SourceLedger {
		return SourceTelemetry
	}
	return SourceLedger
}
