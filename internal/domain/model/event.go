// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostPerToken converts a cost into an estimated token count when a source
// does not report tokens itself.
const CostPerToken = 0.000005

// UnknownOrg is the attribution sentinel for events no rule could place.
const UnknownOrg = "Unknown"

var costPerToken = decimal.NewFromFloat(CostPerToken) //nolint:gochecknoglobals // derived constant

// TelemetryEvent is one recorded unit of work fetched from the trace API.
// Values are never mutated after the fetcher returns them.
type TelemetryEvent struct {
	ID             string          // unique across the trace API
	Timestamp      time.Time       // UTC
	Name           string          // operation label
	Cost           decimal.Decimal // zero when absent
	TokenCount     int64           // zero when absent
	TokensReported bool            // false when the source omitted token usage
	Tags           []string        // optionally key:value
	UserID         string
	SessionID      string
	Metadata       map[string]any
}

// EffectiveTokens returns the reported token count, or an estimate derived
// from cost when the source did not report tokens.
func (e TelemetryEvent) EffectiveTokens() int64 {
	if e.TokensReported || e.Cost.IsZero() {
		return e.TokenCount
	}
	return e.Cost.Div(costPerToken).IntPart()
}

// AttributedEvent is a TelemetryEvent with its resolved organization.
type AttributedEvent struct {
	TelemetryEvent
	OrgID string
}
