// Package types contains the JSON shapes returned by the HTTP API.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageResponse is the full dashboard payload.
type UsageResponse struct {
	Summary       Summary           `json:"summary"`
	Organizations []OrganizationRow `json:"organizations"`
	ChartData     []ChartPoint      `json:"chartData"`
	Granularity   string            `json:"granularity"`
	Source        string            `json:"source"`
	Sampled       bool              `json:"sampled"`
	ScalingFactor float64           `json:"scalingFactor"`
}

// Summary holds window-wide totals. Unknown-attributed events are included.
type Summary struct {
	TotalCost     float64 `json:"totalCost"`
	TotalTraces   int64   `json:"totalTraces"`
	TotalRequests float64 `json:"totalRequests"`
	TotalTokens   float64 `json:"totalTokens"`
}

// ChartPoint is one bucket of the usage series.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
	Cost      float64   `json:"cost"`
	Tokens    int64     `json:"tokens"`
}

// OrganizationRow is one entry of the organization breakdown.
type OrganizationRow struct {
	OrgID      string  `json:"orgId"`
	Name       string  `json:"name"`
	Requests   float64 `json:"requests"`
	Cost       float64 `json:"cost"`
	Tokens     float64 `json:"tokens"`
	Registered bool    `json:"registered"`
}

// DisplayCost rounds a cost to cents for display. Internal sums stay exact.
func DisplayCost(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
