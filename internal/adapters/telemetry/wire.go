package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/usagedash/internal/domain/model"
	"github.com/shopspring/decimal"
)

// wireTrace is one trace as returned by the public traces endpoint. Cost and
// token fields vary between API versions, so every known spelling is read.
type wireTrace struct {
	ID                  string           `json:"id"`
	Timestamp           time.Time        `json:"timestamp"`
	Name                string           `json:"name"`
	UserID              string           `json:"userId"`
	SessionID           string           `json:"sessionId"`
	Tags                []string         `json:"tags"`
	Metadata            json.RawMessage  `json:"metadata"`
	TotalCost           *decimal.Decimal `json:"totalCost"`
	CalculatedTotalCost *decimal.Decimal `json:"calculatedTotalCost"`
	TotalTokens         *int64           `json:"totalTokens"`
	Usage               *wireUsage       `json:"usage"`
}

type wireUsage struct {
	Total       *int64 `json:"total"`
	TotalTokens *int64 `json:"totalTokens"`
	Input       *int64 `json:"input"`
	Output      *int64 `json:"output"`
}

type wireMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

type wireEnvelope struct {
	Data []wireTrace `json:"data"`
	Meta *wireMeta   `json:"meta"`
}

type page struct {
	events     []model.TelemetryEvent
	totalPages int
}

// decodePage accepts either a bare JSON array or a {data, meta} envelope.
func decodePage(body []byte) (page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return page{}, fmt.Errorf("empty response body")
	}

	var (
		traces []wireTrace
		p      page
	)
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &traces); err != nil {
			return page{}, fmt.Errorf("decode trace array: %w", err)
		}
	} else {
		var env wireEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return page{}, fmt.Errorf("decode trace envelope: %w", err)
		}
		traces = env.Data
		if env.Meta != nil {
			p.totalPages = env.Meta.TotalPages
		}
	}

	p.events = make([]model.TelemetryEvent, 0, len(traces))
	for i := range traces {
		p.events = append(p.events, traces[i].toEvent())
	}
	return p, nil
}

func (w *wireTrace) toEvent() model.TelemetryEvent {
	e := model.TelemetryEvent{
		ID:        w.ID,
		Timestamp: w.Timestamp.UTC(),
		Name:      w.Name,
		Cost:      decimal.Zero,
		Tags:      w.Tags,
		UserID:    w.UserID,
		SessionID: w.SessionID,
		Metadata:  decodeMetadata(w.Metadata),
	}

	switch {
	case w.TotalCost != nil:
		e.Cost = *w.TotalCost
	case w.CalculatedTotalCost != nil:
		e.Cost = *w.CalculatedTotalCost
	}
	if e.Cost.IsNegative() {
		e.Cost = decimal.Zero
	}

	if n, ok := w.tokens(); ok && n >= 0 {
		e.TokenCount = n
		e.TokensReported = true
	}
	return e
}

func (w *wireTrace) tokens() (int64, bool) {
	if w.TotalTokens != nil {
		return *w.TotalTokens, true
	}
	if u := w.Usage; u != nil {
		switch {
		case u.Total != nil:
			return *u.Total, true
		case u.TotalTokens != nil:
			return *u.TotalTokens, true
		case u.Input != nil || u.Output != nil:
			var n int64
			if u.Input != nil {
				n += *u.Input
			}
			if u.Output != nil {
				n += *u.Output
			}
			return n, true
		}
	}
	return 0, false
}

// decodeMetadata keeps object metadata only; producers sometimes send a
// bare string or null.
func decodeMetadata(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
