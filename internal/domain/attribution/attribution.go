// Package attribution decides which organization a telemetry event belongs to.
//
// No single event field reliably carries the organization, so the resolver
// walks an ordered chain of rules from the strongest signal to the weakest and
// stops at the first that yields a value. Each rule is a pure function of the
// event and can be exercised on its own through Rules.
package attribution

import (
	"sort"
	"strings"

	"github.com/okian/usagedash/internal/domain/model"
)

const tracePrefix = "trace-"

// Rule extracts an organization from one signal of an event.
type Rule struct {
	Name    string
	Extract func(e model.TelemetryEvent) (string, bool)
}

// Rule names, also used as metric labels.
const (
	RuleMetadataOrgID = "metadata_org_id"
	RuleOrgTag        = "org_tag"
	RuleUserID        = "user_id"
	RuleSessionID     = "session_id"
	RuleName          = "name"
	RuleMetadataScan  = "metadata_scan"
	RuleFallback      = "fallback"
)

var chain = []Rule{ //nolint:gochecknoglobals // immutable rule table
	{Name: RuleMetadataOrgID, Extract: metadataOrgID},
	{Name: RuleOrgTag, Extract: orgTag},
	{Name: RuleUserID, Extract: func(e model.TelemetryEvent) (string, bool) { return identity(e.UserID) }},
	{Name: RuleSessionID, Extract: func(e model.TelemetryEvent) (string, bool) { return identity(e.SessionID) }},
	{Name: RuleName, Extract: eventName},
	{Name: RuleMetadataScan, Extract: metadataScan},
}

// Rules returns the chain in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(chain))
	copy(out, chain)
	return out
}

// Resolve returns the organization for e, or model.UnknownOrg.
func Resolve(e model.TelemetryEvent) string {
	org, _ := ResolveWithRule(e)
	return org
}

// ResolveWithRule also reports which rule matched.
func ResolveWithRule(e model.TelemetryEvent) (org, rule string) {
	for _, r := range chain {
		if v, ok := r.Extract(e); ok {
			return v, r.Name
		}
	}
	return model.UnknownOrg, RuleFallback
}

// ResolveAll attributes every event, preserving order. The optional observe
// callback receives the matching rule name for each event.
func ResolveAll(events []model.TelemetryEvent, observe func(rule string)) []model.AttributedEvent {
	out := make([]model.AttributedEvent, len(events))
	for i, e := range events {
		org, rule := ResolveWithRule(e)
		if observe != nil {
			observe(rule)
		}
		out[i] = model.AttributedEvent{TelemetryEvent: e, OrgID: org}
	}
	return out
}

func metadataOrgID(e model.TelemetryEvent) (string, bool) {
	v, ok := e.Metadata["org_id"].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

var tagPrefixes = []string{"org_id:", "organization:", "org:"} //nolint:gochecknoglobals // lookup table

func orgTag(e model.TelemetryEvent) (string, bool) {
	for _, tag := range e.Tags {
		for _, p := range tagPrefixes {
			if !strings.HasPrefix(tag, p) {
				continue
			}
			if v := strings.TrimSpace(tag[len(p):]); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func identity(v string) (string, bool) {
	if v == "" || v == "undefined" || v == "null" || strings.HasPrefix(v, tracePrefix) {
		return "", false
	}
	return v, true
}

func eventName(e model.TelemetryEvent) (string, bool) {
	n := e.Name
	switch {
	case n == "", n == "undefined":
		return "", false
	case IsOperationName(n), strings.HasPrefix(n, tracePrefix):
		return "", false
	case strings.ContainsAny(n, "_-"):
		// function-style identifiers describe what ran, not who ran it
		return "", false
	}
	return n, true
}

func metadataScan(e model.TelemetryEvent) (string, bool) {
	if len(e.Metadata) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		if strings.Contains(strings.ToLower(k), "org") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := e.Metadata[k].(string)
		if !ok || strings.HasPrefix(v, tracePrefix) {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}
