package attribution

import "strings"

// operationNames are trace names emitted by pipeline steps. They name the
// operation that ran and never an organization.
var operationNames = map[string]struct{}{ //nolint:gochecknoglobals // fixed denylist
	"enrich_lead":       {},
	"find_email":        {},
	"find_phone":        {},
	"qa_agent":          {},
	"unknown":           {},
	"lead_scoring":      {},
	"company_research":  {},
	"person_research":   {},
	"web_search":        {},
	"scrape_website":    {},
	"generate_email":    {},
	"classify_industry": {},
	"extract_contacts":  {},
	"validate_email":    {},
	"summarize":         {},
	"chat":              {},
	"completion":        {},
	"embedding":         {},
	"workflow":          {},
	"agent":             {},
}

// pseudoOrgs never appear in organization listings.
var pseudoOrgs = map[string]struct{}{ //nolint:gochecknoglobals // fixed denylist
	"unknown":  {},
	"system":   {},
	"internal": {},
}

// IsOperationName reports whether s is a known operation name.
func IsOperationName(s string) bool {
	_, ok := operationNames[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// IsListable reports whether org may appear in an organization listing.
// Unknown and system pseudo-organizations, and operation-name artifacts,
// are still counted in totals but never listed.
func IsListable(org string) bool {
	key := strings.ToLower(strings.TrimSpace(org))
	if key == "" {
		return false
	}
	if _, ok := pseudoOrgs[key]; ok {
		return false
	}
	return !IsOperationName(key)
}
