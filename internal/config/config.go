// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RequestTimeout bounds a single dashboard request end to end.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// CacheTTL is how long a computed usage response is reused.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheSize caps the number of cached usage responses.
	CacheSize int `koanf:"cache_size"`

	// DirectoryTTL is how long organization display names are cached.
	DirectoryTTL time.Duration `koanf:"directory_ttl"`

	// TopOrganizations caps the organizations list in telemetry responses.
	TopOrganizations int `koanf:"top_orgs"`

	// MinOrgEvents drops organizations with fewer events from telemetry lists.
	MinOrgEvents int `koanf:"min_org_events"`

	// DefaultSource is used when a request names no source: telemetry or ledger.
	DefaultSource string `koanf:"default_source"`

	Telemetry TelemetryConfig `koanf:"telemetry"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Auth      AuthConfig      `koanf:"auth"`
}

// TelemetryConfig configures the trace API client.
type TelemetryConfig struct {
	BaseURL     string        `koanf:"base_url"`
	PublicKey   string        `koanf:"public_key"`
	SecretKey   string        `koanf:"secret_key"`
	BearerToken string        `koanf:"bearer_token"`
	PageSize    int           `koanf:"page_size"`
	MaxPages    int           `koanf:"max_pages"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Enabled reports whether a telemetry endpoint is configured.
func (t TelemetryConfig) Enabled() bool { return t.BaseURL != "" }

// LedgerConfig configures the Postgres request-log ledger.
type LedgerConfig struct {
	DatabaseURL     string `koanf:"database_url"`
	MaxConns        int32  `koanf:"max_conns"`
	RequestTable    string `koanf:"request_table"`
	CurrentKeyTable string `koanf:"current_key_table"`
	LegacyKeyTable  string `koanf:"legacy_key_table"`
	OrgTable        string `koanf:"org_table"`
}

// Enabled reports whether a ledger database is configured.
func (l LedgerConfig) Enabled() bool { return l.DatabaseURL != "" }

// AuthConfig configures verification of the identity token handed over by
// the session system. An empty secret disables verification.
type AuthConfig struct {
	JWTSecret    string `koanf:"jwt_secret"`
	RequiredRole string `koanf:"required_role"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		RequestTimeout:   110 * time.Second,
		CacheTTL:         5 * time.Minute,
		CacheSize:        512,
		DirectoryTTL:     10 * time.Minute,
		TopOrganizations: 10,
		MinOrgEvents:     2,
		DefaultSource:    "telemetry",
		Telemetry: TelemetryConfig{
			PageSize: 100,
			MaxPages: 50,
			Timeout:  30 * time.Second,
		},
		Ledger: LedgerConfig{
			MaxConns:        8,
			RequestTable:    "api_request_logs",
			CurrentKeyTable: "api_keys",
			LegacyKeyTable:  "legacy_api_keys",
			OrgTable:        "organizations",
		},
		Auth: AuthConfig{
			RequiredRole: "admin",
		},
	}
}
