package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "USAGEDASH_"
	envConfigFile = "USAGEDASH_CONFIG"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if USAGEDASH_CONFIG is set
//  3. env (prefix USAGEDASH_, "__" separates nested keys)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// USAGEDASH_TELEMETRY__BASE_URL -> telemetry.base_url
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the rest of the service relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	case c.CacheSize < 0:
		return fmt.Errorf("%w: cache_size must not be negative", ErrInvalidConfig)
	case c.TopOrganizations < 1:
		return fmt.Errorf("%w: top_orgs must be at least 1", ErrInvalidConfig)
	case c.Telemetry.PageSize < 1 || c.Telemetry.PageSize > 1000:
		return fmt.Errorf("%w: telemetry.page_size must be within 1..1000", ErrInvalidConfig)
	case c.Telemetry.MaxPages < 1:
		return fmt.Errorf("%w: telemetry.max_pages must be at least 1", ErrInvalidConfig)
	}

	switch c.DefaultSource {
	case "telemetry", "ledger":
	default:
		return fmt.Errorf("%w: default_source must be telemetry or ledger, got %q", ErrInvalidConfig, c.DefaultSource)
	}

	// table names are interpolated into SQL
	for _, name := range []string{c.Ledger.RequestTable, c.Ledger.CurrentKeyTable, c.Ledger.LegacyKeyTable, c.Ledger.OrgTable} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: invalid ledger table name %q", ErrInvalidConfig, name)
		}
	}
	return nil
}
