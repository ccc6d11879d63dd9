package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/usagedash/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.CacheTTL, convey.ShouldEqual, 5*time.Minute)
				convey.So(cfg.Telemetry.MaxPages, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("USAGEDASH_ADDR", ":8080")
			_ = os.Setenv("USAGEDASH_CACHE_TTL", "2m")
			_ = os.Setenv("USAGEDASH_TOP_ORGS", "25")
			_ = os.Setenv("USAGEDASH_TELEMETRY__BASE_URL", "https://traces.example.com")
			_ = os.Setenv("USAGEDASH_TELEMETRY__PAGE_SIZE", "200")
			_ = os.Setenv("USAGEDASH_LEDGER__DATABASE_URL", "postgres://u:p@localhost/ledger")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults, including nested keys", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CacheTTL, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.TopOrganizations, convey.ShouldEqual, 25)
				convey.So(cfg.Telemetry.BaseURL, convey.ShouldEqual, "https://traces.example.com")
				convey.So(cfg.Telemetry.PageSize, convey.ShouldEqual, 200)
				convey.So(cfg.Telemetry.MaxPages, convey.ShouldEqual, 50)
				convey.So(cfg.Ledger.DatabaseURL, convey.ShouldEqual, "postgres://u:p@localhost/ledger")
				convey.So(cfg.Ledger.RequestTable, convey.ShouldEqual, "api_request_logs")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
log_format: json
default_source: ledger
telemetry:
  base_url: "https://traces.internal"
  public_key: pk
  secret_key: sk
  timeout: 45s
ledger:
  database_url: "postgres://localhost/ledger"
  max_conns: 4
auth:
  jwt_secret: s3cret
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("USAGEDASH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.DefaultSource, convey.ShouldEqual, "ledger")
				convey.So(cfg.Telemetry.PublicKey, convey.ShouldEqual, "pk")
				convey.So(cfg.Telemetry.Timeout, convey.ShouldEqual, 45*time.Second)
				convey.So(cfg.Telemetry.PageSize, convey.ShouldEqual, 100)
				convey.So(cfg.Ledger.MaxConns, convey.ShouldEqual, 4)
				convey.So(cfg.Auth.JWTSecret, convey.ShouldEqual, "s3cret")
				convey.So(cfg.Auth.RequiredRole, convey.ShouldEqual, "admin") // default
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
top_orgs: 5
telemetry:
  max_pages: 20
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("USAGEDASH_CONFIG", tmpFile)
			_ = os.Setenv("USAGEDASH_ADDR", ":8080")
			_ = os.Setenv("USAGEDASH_TELEMETRY__MAX_PAGES", "30")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.TopOrganizations, convey.ShouldEqual, 5)
				convey.So(cfg.Telemetry.MaxPages, convey.ShouldEqual, 30)
				convey.So(cfg.Telemetry.PageSize, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("USAGEDASH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("USAGEDASH_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("USAGEDASH_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("USAGEDASH_TOP_ORGS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a negative organization cap", func() {
			_ = os.Setenv("USAGEDASH_TOP_ORGS", "-1")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "top_orgs")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"USAGEDASH_CONFIG",
		"USAGEDASH_ADDR",
		"USAGEDASH_CACHE_TTL",
		"USAGEDASH_TOP_ORGS",
		"USAGEDASH_TELEMETRY__BASE_URL",
		"USAGEDASH_TELEMETRY__PAGE_SIZE",
		"USAGEDASH_TELEMETRY__MAX_PAGES",
		"USAGEDASH_LEDGER__DATABASE_URL",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "usagedash-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
