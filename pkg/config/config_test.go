package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-admin-search/internal/dbopen"
)

func noEnv(string) (string, bool) { return "", false }

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	for _, key := range []string{EnvDatabaseDSN, EnvRedisAddr, EnvHTTPAddr, EnvLogLevel} {
		t.Setenv(key, "")
	}

	cfg, err := Load(filepath.Join("testdata", "full.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"http address", cfg.HTTP.Address == ":9090"},
		{"shutdown timeout", cfg.HTTP.ShutdownTimeout == 20*time.Second},
		{"read timeout default kept", cfg.HTTP.ReadTimeout == 15*time.Second},
		{"database driver", cfg.Database.Driver == dbopen.DriverPostgres},
		{"conn lifetime", cfg.Database.ConnMaxLifetime == 30*time.Minute},
		{"redis sentinel", cfg.Redis.Enabled && cfg.Redis.Mode == "sentinel" && len(cfg.Redis.Addresses) == 2},
		{"logging", cfg.Logging.Level == "debug" && cfg.Logging.Format == "json"},
		{"cache ttl", cfg.Cache.TTL == 2*time.Minute && cfg.Cache.NumShards == 8},
		{"query timeout", cfg.Search.QueryTimeout == 4*time.Second},
		{"per page", cfg.Search.DefaultPerPage == 20 && cfg.Search.MaxPerPage == 50},
		{"tolerance", cfg.Search.AmountTolerance.Equal(decimal.RequireFromString("0.10"))},
		{"fuzz days", cfg.Search.Tolerances().FuzzDays == 2},
		{"cutoff", cfg.UnreviewedUsers.DefaultCutoffDate == "2023-06-01"},
		{"max rows", cfg.UnreviewedUsers.MaxRows == 250 && cfg.UnreviewedUsers.MinBalanceCents == 5000},
		{"refresh interval", cfg.UnreviewedUsers.RefreshInterval == 10*time.Minute},
		{"report retention", cfg.SalesReport.Retention == 72*time.Hour},
		{"metrics disabled", !cfg.Metrics.Enabled},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("%s not loaded: %+v", c.name, cfg)
		}
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv(EnvHTTPAddr, ":7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":7000" || cfg.Database.Driver != dbopen.DriverSQLite {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("http: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "absent.yaml")},
		{"malformed yaml", broken},
		{"invalid values", filepath.Join("testdata", "invalid.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(env(map[string]string{
		EnvDatabaseDSN: "postgres://u:p@db/shop",
		EnvRedisAddr:   "r1:6379, r2:6379,",
		EnvHTTPAddr:    "127.0.0.1:8081",
		EnvLogLevel:    "warn",
	}))

	if cfg.Database.DSN != "postgres://u:p@db/shop" || cfg.Database.Driver != dbopen.DriverPostgres {
		t.Errorf("database = %+v", cfg.Database)
	}
	if !cfg.Redis.Enabled || strings.Join(cfg.Redis.Addresses, "|") != "r1:6379|r2:6379" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.HTTP.Address != "127.0.0.1:8081" || cfg.Logging.Level != "warn" {
		t.Errorf("http/logging = %+v / %+v", cfg.HTTP, cfg.Logging)
	}

	untouched := Default()
	untouched.ApplyEnv(noEnv)
	if untouched.Redis.Enabled || untouched.HTTP.Address != ":8080" {
		t.Error("ApplyEnv() changed fields without environment values")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		section string
	}{
		{"no http address", func(c *Config) { c.HTTP.Address = "" }, "http"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database"},
		{"no dsn", func(c *Config) { c.Database.DSN = "" }, "database"},
		{"redis without addresses", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addresses = nil }, "redis"},
		{"sentinel without master", func(c *Config) { c.Redis.Enabled = true; c.Redis.Mode = "sentinel" }, "redis"},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, "logging"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging"},
		{"cache capacity", func(c *Config) { c.Cache.Capacity = 0 }, "cache"},
		{"no query timeout", func(c *Config) { c.Search.QueryTimeout = 0 }, "search"},
		{"max below default", func(c *Config) { c.Search.MaxPerPage = 10; c.Search.DefaultPerPage = 20 }, "search"},
		{"tolerance too wide", func(c *Config) { c.Search.AmountTolerance = decimal.NewFromInt(1) }, "search"},
		{"negative tolerance", func(c *Config) { c.Search.AmountTolerance = decimal.NewFromFloat(-0.1) }, "search"},
		{"negative fuzz", func(c *Config) { c.Search.FuzzDays = -1 }, "search"},
		{"bad cutoff", func(c *Config) { c.UnreviewedUsers.DefaultCutoffDate = "01/01/2024" }, "unreviewed_users"},
		{"no report retention", func(c *Config) { c.SalesReport.Retention = 0 }, "sales_report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var verrs validation.Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want validation errors", err)
			}
			if _, ok := verrs[tt.section]; !ok || len(verrs) != 1 {
				t.Errorf("errors = %v, want only %s", verrs, tt.section)
			}
		})
	}
}
