// Package config loads the service configuration from YAML with environment
// overrides and validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-admin-search/cache"
	"github.com/goliatone/go-admin-search/internal/dbopen"
	"github.com/goliatone/go-admin-search/internal/logging"
	"github.com/goliatone/go-admin-search/internal/metrics"
	"github.com/goliatone/go-admin-search/paginate"
	"github.com/goliatone/go-admin-search/report"
	"github.com/goliatone/go-admin-search/review"
	"github.com/goliatone/go-admin-search/search"
	"github.com/goliatone/go-admin-search/snapshot"
)

// Environment variables that override file values.
const (
	EnvDatabaseDSN = "ADMIN_SEARCH_DB_DSN"
	EnvRedisAddr   = "ADMIN_SEARCH_REDIS_ADDR"
	EnvHTTPAddr    = "ADMIN_SEARCH_HTTP_ADDR"
	EnvLogLevel    = "ADMIN_SEARCH_LOG_LEVEL"
)

// Config is the full service configuration.
type Config struct {
	HTTP            HTTPConfig           `yaml:"http"`
	Database        dbopen.Config        `yaml:"database"`
	Redis           snapshot.RedisConfig `yaml:"redis"`
	Logging         logging.Config       `yaml:"logging"`
	Cache           cache.Config         `yaml:"cache"`
	Search          SearchConfig         `yaml:"search"`
	UnreviewedUsers review.Config        `yaml:"unreviewed_users"`
	SalesReport     report.Config        `yaml:"sales_report"`
	Metrics         metrics.Config       `yaml:"metrics"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SearchConfig tunes admin searches.
type SearchConfig struct {
	QueryTimeout    time.Duration   `yaml:"query_timeout"`
	DefaultPerPage  int             `yaml:"default_per_page"`
	MaxPerPage      int             `yaml:"max_per_page"`
	FuzzDays        int             `yaml:"fuzz_days"`
	AmountTolerance decimal.Decimal `yaml:"amount_tolerance"`
}

// Tolerances returns the composer tolerances.
func (s SearchConfig) Tolerances() search.Tolerances {
	return search.Tolerances{FuzzDays: s.FuzzDays, AmountTolerance: s.AmountTolerance}
}

// Default returns a configuration that runs against in-memory SQLite and the
// in-process snapshot store.
func Default() Config {
	tol := search.DefaultTolerances()
	return Config{
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: dbopen.Config{
			Driver:        dbopen.DriverSQLite,
			DSN:           "file:admin-search.db?cache=shared",
			MaxOpenConns:  10,
			MaxIdleConns:  5,
			BusyTimeoutMS: 5000,
		},
		Redis: snapshot.RedisConfig{
			Mode:         "single",
			Addresses:    []string{"localhost:6379"},
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Logging:         logging.DefaultConfig(),
		Cache:           cache.DefaultConfig(),
		Search: SearchConfig{
			QueryTimeout:    search.DefaultQueryTimeout,
			DefaultPerPage:  paginate.DefaultLimit,
			MaxPerPage:      paginate.MaxLimit,
			FuzzDays:        tol.FuzzDays,
			AmountTolerance: tol.AmountTolerance,
		},
		UnreviewedUsers: review.DefaultConfig(),
		SalesReport:     report.DefaultConfig(),
		Metrics:         metrics.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses defaults and environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Setting the Redis address
// also enables Redis.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseDSN); ok && v != "" {
		c.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Database.Driver = dbopen.DriverPostgres
		}
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Redis.Enabled = true
		c.Redis.Addresses = splitList(v)
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.HTTP.Address = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.Errors{
		"http":             c.HTTP.validate(),
		"database":         c.validateDatabase(),
		"redis":            c.validateRedis(),
		"logging":          c.validateLogging(),
		"cache":            c.Cache.Validate(),
		"search":           c.Search.validate(),
		"unreviewed_users": c.UnreviewedUsers.Validate(),
		"sales_report":     c.validateSalesReport(),
	}.Filter()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (h HTTPConfig) validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Address, validation.Required),
		validation.Field(&h.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

func (c Config) validateDatabase() error {
	d := c.Database
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(
			dbopen.DriverSQLite, "sqlite3", dbopen.DriverPostgres, "pg", "postgresql")),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
	)
}

func (c Config) validateRedis() error {
	if !c.Redis.Enabled {
		return nil
	}
	r := c.Redis
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.In("", "single", "cluster", "sentinel")),
		validation.Field(&r.Addresses, validation.Required),
		validation.Field(&r.SentinelMaster, validation.When(r.Mode == "sentinel", validation.Required)),
	)
}

func (c Config) validateLogging() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	l := c.Logging
	return validation.ValidateStruct(&l,
		validation.Field(&l.Format, validation.In("", "console", "json")),
	)
}

func (s SearchConfig) validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.QueryTimeout, validation.Required),
		validation.Field(&s.DefaultPerPage, validation.Required, validation.Min(1)),
		validation.Field(&s.MaxPerPage, validation.Required, validation.Min(s.DefaultPerPage)),
		validation.Field(&s.FuzzDays, validation.Min(0)),
		validation.Field(&s.AmountTolerance, validation.By(toleranceInRange)),
	)
}

func toleranceInRange(value any) error {
	t, _ := value.(decimal.Decimal)
	if t.IsNegative() || t.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("must be between 0 and 1")
	}
	return nil
}

func (c Config) validateSalesReport() error {
	s := c.SalesReport
	return validation.ValidateStruct(&s,
		validation.Field(&s.Retention, validation.Required),
		validation.Field(&s.MaxDuration, validation.Required),
	)
}
