package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/snapshot"
)

// CutoffSettingKey holds the runtime-tunable cutoff date (YYYY-MM-DD).
const CutoffSettingKey = "unreviewed_users_cutoff_date"

// DateLayout is the layout of cutoff dates.
const DateLayout = "2006-01-02"

// ErrInvalidCutoff is returned for cutoff dates not in YYYY-MM-DD form.
var ErrInvalidCutoff = errors.New("review: cutoff date must use YYYY-MM-DD")

// Config holds the static defaults for the unreviewed-users snapshot.
type Config struct {
	DefaultCutoffDate string        `yaml:"default_cutoff_date"`
	MinBalanceCents   int64         `yaml:"min_balance_cents"`
	MaxRows           int           `yaml:"max_rows"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	MaxDuration       time.Duration `yaml:"max_duration"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCutoffDate: "2024-01-01",
		MinBalanceCents:   1000,
		MaxRows:           1000,
		RefreshInterval:   15 * time.Minute,
		MaxDuration:       snapshot.DefaultMaxDuration,
	}
}

// Validate checks the config values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultCutoffDate, validation.Required, validation.Date(DateLayout)),
		validation.Field(&c.MinBalanceCents, validation.Min(int64(0))),
		validation.Field(&c.MaxRows, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshInterval, validation.Required),
		validation.Field(&c.MaxDuration, validation.Required),
	)
}

// Settings are the inputs of one computation, fixed for the whole run.
type Settings struct {
	CutoffDate      time.Time
	MinBalanceCents int64
	MaxRows         int
}

// SettingsResolver reads the runtime cutoff override and falls back to the
// configured default.
type SettingsResolver struct {
	store  snapshot.Store
	cfg    Config
	logger *zap.Logger
}

// NewSettingsResolver returns a resolver reading overrides from store.
func NewSettingsResolver(store snapshot.Store, cfg Config, logger *zap.Logger) *SettingsResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsResolver{store: store, cfg: cfg, logger: logger}
}

// Resolve returns the settings for one run. An unreadable or malformed
// override is logged and the default cutoff is used.
func (r *SettingsResolver) Resolve(ctx context.Context) (Settings, error) {
	fallback, err := ParseCutoff(r.cfg.DefaultCutoffDate)
	if err != nil {
		return Settings{}, fmt.Errorf("review: default cutoff: %w", err)
	}

	settings := Settings{
		CutoffDate:      fallback,
		MinBalanceCents: r.cfg.MinBalanceCents,
		MaxRows:         r.cfg.MaxRows,
	}

	raw, found, err := r.store.Get(ctx, CutoffSettingKey)
	if err != nil {
		r.logger.Warn("cutoff setting unreadable, using default",
			zap.String("default", r.cfg.DefaultCutoffDate),
			zap.Error(err),
		)
		return settings, nil
	}
	if !found {
		return settings, nil
	}

	cutoff, err := ParseCutoff(string(raw))
	if err != nil {
		r.logger.Warn("cutoff setting malformed, using default",
			zap.String("value", string(raw)),
			zap.String("default", r.cfg.DefaultCutoffDate),
		)
		return settings, nil
	}
	settings.CutoffDate = cutoff
	return settings, nil
}

// SetCutoff stores a runtime cutoff override. It takes effect on the next run.
func SetCutoff(ctx context.Context, store snapshot.Store, date string) (time.Time, error) {
	cutoff, err := ParseCutoff(date)
	if err != nil {
		return time.Time{}, err
	}
	if err := store.Set(ctx, CutoffSettingKey, []byte(cutoff.Format(DateLayout)), 0); err != nil {
		return time.Time{}, fmt.Errorf("review: store cutoff: %w", err)
	}
	return cutoff, nil
}

// ParseCutoff parses a YYYY-MM-DD date as midnight UTC.
func ParseCutoff(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCutoff, value)
	}
	return t, nil
}
