// Package dbopen opens a bun database for the configured driver and creates
// the tables the search queries read.
//
// Supported drivers:
//
//	sqlite    modernc.org/sqlite, pure Go; used for tests and single-node setups
//	postgres  github.com/lib/pq
//
// SQLite connections get foreign_keys=ON and a busy timeout applied via EXEC.
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the database connection.
type Config struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	BusyTimeoutMS   int           `yaml:"busy_timeout_ms"`
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var db *bun.DB
	switch driver {
	case DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("dbopen: open sqlite: %w", err)
		}
		applyPool(sqldb, cfg)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if err := sqlitePragmas(ctx, db, cfg); err != nil {
			_ = db.Close()
			return nil, err
		}
	case DriverPostgres, "pg", "postgresql":
		sqldb, err := sql.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("dbopen: open postgres: %w", err)
		}
		applyPool(sqldb, cfg)
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("dbopen: unsupported driver %q", cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", driver, err)
	}
	return db, nil
}

// OpenMemory opens a private in-memory SQLite database. Every call gets its
// own database, so parallel tests do not share rows.
func OpenMemory(ctx context.Context) (*bun.DB, error) {
	return Open(ctx, Config{
		Driver:       DriverSQLite,
		DSN:          fmt.Sprintf("file:mem-%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	})
}

// Index is a secondary index created alongside the schema.
type Index struct {
	Model   any
	Name    string
	Columns []string
}

// CreateSchema creates tables for models, then indexes, skipping any that exist.
func CreateSchema(ctx context.Context, db bun.IDB, models []any, indexes []Index) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("dbopen: create table %T: %w", model, err)
		}
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().Model(idx.Model).Index(idx.Name).Column(idx.Columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("dbopen: create index %s: %w", idx.Name, err)
		}
	}
	return nil
}

func applyPool(sqldb *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func sqlitePragmas(ctx context.Context, db *bun.DB, cfg Config) error {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 10_000
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("dbopen: %s: %w", p, err)
		}
	}
	return nil
}
