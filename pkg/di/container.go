package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/cache"
	"github.com/goliatone/go-admin-search/httpapi"
	"github.com/goliatone/go-admin-search/internal/dbopen"
	"github.com/goliatone/go-admin-search/internal/logging"
	"github.com/goliatone/go-admin-search/internal/metrics"
	"github.com/goliatone/go-admin-search/lookupcache"
	"github.com/goliatone/go-admin-search/pkg/config"
	"github.com/goliatone/go-admin-search/report"
	"github.com/goliatone/go-admin-search/review"
	"github.com/goliatone/go-admin-search/scheduler"
	"github.com/goliatone/go-admin-search/search"
	"github.com/goliatone/go-admin-search/snapshot"
)

// LockPrefix namespaces refresher locks in Redis.
const LockPrefix = "admin_search:lock:"

// Container wires configuration into the services of the admin search
// process. It owns the connections it opened and releases them in Close.
type Container struct {
	config config.Config
	logger *zap.Logger
	now    func() time.Time

	metrics *metrics.Metrics
	db      *bun.DB
	ownsDB  bool
	redis   redis.UniversalClient
	store   snapshot.Store
	locker  snapshot.Locker

	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	directory     *lookupcache.CachedDirectory

	search     *search.Service
	resolver   *review.SettingsResolver
	unreviewed *snapshot.Refresher[review.UnreviewedUsers]
	reports    *report.Generator
	scheduler  *scheduler.Engine
}

type options struct {
	logger *zap.Logger
	db     *bun.DB
	store  snapshot.Store
	now    func() time.Time
}

// Option overrides a dependency the container would otherwise build.
type Option func(*options)

// WithLogger uses logger instead of one built from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDB uses an already open database. The caller keeps ownership.
func WithDB(db *bun.DB) Option {
	return func(o *options) { o.db = db }
}

// WithStore uses store for snapshots, settings and reports instead of the
// configured Redis or in-memory store.
func WithStore(store snapshot.Store) Option {
	return func(o *options) { o.store = store }
}

// WithClock replaces time.Now for snapshot and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewContainer validates cfg and builds every service.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{config: cfg, now: o.now}
	if err := c.build(ctx, o); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults builds a container over a private in-memory
// SQLite database and the in-process snapshot store.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	db, err := dbopen.OpenMemory(ctx)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.Logging.Level = "warn"
	c, err := NewContainer(ctx, cfg, append([]Option{WithDB(db)}, opts...)...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

func (c *Container) build(ctx context.Context, o options) error {
	var err error
	cfg := c.config

	c.logger = o.logger
	if c.logger == nil {
		if c.logger, err = logging.New(cfg.Logging); err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled {
		c.metrics = metrics.New(cfg.Metrics)
	}

	if err := c.openDB(ctx, o.db); err != nil {
		return err
	}
	if err := c.openStore(ctx, o.store); err != nil {
		return err
	}

	c.cacheService, err = cache.NewCacheService(cfg.Cache)
	if err != nil {
		return fmt.Errorf("di: lookup cache: %w", err)
	}
	c.keySerializer = cache.NewDefaultKeySerializer()
	c.directory = lookupcache.New(search.NewDirectory(c.db), c.cacheService, c.keySerializer)

	c.search = search.NewService(c.db, search.NewComposer(c.directory, cfg.Search.Tolerances()),
		search.WithTimeout(cfg.Search.QueryTimeout),
		search.WithPageLimits(cfg.Search.DefaultPerPage, cfg.Search.MaxPerPage),
		search.WithLogger(c.logger.Named("search")),
		search.WithRecorder(c.metrics),
	)

	c.resolver = review.NewSettingsResolver(c.store, cfg.UnreviewedUsers, c.logger.Named("review"))
	c.unreviewed = review.NewRefresher(c.db, c.store, c.resolver, c.now, c.logger.Named("review"),
		snapshot.WithLocker(c.locker),
		snapshot.WithMaxDuration(cfg.UnreviewedUsers.MaxDuration),
		snapshot.WithRecorder(c.metrics),
	)

	c.reports = report.NewGenerator(c.db, c.store, cfg.SalesReport,
		report.WithLogger(c.logger.Named("report")),
		report.WithRecorder(c.metrics),
		report.WithKeySerializer(c.keySerializer),
		report.WithClock(c.now),
	)

	c.scheduler = scheduler.New(c.logger.Named("scheduler"))
	return c.scheduler.Register(review.JobName, cfg.UnreviewedUsers.RefreshInterval, func(ctx context.Context) error {
		_, err := c.unreviewed.Run(ctx)
		return err
	})
}

func (c *Container) openDB(ctx context.Context, db *bun.DB) error {
	if db == nil {
		var err error
		if db, err = dbopen.Open(ctx, c.config.Database); err != nil {
			return err
		}
		c.ownsDB = true
	}
	c.db = db

	// SQLite databases are local; create the tables the queries expect.
	if db.Dialect().Name() == dialect.SQLite {
		if err := dbopen.CreateSchema(ctx, db, search.Models(), search.Indexes()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) openStore(ctx context.Context, store snapshot.Store) error {
	switch {
	case store != nil:
		c.store = store
		c.locker = snapshot.NewLocalLocker()
	case c.config.Redis.Enabled:
		client, err := snapshot.NewRedisClient(ctx, c.config.Redis)
		if err != nil {
			return fmt.Errorf("di: %w", err)
		}
		c.redis = client
		c.store = snapshot.NewRedisStore(client)
		// A crashed holder must not block refreshes longer than one run.
		c.locker = snapshot.NewRedisLocker(client, LockPrefix, c.config.UnreviewedUsers.MaxDuration+time.Minute)
	default:
		c.store = snapshot.NewMemoryStore()
		c.locker = snapshot.NewLocalLocker()
	}
	return nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// DB returns the database handle.
func (c *Container) DB() *bun.DB {
	return c.db
}

// Store returns the snapshot store.
func (c *Container) Store() snapshot.Store {
	return c.store
}

// Metrics returns the collectors, nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// CacheService returns the lookup cache.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the key serializer shared by the lookup cache and
// report deduplication.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Directory returns the cached foreign-key directory used by the composer.
func (c *Container) Directory() *lookupcache.CachedDirectory {
	return c.directory
}

// SearchService returns the admin search service.
func (c *Container) SearchService() *search.Service {
	return c.search
}

// UnreviewedUsers returns the unreviewed-users refresher.
func (c *Container) UnreviewedUsers() *snapshot.Refresher[review.UnreviewedUsers] {
	return c.unreviewed
}

// Reports returns the sales report generator.
func (c *Container) Reports() *report.Generator {
	return c.reports
}

// Scheduler returns the job engine.
func (c *Container) Scheduler() *scheduler.Engine {
	return c.scheduler
}

// RefreshUnreviewed recomputes the unreviewed-users snapshot now. ran is
// false when another computation held the lock.
func (c *Container) RefreshUnreviewed(ctx context.Context) (bool, error) {
	outcome, err := c.unreviewed.Run(ctx)
	return outcome != snapshot.OutcomeSkipped, err
}

// Health pings the database and, when configured, Redis.
func (c *Container) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Router returns the HTTP handler for every admin route.
func (c *Container) Router() http.Handler {
	deps := httpapi.Deps{
		Search:         c.search,
		Unreviewed:     review.NewReader(c.store),
		Settings:       c.store,
		Refresh:        c.RefreshUnreviewed,
		Reports:        c.reports,
		Health:         c.Health,
		DefaultPerPage: c.config.Search.DefaultPerPage,
		MaxPerPage:     c.config.Search.MaxPerPage,
		Logger:         c.logger.Named("http"),
	}
	if c.metrics != nil {
		deps.Metrics = c.metrics.Handler()
		deps.MetricsPath = c.config.Metrics.Path
	}
	return httpapi.NewRouter(deps)
}

// Start launches the scheduled jobs.
func (c *Container) Start(ctx context.Context) error {
	return c.scheduler.Start(ctx)
}

// Close stops jobs and releases owned connections.
func (c *Container) Close() error {
	var errs []error

	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.reports != nil {
		errs = append(errs, c.reports.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.db != nil && c.ownsDB {
		errs = append(errs, c.db.Close())
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return errors.Join(errs...)
}

// NewCachedDirectory wraps another directory with the container's lookup
// cache and key serializer.
func NewCachedDirectory(c *Container, base search.Directory) *lookupcache.CachedDirectory {
	return lookupcache.New(base, c.cacheService, c.keySerializer)
}
