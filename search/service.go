package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/paginate"
)

// ErrQueryTimeout is returned when a search exceeds its execution budget.
var ErrQueryTimeout = errors.New("search: query timed out")

// DefaultQueryTimeout bounds a single admin search.
const DefaultQueryTimeout = 10 * time.Second

// pgQueryCanceled is the SQLSTATE raised when statement_timeout fires.
const pgQueryCanceled = "57014"

// Recorder receives one observation per search.
type Recorder interface {
	ObserveSearch(kind, outcome string, elapsed time.Duration)
}

// Service runs composed searches under a timeout.
type Service struct {
	db       *bun.DB
	composer *Composer
	timeout  time.Duration
	defLimit int
	maxLimit int
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the per-search execution budget.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPageLimits sets the default and maximum page size.
func WithPageLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		s.defLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService returns a Service querying db with plans built by composer.
func NewService(db *bun.DB, composer *Composer, opts ...Option) *Service {
	s := &Service{
		db:       db,
		composer: composer,
		timeout:  DefaultQueryTimeout,
		defLimit: paginate.DefaultLimit,
		maxLimit: paginate.MaxLimit,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchPurchases returns one countless page of purchases matching criteria,
// newest first.
func (s *Service) SearchPurchases(ctx context.Context, criteria PurchaseCriteria, req paginate.Request) (paginate.ResultSet[Purchase], error) {
	req = req.Normalize(s.defLimit, s.maxLimit)
	req.Countless = true

	return run(ctx, s, "purchases", req, func(ctx context.Context, idb bun.IDB) (paginate.ResultSet[Purchase], error) {
		plan, err := s.composer.ComposePurchases(ctx, criteria)
		if err != nil {
			return paginate.ResultSet[Purchase]{}, err
		}
		if plan.Empty {
			return paginate.Empty[Purchase](req), nil
		}
		return paginate.Query[Purchase](ctx, plan.Apply(BasePurchaseQuery(idb)), req)
	})
}

// SearchUsers returns one counted page of users matching criteria, newest first.
func (s *Service) SearchUsers(ctx context.Context, criteria UserCriteria, req paginate.Request) (paginate.ResultSet[User], error) {
	req = req.Normalize(s.defLimit, s.maxLimit)
	req.Countless = false

	return run(ctx, s, "users", req, func(ctx context.Context, idb bun.IDB) (paginate.ResultSet[User], error) {
		plan, err := s.composer.ComposeUsers(ctx, criteria)
		if err != nil {
			return paginate.ResultSet[User]{}, err
		}
		if plan.Empty {
			return paginate.Empty[User](req), nil
		}
		return paginate.Query[User](ctx, plan.Apply(BaseUserQuery(idb)), req)
	})
}

func run[T any](ctx context.Context, s *Service, kind string, req paginate.Request, fn func(context.Context, bun.IDB) (paginate.ResultSet[T], error)) (paginate.ResultSet[T], error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rs paginate.ResultSet[T]
	err := s.withStatementTimeout(ctx, func(ctx context.Context, idb bun.IDB) error {
		var err error
		rs, err = fn(ctx, idb)
		return err
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.observe(kind, "ok", elapsed)
		s.logger.Debug("search completed",
			zap.String("kind", kind),
			zap.Int("page", req.Page),
			zap.Int("records", len(rs.Records)),
			zap.Bool("has_more", rs.HasMore),
			zap.Duration("elapsed", elapsed),
		)
		return rs, nil
	case isTimeout(ctx, err):
		s.observe(kind, "timeout", elapsed)
		s.logger.Warn("search timed out",
			zap.String("kind", kind),
			zap.Duration("timeout", s.timeout),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return paginate.ResultSet[T]{}, fmt.Errorf("%w after %s", ErrQueryTimeout, s.timeout)
	default:
		s.observe(kind, "error", elapsed)
		s.logger.Error("search failed", zap.String("kind", kind), zap.Error(err))
		return paginate.ResultSet[T]{}, fmt.Errorf("search %s: %w", kind, err)
	}
}

// withStatementTimeout runs fn on the database. On PostgreSQL it runs inside a
// read-only transaction whose statement_timeout matches the service budget,
// so the server aborts the query as well as the client.
func (s *Service) withStatementTimeout(ctx context.Context, fn func(context.Context, bun.IDB) error) error {
	if s.db.Dialect().Name() != dialect.PG {
		return fn(ctx, s.db)
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", s.timeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
		return fn(ctx, tx)
	})
}

func (s *Service) observe(kind, outcome string, elapsed time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveSearch(kind, outcome, elapsed)
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgQueryCanceled
}
