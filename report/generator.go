// Package report exports per-state sales totals for one country as CSV.
//
// Reports run asynchronously. Enqueue stores a pending Status and returns at
// once; the caller polls Status until the job completes and then reads the
// CSV. Identical requests submitted while one is still running share a job.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/cache"
	"github.com/goliatone/go-admin-search/snapshot"
)

var (
	// ErrInvalidRequest wraps validation failures from Enqueue.
	ErrInvalidRequest = errors.New("report: invalid request")

	// ErrNotFound is returned for unknown or expired report ids.
	ErrNotFound = errors.New("report: not found")

	// ErrNotReady is returned when the CSV of an unfinished report is requested.
	ErrNotReady = errors.New("report: not ready")

	// ErrClosed is returned by Enqueue once the Generator has been closed.
	ErrClosed = errors.New("report: generator closed")
)

// State is the lifecycle position of a report job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status describes one report job.
type Status struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	Request    Request    `json:"request"`
	Key        string     `json:"key,omitempty"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Done reports whether the job has finished, successfully or not.
func (s Status) Done() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// StatusKey returns the store key of a job's status document.
func StatusKey(id string) string {
	return "sales_report:" + id
}

// CSVKey returns the store key of a job's CSV output.
func CSVKey(id string) string {
	return "sales_report:" + id + ":csv"
}

// Config controls report retention and run time.
type Config struct {
	Retention   time.Duration `yaml:"retention"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

// DefaultConfig keeps reports for a week and bounds each run to ten minutes.
func DefaultConfig() Config {
	return Config{
		Retention:   7 * 24 * time.Hour,
		MaxDuration: 10 * time.Minute,
	}
}

// Recorder receives the final state of every job.
type Recorder interface {
	ObserveReport(state string)
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Generator) {
		g.recorder = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithKeySerializer sets the serializer used to detect duplicate requests.
func WithKeySerializer(k cache.KeySerializer) Option {
	return func(g *Generator) {
		if k != nil {
			g.keys = k
		}
	}
}

type aggregateFunc func(ctx context.Context, idb bun.IDB, req Request) ([]Row, error)

// Generator runs report jobs in the background.
type Generator struct {
	db       bun.IDB
	store    snapshot.Store
	cfg      Config
	keys     cache.KeySerializer
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time

	aggregate aggregateFunc
	inflight  *xsync.MapOf[string, Status]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex // guards closed and wg.Add
	closed bool
}

// NewGenerator returns a Generator reading from db and writing to store.
func NewGenerator(db bun.IDB, store snapshot.Store, cfg Config, opts ...Option) *Generator {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultConfig().MaxDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Generator{
		db:        db,
		store:     store,
		cfg:       cfg,
		keys:      cache.NewDefaultKeySerializer(),
		logger:    zap.NewNop(),
		now:       time.Now,
		aggregate: Aggregate,
		inflight:  xsync.NewMapOf[string, Status](),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enqueue validates req and starts a job for it. While an identical request
// is still running its current status is returned instead of starting
// another job. After Close it returns ErrClosed.
func (g *Generator) Enqueue(ctx context.Context, req Request) (Status, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if !g.acquire() {
		return Status{}, ErrClosed
	}

	status := Status{
		ID:        uuid.NewString(),
		State:     StatePending,
		Request:   req,
		CreatedAt: g.now().UTC(),
	}

	dedupeKey := g.keys.SerializeKey("sales_report", req)
	if running, loaded := g.inflight.LoadOrStore(dedupeKey, status); loaded {
		g.wg.Done()
		g.logger.Info("sales report already running",
			zap.String("report_id", running.ID),
			zap.String("country", req.CountryCode),
		)
		// The pending status may not be stored yet.
		if current, err := g.Status(ctx, running.ID); err == nil {
			return current, nil
		}
		return running, nil
	}

	if err := g.putStatus(ctx, status); err != nil {
		g.inflight.Delete(dedupeKey)
		g.wg.Done()
		return Status{}, err
	}

	go func() {
		defer g.wg.Done()
		defer g.inflight.Delete(dedupeKey)
		g.run(status)
	}()

	g.logger.Info("sales report enqueued",
		zap.String("report_id", status.ID),
		zap.String("country", req.CountryCode),
		zap.String("start_date", req.StartDate),
		zap.String("end_date", req.EndDate),
	)
	return status, nil
}

func (g *Generator) run(status Status) {
	log := g.logger.With(zap.String("report_id", status.ID))
	ctx, cancel := context.WithTimeout(g.ctx, g.cfg.MaxDuration)
	defer cancel()

	status.State = StateRunning
	if err := g.putStatus(ctx, status); err != nil {
		log.Warn("sales report status update failed", zap.Error(err))
	}

	start := g.now()
	rows, err := g.build(ctx, status)
	finished := g.now().UTC()
	status.FinishedAt = &finished

	if err != nil {
		status.State = StateFailed
		status.Error = err.Error()
		log.Error("sales report failed", zap.Error(err), zap.Duration("elapsed", finished.Sub(start)))
	} else {
		status.State = StateCompleted
		status.Key = CSVKey(status.ID)
		status.Rows = rows
		log.Info("sales report completed", zap.Int("rows", rows), zap.Duration("elapsed", finished.Sub(start)))
	}

	// The final status must land even when the run itself timed out.
	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()
	if err := g.putStatus(wctx, status); err != nil {
		log.Error("sales report final status lost", zap.Error(err))
	}

	if g.recorder != nil {
		g.recorder.ObserveReport(string(status.State))
	}
}

func (g *Generator) build(ctx context.Context, status Status) (int, error) {
	rows, err := g.aggregate(ctx, g.db, status.Request)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return 0, fmt.Errorf("report: render csv: %w", err)
	}
	if err := g.store.Set(ctx, CSVKey(status.ID), buf.Bytes(), g.cfg.Retention); err != nil {
		return 0, fmt.Errorf("report: store csv: %w", err)
	}
	return len(rows), nil
}

func (g *Generator) putStatus(ctx context.Context, status Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("report: encode status: %w", err)
	}
	if err := g.store.Set(ctx, StatusKey(status.ID), data, g.cfg.Retention); err != nil {
		return fmt.Errorf("report: store status: %w", err)
	}
	return nil
}

// Status returns the stored status of job id.
func (g *Generator) Status(ctx context.Context, id string) (Status, error) {
	data, found, err := g.store.Get(ctx, StatusKey(id))
	if err != nil {
		return Status{}, fmt.Errorf("report: load status: %w", err)
	}
	if !found {
		return Status{}, ErrNotFound
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, fmt.Errorf("report: decode status: %w", err)
	}
	return status, nil
}

// CSV returns the output of a completed job.
func (g *Generator) CSV(ctx context.Context, id string) ([]byte, error) {
	status, err := g.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if status.State != StateCompleted {
		return nil, ErrNotReady
	}

	data, found, err := g.store.Get(ctx, CSVKey(id))
	if err != nil {
		return nil, fmt.Errorf("report: load csv: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return data, nil
}

// Wait blocks until every started job has finished.
func (g *Generator) Wait() {
	g.wg.Wait()
}

// acquire reserves a job slot on the wait group unless the Generator is closed.
func (g *Generator) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

// Close rejects new jobs, cancels running ones and waits for them to record
// their final status. Calling Close more than once is safe.
func (g *Generator) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
	return nil
}
