// Package scheduler triggers registered jobs on fixed intervals.
//
// Each job has at most one invocation in flight. A tick that finds the
// previous invocation still running is skipped and logged, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnknownJob is returned for names that were never registered.
	ErrUnknownJob = errors.New("scheduler: unknown job")

	// ErrStarted is returned by Register and Start once the engine runs.
	ErrStarted = errors.New("scheduler: already started")
)

// JobFunc is one invocation of a job.
type JobFunc func(ctx context.Context) error

// Stats counts a job's invocations.
type Stats struct {
	Runs     int64
	Failures int64
	Skipped  int64
	LastRun  time.Time
	LastErr  error
}

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc

	running atomic.Bool

	mu    sync.Mutex
	stats Stats
}

// Engine owns the job tickers.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns an engine with no jobs.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		now:    time.Now,
		jobs:   make(map[string]*job),
	}
}

// Register adds a job that runs every interval once the engine starts.
func (e *Engine) Register(name string, interval time.Duration, fn JobFunc) error {
	if name == "" || fn == nil {
		return errors.New("scheduler: job needs a name and a function")
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler: job %s: interval must be positive", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrStarted
	}
	if _, exists := e.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %s registered twice", name)
	}
	e.jobs[name] = &job{name: name, interval: interval, fn: fn}
	e.order = append(e.order, name)
	return nil
}

// Jobs returns the registered job names in registration order.
func (e *Engine) Jobs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Start launches one ticker per job. Jobs stop when ctx is done or Stop is
// called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrStarted
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	for _, name := range e.order {
		j := e.jobs[name]
		e.wg.Add(1)
		go e.loop(ctx, j)
	}

	e.logger.Info("scheduler started", zap.Strings("jobs", e.order))
	return nil
}

func (e *Engine) loop(ctx context.Context, j *job) {
	defer e.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !j.running.CompareAndSwap(false, true) {
				e.skip(j)
				continue
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer j.running.Store(false)
				_ = e.invoke(ctx, j)
			}()
		}
	}
}

// Stop cancels the tickers and waits for in-flight invocations.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.logger.Info("scheduler stopped")
}

// RunNow invokes name synchronously. ran is false when an invocation was
// already in flight.
func (e *Engine) RunNow(ctx context.Context, name string) (ran bool, err error) {
	e.mu.Lock()
	j, ok := e.jobs[name]
	e.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	if !j.running.CompareAndSwap(false, true) {
		e.skip(j)
		return false, nil
	}
	defer j.running.Store(false)

	return true, e.invoke(ctx, j)
}

// Stats returns the counters of name.
func (e *Engine) Stats(name string) (Stats, bool) {
	e.mu.Lock()
	j, ok := e.jobs[name]
	e.mu.Unlock()
	if !ok {
		return Stats{}, false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats, true
}

func (e *Engine) invoke(ctx context.Context, j *job) error {
	start := e.now()
	err := j.fn(ctx)
	elapsed := e.now().Sub(start)

	j.mu.Lock()
	j.stats.Runs++
	j.stats.LastRun = start
	j.stats.LastErr = err
	if err != nil {
		j.stats.Failures++
	}
	j.mu.Unlock()

	if err != nil {
		e.logger.Error("scheduled job failed",
			zap.String("job", j.name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}
	e.logger.Debug("scheduled job finished",
		zap.String("job", j.name),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (e *Engine) skip(j *job) {
	j.mu.Lock()
	j.stats.Skipped++
	j.mu.Unlock()

	e.logger.Warn("scheduled job skipped, previous run still in progress", zap.String("job", j.name))
}
