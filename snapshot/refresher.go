package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrComputeTimeout is returned when a computation exceeds MaxDuration.
var ErrComputeTimeout = errors.New("snapshot: computation timed out")

// DefaultMaxDuration bounds one computation.
const DefaultMaxDuration = 5 * time.Minute

// Outcome is the result of one Run.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
)

// State is what a Refresher is doing right now.
type State int32

const (
	StateIdle State = iota
	StateComputing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ComputeFunc builds a complete document. It must honor ctx cancellation.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// Recorder receives one observation per Run.
type Recorder interface {
	ObserveRefresh(job, outcome string, elapsed time.Duration)
}

type refresherOptions struct {
	locker      Locker
	maxDuration time.Duration
	logger      *zap.Logger
	recorder    Recorder
	now         func() time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*refresherOptions)

// WithLocker sets the lock shared by runs of the same name. The default is a
// LocalLocker private to the Refresher.
func WithLocker(l Locker) RefresherOption {
	return func(o *refresherOptions) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithMaxDuration bounds each computation.
func WithMaxDuration(d time.Duration) RefresherOption {
	return func(o *refresherOptions) {
		if d > 0 {
			o.maxDuration = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RefresherOption {
	return func(o *refresherOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) RefresherOption {
	return func(o *refresherOptions) {
		o.recorder = r
	}
}

// WithClock replaces time.Now for elapsed-time and last-published bookkeeping.
func WithClock(now func() time.Time) RefresherOption {
	return func(o *refresherOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Refresher recomputes a document and publishes it.
//
// Each Run moves Idle -> Computing -> Idle. The document is published only
// after ComputeFunc returns successfully within MaxDuration; a failed or
// timed-out run leaves the previously published document untouched. A Run
// that cannot take the lock returns OutcomeSkipped immediately.
type Refresher[T any] struct {
	name      string
	compute   ComputeFunc[T]
	publisher *Publisher[T]
	opts      refresherOptions

	state         atomic.Int32
	lastPublished atomic.Pointer[time.Time]
}

// NewRefresher returns a Refresher named name.
func NewRefresher[T any](name string, compute ComputeFunc[T], publisher *Publisher[T], opts ...RefresherOption) *Refresher[T] {
	o := refresherOptions{
		maxDuration: DefaultMaxDuration,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locker == nil {
		o.locker = NewLocalLocker()
	}

	return &Refresher[T]{
		name:      name,
		compute:   compute,
		publisher: publisher,
		opts:      o,
	}
}

// Name returns the refresher name, also used as its lock name.
func (r *Refresher[T]) Name() string {
	return r.name
}

// State returns the current state.
func (r *Refresher[T]) State() State {
	return State(r.state.Load())
}

// LastPublished returns when this Refresher last published, if ever.
func (r *Refresher[T]) LastPublished() (time.Time, bool) {
	t := r.lastPublished.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// Run performs one refresh.
func (r *Refresher[T]) Run(ctx context.Context) (Outcome, error) {
	log := r.opts.logger.With(zap.String("job", r.name))

	release, ok, err := r.opts.locker.TryLock(ctx, r.name)
	if err != nil {
		r.observe(OutcomeFailed, 0)
		log.Error("snapshot lock failed", zap.Error(err))
		return OutcomeFailed, fmt.Errorf("snapshot %s: %w", r.name, err)
	}
	if !ok {
		r.observe(OutcomeSkipped, 0)
		log.Info("snapshot refresh skipped, previous run still in progress")
		return OutcomeSkipped, nil
	}
	defer release()

	r.state.Store(int32(StateComputing))
	defer r.state.Store(int32(StateIdle))

	start := r.opts.now()
	doc, err := r.computeBounded(ctx)
	elapsed := r.opts.now().Sub(start)
	if err != nil {
		r.observe(OutcomeFailed, elapsed)
		log.Error("snapshot computation failed, keeping previous snapshot",
			zap.Duration("elapsed", elapsed),
			zap.Duration("max_duration", r.opts.maxDuration),
			zap.Error(err),
		)
		return OutcomeFailed, fmt.Errorf("snapshot %s: %w", r.name, err)
	}

	if err := r.publisher.Publish(ctx, doc); err != nil {
		r.observe(OutcomeFailed, elapsed)
		log.Error("snapshot publish failed", zap.Error(err))
		return OutcomeFailed, fmt.Errorf("snapshot %s: %w", r.name, err)
	}

	published := r.opts.now()
	r.lastPublished.Store(&published)
	r.observe(OutcomePublished, elapsed)
	log.Info("snapshot published",
		zap.String("key", r.publisher.Key()),
		zap.Duration("elapsed", elapsed),
	)
	return OutcomePublished, nil
}

func (r *Refresher[T]) computeBounded(ctx context.Context) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, r.opts.maxDuration)
	defer cancel()

	doc, err := r.compute(cctx)
	if err == nil {
		// A computation that ignored cancellation still must not publish late.
		err = cctx.Err()
	}
	if err != nil {
		var zero T
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%w after %s: %w", ErrComputeTimeout, r.opts.maxDuration, err)
		}
		return zero, err
	}
	return doc, nil
}

func (r *Refresher[T]) observe(outcome Outcome, elapsed time.Duration) {
	if r.opts.recorder != nil {
		r.opts.recorder.ObserveRefresh(r.name, string(outcome), elapsed)
	}
}
