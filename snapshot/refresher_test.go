package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type report struct {
	Rows     []string  `json:"rows"`
	Total    int       `json:"total"`
	CachedAt time.Time `json:"cached_at"`
}

type recordedRun struct {
	job, outcome string
}

type mockRecorder struct {
	mu   sync.Mutex
	runs []recordedRun
}

func (m *mockRecorder) ObserveRefresh(job, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, recordedRun{job, outcome})
}

func (m *mockRecorder) outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.runs))
	for i, r := range m.runs {
		out[i] = r.outcome
	}
	return out
}

// steppingClock returns a later time on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestRefresherIdempotentUnderNoNewData(t *testing.T) {
	store := NewMemoryStore()
	clock := steppingClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Minute)
	compute := func(context.Context) (report, error) {
		return report{Rows: []string{"a", "b"}, Total: 2, CachedAt: clock()}, nil
	}

	r := NewRefresher("report", compute, NewPublisher[report](store, "report:data"))
	reader := NewReader[report](store, "report:data")
	ctx := context.Background()

	var docs []report
	for range 2 {
		outcome, err := r.Run(ctx)
		if err != nil || outcome != OutcomePublished {
			t.Fatalf("Run() = %v, %v; want published", outcome, err)
		}
		doc, found, err := reader.Read(ctx)
		if err != nil || !found {
			t.Fatalf("Read() found=%v err=%v", found, err)
		}
		docs = append(docs, doc)
	}

	if docs[0].Total != docs[1].Total || len(docs[0].Rows) != len(docs[1].Rows) {
		t.Errorf("documents differ in content: %+v vs %+v", docs[0], docs[1])
	}
	if !docs[1].CachedAt.After(docs[0].CachedAt) {
		t.Errorf("cached_at did not advance: %v then %v", docs[0].CachedAt, docs[1].CachedAt)
	}
}

func TestRefresherFailureKeepsPreviousSnapshot(t *testing.T) {
	store := NewMemoryStore()
	fail := false
	compute := func(context.Context) (report, error) {
		if fail {
			return report{Rows: []string{"partial"}}, errors.New("scan aborted")
		}
		return report{Rows: []string{"good"}, Total: 1}, nil
	}

	rec := &mockRecorder{}
	r := NewRefresher("report", compute, NewPublisher[report](store, "k"), WithRecorder(rec))
	ctx := context.Background()

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	before, _, _ := store.Get(ctx, "k")

	fail = true
	outcome, err := r.Run(ctx)
	if outcome != OutcomeFailed || err == nil {
		t.Fatalf("Run() = %v, %v; want failed with error", outcome, err)
	}

	after, _, _ := store.Get(ctx, "k")
	if string(after) != string(before) {
		t.Errorf("snapshot changed after a failed run:\nbefore %s\nafter  %s", before, after)
	}
	if got := rec.outcomes(); len(got) != 2 || got[0] != "published" || got[1] != "failed" {
		t.Errorf("recorded outcomes = %v", got)
	}
}

func TestRefresherTimeout(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Set(context.Background(), "k", []byte(`{"rows":["old"],"total":1}`), 0)

	compute := func(ctx context.Context) (report, error) {
		<-ctx.Done()
		return report{}, ctx.Err()
	}
	r := NewRefresher("slow", compute, NewPublisher[report](store, "k"), WithMaxDuration(20*time.Millisecond))

	outcome, err := r.Run(context.Background())
	if outcome != OutcomeFailed || !errors.Is(err, ErrComputeTimeout) {
		t.Fatalf("Run() = %v, %v; want failed with ErrComputeTimeout", outcome, err)
	}

	doc, found, err := NewReader[report](store, "k").Read(context.Background())
	if err != nil || !found || doc.Rows[0] != "old" {
		t.Errorf("previous snapshot not intact: %+v found=%v err=%v", doc, found, err)
	}
	if r.State() != StateIdle {
		t.Errorf("State() = %v after timeout, want idle", r.State())
	}
}

func TestRefresherIgnoringCancellationDoesNotPublishLate(t *testing.T) {
	store := NewMemoryStore()
	compute := func(context.Context) (report, error) {
		time.Sleep(30 * time.Millisecond)
		return report{Rows: []string{"late"}}, nil
	}
	r := NewRefresher("stubborn", compute, NewPublisher[report](store, "k"), WithMaxDuration(5*time.Millisecond))

	if outcome, _ := r.Run(context.Background()); outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", outcome)
	}
	if _, found, _ := store.Get(context.Background(), "k"); found {
		t.Error("a late document was published")
	}
}

func TestRefresherSkipsWhileRunning(t *testing.T) {
	store := NewMemoryStore()
	started := make(chan struct{})
	unblock := make(chan struct{})
	compute := func(context.Context) (report, error) {
		close(started)
		<-unblock
		return report{Total: 1}, nil
	}

	rec := &mockRecorder{}
	r := NewRefresher("report", compute, NewPublisher[report](store, "k"), WithRecorder(rec))

	done := make(chan Outcome)
	go func() {
		outcome, _ := r.Run(context.Background())
		done <- outcome
	}()

	<-started
	if r.State() != StateComputing {
		t.Errorf("State() = %v during computation, want computing", r.State())
	}

	outcome, err := r.Run(context.Background())
	if outcome != OutcomeSkipped || err != nil {
		t.Errorf("concurrent Run() = %v, %v; want skipped nil", outcome, err)
	}

	close(unblock)
	if got := <-done; got != OutcomePublished {
		t.Errorf("first Run() = %v, want published", got)
	}
	if r.State() != StateIdle {
		t.Errorf("State() = %v after run, want idle", r.State())
	}
	if _, ok := r.LastPublished(); !ok {
		t.Error("LastPublished() not set after a successful run")
	}
	if got := rec.outcomes(); len(got) != 2 || got[0] != "skipped" {
		t.Errorf("recorded outcomes = %v, want skipped then published", got)
	}
}

func TestRefresherSharedRedisLockAcrossInstances(t *testing.T) {
	_, client := newRedisClient(t)
	locker := NewRedisLocker(client, "lock:", time.Minute)
	store := NewRedisStore(client)

	started := make(chan struct{})
	unblock := make(chan struct{})
	slow := NewRefresher("report", func(context.Context) (report, error) {
		close(started)
		<-unblock
		return report{Total: 1}, nil
	}, NewPublisher[report](store, "k"), WithLocker(locker))

	fast := NewRefresher("report", func(context.Context) (report, error) {
		return report{Total: 2}, nil
	}, NewPublisher[report](store, "k"), WithLocker(locker))

	done := make(chan struct{})
	go func() {
		_, _ = slow.Run(context.Background())
		close(done)
	}()

	<-started
	if outcome, err := fast.Run(context.Background()); outcome != OutcomeSkipped || err != nil {
		t.Errorf("second instance Run() = %v, %v; want skipped", outcome, err)
	}
	close(unblock)
	<-done

	if outcome, err := fast.Run(context.Background()); outcome != OutcomePublished || err != nil {
		t.Errorf("Run() after release = %v, %v; want published", outcome, err)
	}
}

func TestRefresherPublishError(t *testing.T) {
	r := NewRefresher("report", func(context.Context) (report, error) {
		return report{}, nil
	}, NewPublisher[report](failingStore{}, "k"))

	outcome, err := r.Run(context.Background())
	if outcome != OutcomeFailed || err == nil {
		t.Errorf("Run() = %v, %v; want failed", outcome, err)
	}
	if _, ok := r.LastPublished(); ok {
		t.Error("LastPublished() set after a failed publish")
	}
}

func TestReaderNotYetComputed(t *testing.T) {
	doc, found, err := NewReader[report](NewMemoryStore(), "absent").Read(context.Background())
	if err != nil || found {
		t.Fatalf("Read() found=%v err=%v, want false nil", found, err)
	}
	if doc.Rows != nil || doc.Total != 0 {
		t.Errorf("Read() doc = %+v, want zero", doc)
	}
}

func TestReaderCorruptDocument(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Set(context.Background(), "k", []byte("{not json"), 0)

	if _, found, err := NewReader[report](store, "k").Read(context.Background()); err == nil || found {
		t.Errorf("Read() found=%v err=%v, want a decode error", found, err)
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateComputing.String() != "computing" {
		t.Error("unexpected state names")
	}
	if State(9).String() != "state(9)" {
		t.Errorf("State(9) = %q", State(9).String())
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store unavailable")
}
func (failingStore) Delete(context.Context, string) error { return nil }
