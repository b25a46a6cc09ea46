// Package snapshot publishes precomputed documents to a shared key-value
// store and refreshes them on demand.
//
// A snapshot lives under a single key and is always written whole: the
// Refresher builds the complete document in memory and then issues one Set.
// Readers either see the last published document or nothing at all, never
// a mix of two runs. An absent key means "not computed yet" and is reported
// as found=false rather than as an error.
//
// Refreshes are single-flight per name. A run that finds another run of the
// same name in progress is skipped, not queued. Use LocalLocker within one
// process and RedisLocker when several processes share the store.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Store is the key-value backend for snapshots.
type Store interface {
	// Get returns the value for key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set replaces the value for key. A zero ttl keeps the value until it is
	// overwritten or deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	entries *xsync.MapOf[string, memoryEntry]
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: xsync.NewMapOf[string, memoryEntry](),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for expiry. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	now := s.clock()
	if entry.expired(now) {
		// A Set may have replaced the entry since the Load; only the
		// expired value is removed.
		entry, ok = s.entries.Compute(key, func(current memoryEntry, loaded bool) (memoryEntry, bool) {
			return current, !loaded || current.expired(now)
		})
		if !ok {
			return nil, false, nil
		}
	}
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}
	s.entries.Store(key, entry)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// Len returns the number of stored keys, including expired ones not yet read.
func (s *MemoryStore) Len() int {
	return s.entries.Size()
}
