package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
)

// Locker grants at most one holder per name. TryLock never waits: ok is
// false when the name is already held. release is safe to call more than once.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// LocalLocker serializes holders within one process.
type LocalLocker struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: xsync.NewMapOf[string, *sync.Mutex]()}
}

// TryLock acquires name if it is free.
func (l *LocalLocker) TryLock(_ context.Context, name string) (func(), bool, error) {
	mu, _ := l.locks.LoadOrCompute(name, func() *sync.Mutex { return &sync.Mutex{} })
	if !mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(mu.Unlock) }, true, nil
}

// DefaultLockTTL bounds how long a crashed holder can block others.
const DefaultLockTTL = 15 * time.Minute

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes holders across processes sharing a Redis server.
// Each lock is a key set with NX and a TTL; the holder's token guards release.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLocker returns a locker storing keys as prefix+name. A non-positive
// ttl uses DefaultLockTTL.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// TryLock acquires name if no other holder has it.
func (l *RedisLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The caller's context may already be done when releasing.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// On failure the TTL frees the key.
			_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}
	return release, true, nil
}
