// Package cache provides the read-through caching abstraction used by the
// admin search lookups, plus deterministic key serialization.
//
// # Overview
//
//   - CacheService: read-through GetOrFetch plus Delete/DeleteByPrefix invalidation
//   - GetOrFetch: generic, type-safe wrapper around CacheService
//   - KeySerializer: builds stable cache keys from a method name and arguments
//
// The default CacheService is backed by sturdyc (see internal/cacheinfra) and
// remembers misses: a FetchFn returning ErrNotFound is cached as a missing
// record, so an admin repeatedly filtering by an unknown creator email does
// not query the users table on every page.
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("SellerIDByEmail", email)
//
//	id, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) (int64, error) {
//		return directory.SellerIDByEmail(ctx, email)
//	})
//	if errors.Is(err, cache.ErrNotFound) {
//		// fail closed: the search matches nothing
//	}
//
// # Key Serialization Strategy
//
// Keys depend only on argument values, so they are valid across processes:
//
//   - Pointers are dereferenced; nil pointers serialize as "nil"
//   - time.Time is rendered in UTC RFC3339Nano
//   - Structs implementing fmt.Stringer (decimals) use String()
//   - Other structs list exported, non-nil fields as name:value
//   - Maps are sorted by serialized key
//   - Functions and channels have no stable value and serialize as their type only
package cache
