// Package lookupcache caches the foreign lookups made while composing admin
// searches.
//
// Filters such as "creator email" and "license key" are resolved to ids
// before the purchase query is built. The same handful of values tend to be
// searched repeatedly while an admin works a support ticket, so CachedDirectory
// wraps any search.Directory with a read-through cache:
//
//	dir := search.NewDirectory(db)
//	svc, _ := cache.NewCacheService(cache.DefaultConfig())
//	cached := lookupcache.New(dir, svc, cache.NewDefaultKeySerializer())
//	composer := search.NewComposer(cached, search.DefaultTolerances())
//
// # Misses
//
// A lookup with no match is cached as a miss and reported as
// search.ErrNotFound, which the composer turns into an explicitly empty
// result. The miss expires with the cache TTL.
//
// # Keys and invalidation
//
// Keys are namespaced by the wrapped directory type:
//
//	lookup_db_directory::SellerIDByEmail::seller@example.com
//
// Every key handed to the cache is tracked so InvalidateSeller,
// InvalidateLicense and InvalidateAll can remove entries by prefix.
//
// Errors other than not-found are returned unchanged and are never cached.
package lookupcache
