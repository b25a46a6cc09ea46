package lookupcache

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/goliatone/go-admin-search/cache"
	"github.com/goliatone/go-admin-search/search"
)

// Interface assertion to ensure CachedDirectory can stand in for search.Directory
var _ search.Directory = (*CachedDirectory)(nil)

const (
	methodSellerByEmail   = "SellerIDByEmail"
	methodPurchaseByLicen = "PurchaseIDByLicenseKey"
)

// CachedDirectory decorates a search.Directory with read-through caching.
// Misses are cached too, so repeated searches for an unknown creator email
// or license key do not reach the database until the entry expires.
type CachedDirectory struct {
	base          search.Directory
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	namespace     string
}

// New wraps base with caching
func New(base search.Directory, cacheService cache.CacheService, keySerializer cache.KeySerializer) *CachedDirectory {
	return &CachedDirectory{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		namespace:     namespaceFor(base),
	}
}

// SellerIDByEmail resolves a seller id, caching hits and misses
func (c *CachedDirectory) SellerIDByEmail(ctx context.Context, email string) (int64, error) {
	email = normalizeEmail(email)
	key := c.key(methodSellerByEmail, email)
	return c.lookup(ctx, key, func(ctx context.Context) (int64, error) {
		return c.base.SellerIDByEmail(ctx, email)
	})
}

// PurchaseIDByLicenseKey resolves the purchase behind a license key, caching hits and misses
func (c *CachedDirectory) PurchaseIDByLicenseKey(ctx context.Context, licenseKey string) (int64, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	key := c.key(methodPurchaseByLicen, licenseKey)
	return c.lookup(ctx, key, func(ctx context.Context) (int64, error) {
		return c.base.PurchaseIDByLicenseKey(ctx, licenseKey)
	})
}

// InvalidateSeller drops the cached entry for email, e.g. after the account
// changes its address.
func (c *CachedDirectory) InvalidateSeller(ctx context.Context, email string) error {
	return c.invalidateKey(ctx, c.key(methodSellerByEmail, normalizeEmail(email)))
}

// InvalidateLicense drops the cached entry for a license key.
func (c *CachedDirectory) InvalidateLicense(ctx context.Context, licenseKey string) error {
	return c.invalidateKey(ctx, c.key(methodPurchaseByLicen, strings.TrimSpace(licenseKey)))
}

// InvalidateAll drops every entry cached by this directory. The cache is
// the only record of which keys exist, so entries it has already evicted
// leave nothing behind.
func (c *CachedDirectory) InvalidateAll(ctx context.Context) error {
	return c.cache.DeleteByPrefix(ctx, c.namespace+cache.KeySeparator)
}

// Namespace is the key prefix shared by every entry of this directory.
func (c *CachedDirectory) Namespace() string {
	return c.namespace
}

func (c *CachedDirectory) lookup(ctx context.Context, key string, fetch cache.FetchFn[int64]) (int64, error) {
	id, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (int64, error) {
		id, err := fetch(ctx)
		if errors.Is(err, search.ErrNotFound) {
			return 0, cache.ErrNotFound
		}
		return id, err
	})
	if errors.Is(err, cache.ErrNotFound) {
		return 0, search.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (c *CachedDirectory) key(method string, args ...any) string {
	return c.keySerializer.SerializeKey(c.namespace+cache.KeySeparator+method, args...)
}

func (c *CachedDirectory) invalidateKey(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, key)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func namespaceFor(base search.Directory) string {
	t := reflect.TypeOf(base)
	if t == nil {
		return "lookup"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := toSnake(t.Name())
	if name == "" {
		return "lookup"
	}
	return "lookup_" + name
}
