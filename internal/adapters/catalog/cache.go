package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/model"
)

// DefaultCacheTTL is how long a resolved granule is served from cache.
const DefaultCacheTTL = 6 * time.Hour

const cacheKeyPrefix = "sarbatch:granule:"

// CachedClientOptions configures a CachedClient.
type CachedClientOptions struct {
	Next   core.CatalogClient
	Cache  core.CacheRepository
	TTL    time.Duration
	Logger *slog.Logger
}

// CachedClient serves known granules from a cache and asks Next only for the rest. Only
// found granules are cached, so a scene that appears later is picked up on the next lookup.
// Cache failures degrade to a direct lookup.
type CachedClient struct {
	next   core.CatalogClient
	cache  core.CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

var _ core.CatalogClient = (*CachedClient)(nil)

// NewCachedClient wraps opts.Next with opts.Cache.
func NewCachedClient(opts CachedClientOptions) *CachedClient {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClient{
		next:   opts.Next,
		cache:  opts.Cache,
		ttl:    ttl,
		logger: logger.With("component", "catalog_cache"),
	}
}

// Lookup implements core.CatalogClient.
func (c *CachedClient) Lookup(ctx context.Context, names []string) ([]model.Granule, error) {
	names = distinct(names)
	if len(names) == 0 {
		return nil, nil
	}

	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = cacheKeyPrefix + n
	}
	hits, err := c.cache.GetMany(ctx, keys)
	if err != nil {
		c.logger.WarnContext(ctx, "granule cache read failed", "error", err)
		hits = nil
	}

	var (
		out    []model.Granule
		missed []string
	)
	for i, n := range names {
		raw, ok := hits[keys[i]]
		if !ok {
			missed = append(missed, n)
			continue
		}
		var g model.Granule
		if jerr := json.Unmarshal(raw, &g); jerr != nil || g.Name != n {
			missed = append(missed, n)
			continue
		}
		out = append(out, g)
	}
	if len(missed) == 0 {
		return out, nil
	}

	fetched, err := c.next.Lookup(ctx, missed)
	if err != nil {
		return nil, err
	}
	out = append(out, fetched...)

	entries := make(map[string][]byte, len(fetched))
	for _, g := range fetched {
		raw, jerr := json.Marshal(g)
		if jerr != nil {
			continue
		}
		entries[cacheKeyPrefix+g.Name] = raw
	}
	if err = c.cache.SetMany(ctx, entries, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "granule cache write failed", "error", err)
	}
	c.logger.DebugContext(ctx, "granule cache", "hits", len(names)-len(missed), "misses", len(missed))
	return out, nil
}
