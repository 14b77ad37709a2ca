package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/sarbatch/config"
	"github.com/target/sarbatch/internal/adapters/catalog"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/data"
)

// NewCatalogClient builds the HTTP catalog client and, when a Redis client is supplied,
// wraps it with the granule cache.
//
//nolint:ireturn // the cache decorator and the bare client are interchangeable.
func NewCatalogClient(cfg config.CatalogConfig, redisClient redis.UniversalClient, logger *slog.Logger) (core.CatalogClient, error) {
	client, err := catalog.NewClient(catalog.Options{
		BaseURL:    cfg.URL,
		Timeout:    cfg.Timeout,
		Attempts:   cfg.RetryAttempts,
		RetryDelay: cfg.RetryDelay,
		PageSize:   cfg.PageSize,
		Parallel:   cfg.Parallel,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create catalog client: %w", err)
	}
	if redisClient == nil {
		return client, nil
	}

	return catalog.NewCachedClient(catalog.CachedClientOptions{
		Next:   client,
		Cache:  data.NewRedisCacheRepo(redisClient),
		TTL:    cfg.CacheTTL,
		Logger: logger,
	}), nil
}
