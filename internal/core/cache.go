// Package core defines the ports between the sarbatch services and their storage, cache,
// and catalog adapters.
package core

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	// Get returns nil without error when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetMany returns the values of the keys that exist. Missing keys are omitted.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)

	// Set stores a value. A zero TTL means the key does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetMany stores every entry with the same TTL in one round trip.
	SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error

	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}
