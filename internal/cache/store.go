// Package cache holds the shared key-value store the orchestrator writes
// through, plus the policy that derives keys and TTLs from market time.
package cache

import (
	"context"
	"time"
)

// Store is the narrow contract the orchestrator depends on. The cache is an
// optimization, never a source of truth: callers treat a Get error exactly
// like a miss, and swallow Set errors after logging them.
type Store interface {
	// Get returns the stored value and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key with a store-managed expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
