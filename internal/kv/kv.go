// Package kv is the external key-value store used for sessions and
// rate-limit counters.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: not found")

// Store is a shared key-value store with per-key TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value with a TTL; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr atomically increments the integer at key and returns the new value.
	// The TTL is applied only when the increment created the key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}
