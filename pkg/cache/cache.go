package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Store is the cache operations surface used for read-mostly data such as
// checkpoint listings. Values are JSON round-tripped, so dest in Get must be
// a pointer.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Key builds a namespaced cache key.
func Key(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key = fmt.Sprintf("%s:%s", key, p)
	}
	return key
}
