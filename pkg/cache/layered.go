package cache

import (
	"context"
	"time"
)

// Layered is a two-level Store: an in-process Memory front and a shared
// Redis back. Writes go through to both; reads prefer memory.
type Layered struct {
	l1 *Memory
	l2 *Redis
}

// NewLayered builds a layered cache over an existing Redis store.
func NewLayered(redis *Redis, memSize int) *Layered {
	return &Layered{l1: NewMemory(memSize), l2: redis}
}

func (c *Layered) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, value, ttl)
	return nil
}

func (c *Layered) Get(ctx context.Context, key string, dest any) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	return c.l2.Get(ctx, key, dest)
}

func (c *Layered) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	return c.l2.Delete(ctx, keys...)
}

func (c *Layered) Close() error {
	_ = c.l1.Close()
	return c.l2.Close()
}
