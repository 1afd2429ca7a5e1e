package checkpoint

import (
	"context"
	"time"

	"StockCast/pkg/cache"
	"StockCast/pkg/logger"
)

const listCacheKey = "checkpoints:list"

// Catalog serves checkpoint metadata listings through a cache. Directory
// scans are cheap but the model listing endpoint is polled by dashboards, so
// results are held for a short TTL and invalidated on writes and deletes.
type Catalog struct {
	store *FileStore
	cache cache.Store
	ttl   time.Duration
	log   *logger.Logger
}

func NewCatalog(store *FileStore, c cache.Store, ttl time.Duration, log *logger.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	return &Catalog{store: store, cache: c, ttl: ttl, log: log}
}

// List returns all checkpoint metadata, newest first, consulting the cache
// before scanning the checkpoint directory.
func (c *Catalog) List(ctx context.Context) ([]Meta, error) {
	if c.cache != nil {
		var cached []Meta
		if err := c.cache.Get(ctx, listCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	metas, err := c.store.List()
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, listCacheKey, metas, c.ttl); err != nil {
			c.log.Warn("checkpoint list cache write failed", logger.Error(err))
		}
	}
	return metas, nil
}

// Get returns metadata for one checkpoint, bypassing the cache.
func (c *Catalog) Get(fingerprint string) (Meta, error) {
	return c.store.Get(fingerprint)
}

// Delete removes a checkpoint and invalidates the cached listing.
func (c *Catalog) Delete(ctx context.Context, fingerprint string) error {
	if err := c.store.Delete(fingerprint); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops the cached listing. Called after a new checkpoint is
// written so the next List reflects it.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, listCacheKey); err != nil {
		c.log.Warn("checkpoint list cache invalidation failed", logger.Error(err))
	}
}
