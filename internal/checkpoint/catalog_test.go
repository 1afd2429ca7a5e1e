package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"StockCast/pkg/cache"
)

func newTestCatalog(t *testing.T) (*Catalog, *FileStore) {
	t.Helper()
	store := newTestStore(t)
	mem := cache.NewMemory(16)
	t.Cleanup(func() { _ = mem.Close() })
	return NewCatalog(store, mem, time.Minute, nil), store
}

func TestCatalogListServesFromCache(t *testing.T) {
	catalog, store := newTestCatalog(t)
	ctx := context.Background()

	tm := trainedFixture(t, "AAPL")
	require.NoError(t, store.Save(ctx, tm))

	metas, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	// A write that bypasses Invalidate is not visible until the TTL lapses.
	other := trainedFixture(t, "MSFT")
	require.NoError(t, store.Save(ctx, other))

	metas, err = catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	catalog.Invalidate(ctx)
	metas, err = catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
}

func TestCatalogDeleteInvalidates(t *testing.T) {
	catalog, store := newTestCatalog(t)
	ctx := context.Background()

	tm := trainedFixture(t, "AAPL")
	require.NoError(t, store.Save(ctx, tm))

	metas, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	require.NoError(t, catalog.Delete(ctx, tm.Fingerprint))

	metas, err = catalog.List(ctx)
	require.NoError(t, err)
	require.Empty(t, metas)

	require.ErrorIs(t, catalog.Delete(ctx, tm.Fingerprint), ErrNotFound)
}

func TestCatalogWorksWithoutCache(t *testing.T) {
	store := newTestStore(t)
	catalog := NewCatalog(store, nil, 0, nil)
	ctx := context.Background()

	tm := trainedFixture(t, "AAPL")
	require.NoError(t, store.Save(ctx, tm))

	metas, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	meta, err := catalog.Get(tm.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, "AAPL", meta.Symbol)

	catalog.Invalidate(ctx)
}
