package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiresEntries(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "prof-1", "commission:prof-1:svc-1", "40", time.Minute))

	var got string
	found, err := c.Get(ctx, "commission:prof-1:svc-1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "40", got)

	now = now.Add(time.Minute)
	found, err = c.Get(ctx, "commission:prof-1:svc-1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheInvalidatesOnlyOwner(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "prof-1", "a", 1, 0))
	require.NoError(t, c.Set(ctx, "prof-1", "b", 2, 0))
	require.NoError(t, c.Set(ctx, "prof-2", "c", 3, 0))

	require.NoError(t, c.InvalidateOwner(ctx, "prof-1"))

	var v int
	found, _ := c.Get(ctx, "a", &v)
	assert.False(t, found)
	found, _ = c.Get(ctx, "b", &v)
	assert.False(t, found)
	found, _ = c.Get(ctx, "c", &v)
	assert.True(t, found)
	assert.Equal(t, 3, v)
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c CatalogCache = NoopCache{}
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, OwnerCatalog, "k", 1, time.Minute))

	var v int
	found, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
}
