package embedbackend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_MemoryRoundTrip(t *testing.T) {
	c := NewCache(t.TempDir(), 10, nil, 0)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Put(ctx, "k1", []float32{1, 2, 3})
	v, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)
}

func TestCache_DiskPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c1 := NewCache(dir, 10, nil, 0)
	c1.Put(ctx, "k1", []float32{4, 5, 6})

	c2 := NewCache(dir, 10, nil, 0)
	v, ok := c2.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []float32{4, 5, 6}, v)
}

func TestCache_EvictsLRU(t *testing.T) {
	c := NewCache("", 2, nil, 0)
	ctx := context.Background()
	c.Put(ctx, "a", []float32{1})
	c.Put(ctx, "b", []float32{2})
	c.Put(ctx, "c", []float32{3})

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestRateLimiter_AdmitsUpToLimitThenBlocks(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDetectDialect_Embed(t *testing.T) {
	assert.Equal(t, "openai", detectDialect("", "text-embedding-3-small"))
	assert.Equal(t, "google", detectDialect("https://generativelanguage.googleapis.com", ""))
}
