package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartshopper/visearch/core"
)

func TestMemoryPutThenGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(8, 0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	value, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestMemoryMiss(t *testing.T) {
	c := NewMemory(8, 0)
	defer c.Close()

	_, ok := c.Get(context.Background(), "absent")
	assert.False(t, ok)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(8, 0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond))

	_, ok := c.Get(ctx, "k1")
	assert.True(t, ok)

	time.Sleep(25 * time.Millisecond)

	_, ok = c.Get(ctx, "k1")
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestMemoryOverwriteReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(8, 0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k1", []byte("old"), time.Minute))
	require.NoError(t, c.Set(ctx, "k1", []byte("new"), time.Minute))

	value, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), value)
	assert.Equal(t, int64(1), c.GetStats().Size)
}

func TestMemoryLRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, 0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.GetStats().Evictions)
}

func TestMemoryBackgroundCleanup(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(8, 10*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 5*time.Millisecond))

	assert.Eventually(t, func() bool {
		return c.GetStats().Size == 0
	}, time.Second, 10*time.Millisecond, "cleanup loop should sweep expired entries")
}

func TestEmbeddingKeyBinding(t *testing.T) {
	image := []byte{0xFF, 0xD8, 0xFF, 0x01, 0x02}

	k1 := EmbeddingKey(image, "clip-v1")
	k2 := EmbeddingKey(image, "clip-v1")
	assert.Equal(t, k1, k2, "same bytes and model must produce the same key")

	assert.NotEqual(t, k1, EmbeddingKey(image, "clip-v2"),
		"a model rollout must invalidate embedding keys")
	assert.NotEqual(t, k1, EmbeddingKey([]byte{0xFF, 0xD8, 0xFF, 0x01, 0x03}, "clip-v1"))
}

func TestResultKeyFingerprint(t *testing.T) {
	min := 10.0
	base := core.SearchRequest{TextQuery: "red shoes", TopK: 5}

	assert.Equal(t, ResultKey(base), ResultKey(base))

	variants := []core.SearchRequest{
		{TextQuery: "red shoes", TopK: 10},
		{TextQuery: "blue shoes", TopK: 5},
		{TextQuery: "red shoes", TopK: 5, Filters: core.Filters{Category: "shoes"}},
		{TextQuery: "red shoes", TopK: 5, Filters: core.Filters{MinPrice: &min}},
		{TextQuery: "red shoes", TopK: 5, ImageBytes: []byte{0xFF, 0xD8, 0xFF, 0x01}},
	}
	for _, v := range variants {
		assert.NotEqual(t, ResultKey(base), ResultKey(v), "request %+v should have a distinct fingerprint", v)
	}
}
