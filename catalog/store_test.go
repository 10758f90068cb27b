package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartshopper/visearch/core"
)

func sampleProduct(id string) core.Product {
	return core.Product{
		ID:       id,
		Name:     "sample " + id,
		Category: "shoes",
		Price:    59.99,
		InStock:  true,
		Embedding: &core.Embedding{
			Values:       []float32{0.1, 0.2, 0.3},
			ModelVersion: "clip-test-v1",
		},
	}
}

// runStoreTests exercises the Store contract against any backend
func runStoreTests(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Save and get.
	require.NoError(t, store.SaveProduct(ctx, sampleProduct("p1")))
	got, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	require.NotNil(t, got.Embedding)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding.Values)
	assert.Equal(t, "clip-test-v1", got.Embedding.ModelVersion)

	// Overwrite replaces wholesale.
	updated := sampleProduct("p1")
	updated.Price = 49.99
	require.NoError(t, store.SaveProduct(ctx, updated))
	got, err = store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 49.99, got.Price)

	// List.
	require.NoError(t, store.SaveProduct(ctx, sampleProduct("p2")))
	products, err := store.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	// Delete.
	require.NoError(t, store.DeleteProduct(ctx, "p2"))
	_, err = store.GetProduct(ctx, "p2")
	assert.ErrorIs(t, err, core.ErrProductNotFound)
	assert.ErrorIs(t, store.DeleteProduct(ctx, "p2"), core.ErrProductNotFound)

	// Missing product.
	_, err = store.GetProduct(ctx, "absent")
	assert.ErrorIs(t, err, core.ErrProductNotFound)

	// Empty ID rejected.
	assert.Error(t, store.SaveProduct(ctx, core.Product{}))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	runStoreTests(t, store)
}

func TestBoltStore(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()
	runStoreTests(t, store)
}

func TestBadgerStore(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	runStoreTests(t, store)
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(StoreConfig{Type: StoreMemory})
	require.NoError(t, err)
	store.Close()

	store, err = NewStore(StoreConfig{Type: StoreBolt, Path: filepath.Join(t.TempDir(), "catalog.db")})
	require.NoError(t, err)
	store.Close()

	_, err = NewStore(StoreConfig{Type: StoreBolt})
	assert.Error(t, err)

	_, err = NewStore(StoreConfig{Type: "cassandra"})
	assert.Error(t, err)
}
