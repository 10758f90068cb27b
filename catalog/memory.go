package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/smartshopper/visearch/core"
)

// MemoryStore keeps the catalog in process memory. Suitable for tests
// and small deployments that rebuild from an external source at start.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]core.Product
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]core.Product),
	}
}

// SaveProduct stores or replaces a product
func (m *MemoryStore) SaveProduct(ctx context.Context, product core.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.products[product.ID] = product
	return nil
}

// GetProduct retrieves a product by ID
func (m *MemoryStore) GetProduct(ctx context.Context, id string) (core.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, exists := m.products[id]
	if !exists {
		return core.Product{}, fmt.Errorf("%w: %s", core.ErrProductNotFound, id)
	}
	return product, nil
}

// ListProducts returns all products
func (m *MemoryStore) ListProducts(ctx context.Context) ([]core.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]core.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	return products, nil
}

// DeleteProduct removes a product
func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.products[id]; !exists {
		return fmt.Errorf("%w: %s", core.ErrProductNotFound, id)
	}

	delete(m.products, id)
	return nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}
