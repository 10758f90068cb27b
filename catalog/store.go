package catalog

import (
	"context"

	"github.com/smartshopper/visearch/core"
)

// Store holds the ingested catalog: products together with their
// embeddings. Ingestion itself happens outside this core; the store
// serves already-ingested data and is the source the similarity and
// text indexes are (re)built from.
type Store interface {
	// SaveProduct stores or replaces a product
	SaveProduct(ctx context.Context, product core.Product) error

	// GetProduct retrieves a product by ID
	GetProduct(ctx context.Context, id string) (core.Product, error)

	// ListProducts returns all products
	ListProducts(ctx context.Context) ([]core.Product, error)

	// DeleteProduct removes a product
	DeleteProduct(ctx context.Context, id string) error

	// Close releases store resources
	Close() error
}

// StoreType identifies a store backend
type StoreType string

const (
	StoreMemory StoreType = "memory"
	StoreBolt   StoreType = "bolt"
	StoreBadger StoreType = "badger"
)

// StoreConfig selects and configures a store backend
type StoreConfig struct {
	Type StoreType `yaml:"type" json:"type"`
	Path string    `yaml:"path" json:"path"`
}
