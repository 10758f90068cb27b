package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/smartshopper/visearch/core"
)

const productsBucket = "products"

// BoltStore persists the catalog in a single BoltDB file
type BoltStore struct {
	db   *bbolt.DB
	path string
}

// NewBoltStore opens (or creates) a BoltDB-backed catalog store
func NewBoltStore(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(productsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize products bucket: %w", err)
	}

	return &BoltStore{db: db, path: dbPath}, nil
}

// SaveProduct stores or replaces a product
func (b *BoltStore) SaveProduct(ctx context.Context, product core.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product ID is required")
	}

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product %s: %w", product.ID, err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(productsBucket)).Put([]byte(product.ID), data)
	})
}

// GetProduct retrieves a product by ID
func (b *BoltStore) GetProduct(ctx context.Context, id string) (core.Product, error) {
	var product core.Product

	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(productsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", core.ErrProductNotFound, id)
		}
		return json.Unmarshal(data, &product)
	})
	if err != nil {
		return core.Product{}, err
	}
	return product, nil
}

// ListProducts returns all products
func (b *BoltStore) ListProducts(ctx context.Context) ([]core.Product, error) {
	var products []core.Product

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(productsBucket)).ForEach(func(_, data []byte) error {
			var product core.Product
			if err := json.Unmarshal(data, &product); err != nil {
				return fmt.Errorf("failed to unmarshal product: %w", err)
			}
			products = append(products, product)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// DeleteProduct removes a product
func (b *BoltStore) DeleteProduct(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productsBucket))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", core.ErrProductNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the underlying database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
