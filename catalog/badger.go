package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/smartshopper/visearch/core"
)

const productKeyPrefix = "product:"

// BadgerStore persists the catalog in BadgerDB, for deployments where
// the catalog outgrows a single Bolt file
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB-backed catalog store
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", path, err)
	}

	return &BadgerStore{db: db}, nil
}

// SaveProduct stores or replaces a product
func (b *BadgerStore) SaveProduct(ctx context.Context, product core.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product ID is required")
	}

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product %s: %w", product.ID, err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(productKey(product.ID), data)
	})
}

// GetProduct retrieves a product by ID
func (b *BadgerStore) GetProduct(ctx context.Context, id string) (core.Product, error) {
	var product core.Product

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(productKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", core.ErrProductNotFound, id)
			}
			return err
		}
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, &product)
		})
	})
	if err != nil {
		return core.Product{}, err
	}
	return product, nil
}

// ListProducts returns all products
func (b *BadgerStore) ListProducts(ctx context.Context) ([]core.Product, error) {
	var products []core.Product

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(productKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(data []byte) error {
				var product core.Product
				if err := json.Unmarshal(data, &product); err != nil {
					return fmt.Errorf("failed to unmarshal product: %w", err)
				}
				products = append(products, product)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// DeleteProduct removes a product
func (b *BadgerStore) DeleteProduct(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(productKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", core.ErrProductNotFound, id)
			}
			return err
		}
		return txn.Delete(productKey(id))
	})
}

// Close closes the underlying database
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func productKey(id string) []byte {
	return []byte(productKeyPrefix + id)
}
