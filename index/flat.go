package index

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/smartshopper/visearch/core"
)

// entry is one indexed product: its normalized embedding plus the
// fields the pre-ranking filters need.
type entry struct {
	ID      string       `json:"id"`
	Values  []float32    `json:"values"`
	Product core.Product `json:"product"`
}

// Flat implements exact brute-force cosine search over catalog
// embeddings. Filters restrict the candidate set before ranking, so a
// selective filter still yields up to k eligible results.
type Flat struct {
	mu           sync.RWMutex
	entries      map[string]entry
	dimension    int
	modelVersion string
}

// NewFlat creates a flat index for embeddings of the given model version
func NewFlat(dimension int, modelVersion string) *Flat {
	return &Flat{
		entries:      make(map[string]entry),
		dimension:    dimension,
		modelVersion: modelVersion,
	}
}

// Add indexes a product's embedding as a point operation. The embedding
// is normalized on write so queries reduce to a dot product.
func (f *Flat) Add(product core.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product ID is required")
	}
	if product.Embedding == nil || len(product.Embedding.Values) == 0 {
		return fmt.Errorf("product %s has no embedding", product.ID)
	}
	if err := f.checkEmbedding(*product.Embedding); err != nil {
		return err
	}

	values := product.Embedding.Values
	if !core.IsNormalized(values) {
		values = core.Normalize(values)
	}

	meta := product
	meta.Embedding = nil

	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[product.ID] = entry{ID: product.ID, Values: values, Product: meta}
	return nil
}

// Delete removes a product from the index
func (f *Flat) Delete(productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.entries[productID]; !exists {
		return fmt.Errorf("%w: %s", core.ErrProductNotFound, productID)
	}

	delete(f.entries, productID)
	return nil
}

// Query returns up to k candidates ordered strictly descending by cosine
// similarity, ties broken by product ID ascending for determinism.
func (f *Flat) Query(embedding core.Embedding, k int, filters core.Filters) ([]core.ScoredID, error) {
	if err := f.checkEmbedding(embedding); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	query := embedding.Values
	if !core.IsNormalized(query) {
		query = core.Normalize(query)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]core.ScoredID, 0, len(f.entries))
	for _, e := range f.entries {
		if !filters.Match(e.Product) {
			continue
		}

		// Entries and query are unit length, the dot product is the cosine.
		var score float64
		for i := range query {
			score += float64(query[i]) * float64(e.Values[i])
		}

		results = append(results, core.ScoredID{ProductID: e.ID, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ProductID < results[j].ProductID
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Size returns the number of indexed products
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// ModelVersion identifies the embeddings the index holds
func (f *Flat) ModelVersion() string {
	return f.modelVersion
}

// checkEmbedding guards against mixing model versions or dimensions;
// a mismatch signals systemic misconfiguration, not a bad request.
func (f *Flat) checkEmbedding(e core.Embedding) error {
	if e.ModelVersion != "" && e.ModelVersion != f.modelVersion {
		return fmt.Errorf("%w: embedding model %q, index model %q",
			core.ErrDimensionMismatch, e.ModelVersion, f.modelVersion)
	}
	if len(e.Values) != f.dimension {
		return fmt.Errorf("%w: embedding dimension %d, index dimension %d",
			core.ErrDimensionMismatch, len(e.Values), f.dimension)
	}
	return nil
}

// flatState is the serializable snapshot of a Flat index
type flatState struct {
	Entries      map[string]entry `json:"entries"`
	Dimension    int              `json:"dimension"`
	ModelVersion string           `json:"model_version"`
}

// Serialize converts the index state to bytes
func (f *Flat) Serialize() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entriesCopy := make(map[string]entry, len(f.entries))
	for id, e := range f.entries {
		entriesCopy[id] = e
	}

	return json.Marshal(flatState{
		Entries:      entriesCopy,
		Dimension:    f.dimension,
		ModelVersion: f.modelVersion,
	})
}

// Deserialize restores the index state from bytes
func (f *Flat) Deserialize(data []byte) error {
	var state flatState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal flat index state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = state.Entries
	f.dimension = state.Dimension
	f.modelVersion = state.ModelVersion
	return nil
}
