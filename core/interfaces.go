package core

import (
	"context"
	"time"
)

// Encoder converts an image or a text query into an embedding. Image and
// text vectors live in the same space, so either can query the index.
// Implementations are deterministic for a given (source hash, model
// version) pair and are therefore cacheable.
type Encoder interface {
	// EmbedImage encodes raw image bytes
	EmbedImage(ctx context.Context, image []byte) (Embedding, error)

	// EmbedText encodes a text query into the same vector space
	EmbedText(ctx context.Context, text string) (Embedding, error)

	// Dimension returns the model's output vector dimension
	Dimension() int

	// ModelVersion identifies the encoder model
	ModelVersion() string
}

// SimilarityIndex answers top-k nearest-neighbor queries over catalog
// embeddings. Adds and deletes are point operations visible to
// subsequent queries.
type SimilarityIndex interface {
	// Add indexes a product's embedding
	Add(product Product) error

	// Delete removes a product from the index
	Delete(productID string) error

	// Query returns up to k candidates ordered strictly descending by
	// cosine similarity, ties broken by product ID ascending. Filters
	// restrict the candidate set before ranking.
	Query(embedding Embedding, k int, filters Filters) ([]ScoredID, error)

	// Size returns the number of indexed products
	Size() int

	// ModelVersion identifies the embeddings the index holds
	ModelVersion() string
}

// AttributeExtractor calls an external vision-language service to derive
// structured attributes from an image. This is the slowest, least
// reliable collaborator; failures are absorbed as degradations.
type AttributeExtractor interface {
	Extract(ctx context.Context, image []byte) (AttributeSet, error)
}

// TextSearcher is the boundary to the external keyword search engine.
// Its internal ranking is a black box to this core.
type TextSearcher interface {
	Search(ctx context.Context, query string, filters Filters) ([]ScoredID, error)
}

// Cache is a byte-oriented key-value store with expiry. A miss and a
// backend failure look the same to callers: fall through to full
// computation, never fail the request.
type Cache interface {
	// Get retrieves a value; ok is false on miss, expiry or backend failure
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set stores a value under key for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error
}
