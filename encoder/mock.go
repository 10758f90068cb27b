package encoder

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/smartshopper/visearch/core"
)

// MockEngine produces deterministic pseudo-embeddings derived from the
// input bytes. Used in tests and for development without a model file.
type MockEngine struct {
	dimension    int
	modelVersion string
	calls        atomic.Int64
}

// NewMockEngine creates a mock engine with the given dimension
func NewMockEngine(dimension int, modelVersion string) *MockEngine {
	return &MockEngine{dimension: dimension, modelVersion: modelVersion}
}

// EmbedImages encodes each image as a deterministic unit vector
func (m *MockEngine) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	out := make([][]float32, len(images))
	for i, img := range images {
		out[i] = m.pseudoEmbedding(img)
	}
	return out, nil
}

// EmbedTexts encodes each text as a deterministic unit vector
func (m *MockEngine) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.pseudoEmbedding([]byte(text))
	}
	return out, nil
}

// Dimension returns the configured dimension
func (m *MockEngine) Dimension() int { return m.dimension }

// ModelVersion returns the configured model version
func (m *MockEngine) ModelVersion() string { return m.modelVersion }

// Warm is a no-op
func (m *MockEngine) Warm(ctx context.Context) error { return nil }

// Close is a no-op
func (m *MockEngine) Close() error { return nil }

// Calls returns how many inference batches have run
func (m *MockEngine) Calls() int64 { return m.calls.Load() }

// pseudoEmbedding derives a unit vector from a seeded xorshift stream,
// so identical input always yields bit-identical output
func (m *MockEngine) pseudoEmbedding(data []byte) []float32 {
	h := fnv.New64a()
	h.Write(data)
	state := h.Sum64()
	if state == 0 {
		state = 1
	}

	v := make([]float32, m.dimension)
	for i := range v {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v[i] = float32(state%2000)/1000.0 - 1.0
	}
	if math.IsNaN(float64(v[0])) {
		v[0] = 0.5
	}
	return core.Normalize(v)
}
