package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartshopper/visearch/cache"
	"github.com/smartshopper/visearch/catalog"
	"github.com/smartshopper/visearch/core"
	"github.com/smartshopper/visearch/index"
)

const (
	testDim   = 4
	testModel = "clip-test-v1"
)

// stubEncoder answers every query with a fixed unit vector
type stubEncoder struct {
	vec        []float32
	err        error
	imageCalls int32
	textCalls  int32
}

func (s *stubEncoder) EmbedImage(ctx context.Context, image []byte) (core.Embedding, error) {
	atomic.AddInt32(&s.imageCalls, 1)
	if s.err != nil {
		return core.Embedding{}, s.err
	}
	return core.Embedding{Values: s.vec, ModelVersion: testModel, SourceHash: cache.ContentHash(image)}, nil
}

func (s *stubEncoder) EmbedText(ctx context.Context, text string) (core.Embedding, error) {
	atomic.AddInt32(&s.textCalls, 1)
	if s.err != nil {
		return core.Embedding{}, s.err
	}
	return core.Embedding{Values: s.vec, ModelVersion: testModel}, nil
}

func (s *stubEncoder) Dimension() int       { return testDim }
func (s *stubEncoder) ModelVersion() string { return testModel }

type stubExtractor struct {
	attrs core.AttributeSet
	err   error
}

func (s stubExtractor) Extract(ctx context.Context, image []byte) (core.AttributeSet, error) {
	return s.attrs, s.err
}

type stubTextSearcher struct {
	hits      []core.ScoredID
	err       error
	lastQuery string
}

func (s *stubTextSearcher) Search(ctx context.Context, query string, filters core.Filters) ([]core.ScoredID, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

// vecAtCosine builds a unit vector whose cosine to (1,0,0,0) is cos
func vecAtCosine(cos float64) []float32 {
	sin := math.Sqrt(1 - cos*cos)
	return []float32{float32(cos), float32(sin), 0, 0}
}

func testCatalog(t *testing.T) (*catalog.MemoryStore, *index.Flat) {
	t.Helper()

	store := catalog.NewMemoryStore()
	idx := index.NewFlat(testDim, testModel)

	products := []struct {
		id, name, category string
		cos                float64
	}{
		{"prod-a", "red running shoes", "shoes", 0.95},
		{"prod-b", "blue canvas sneakers", "shoes", 0.80},
		{"prod-c", "leather office chair", "furniture", 0.40},
	}
	for _, p := range products {
		product := core.Product{
			ID:       p.id,
			Name:     p.name,
			Category: p.category,
			Price:    50,
			InStock:  true,
			Embedding: &core.Embedding{
				Values:       vecAtCosine(p.cos),
				ModelVersion: testModel,
			},
		}
		require.NoError(t, store.SaveProduct(context.Background(), product))
		require.NoError(t, idx.Add(product))
	}
	return store, idx
}

func TestSearchHappyPath(t *testing.T) {
	store, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}
	ts := &stubTextSearcher{hits: []core.ScoredID{{ProductID: "prod-a", Score: 2.0}}}

	o := NewOrchestrator(enc, idx, DefaultConfig(),
		WithAttributeExtractor(stubExtractor{attrs: core.AttributeSet{"color": "red", "category": "shoes"}}),
		WithTextSearcher(ts),
		WithProductLookup(store),
	)

	result, err := o.Search(context.Background(), core.SearchRequest{
		ImageBytes: []byte("fake-image"),
		TopK:       2,
	})
	require.NoError(t, err)

	assert.False(t, result.AttributesDegraded)
	assert.False(t, result.TextDegraded)
	assert.False(t, result.CacheHit)

	require.Len(t, result.Items, 2)
	assert.Equal(t, "prod-a", result.Items[0].ProductID)
	assert.Equal(t, "prod-b", result.Items[1].ProductID)
	assert.Greater(t, result.Items[0].FusedScore, result.Items[1].FusedScore)

	// prod-a's record contains both extracted terms
	assert.Equal(t, []string{"shoes", "red"}, result.Items[0].MatchedAttributes)

	// image-only request searched the text engine on the attribute terms
	assert.Equal(t, "shoes red", ts.lastQuery)
}

func TestSearchAttributeFailureDegrades(t *testing.T) {
	store, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}

	o := NewOrchestrator(enc, idx, DefaultConfig(),
		WithAttributeExtractor(stubExtractor{err: fmt.Errorf("%w: upstream 503", core.ErrAttributeExtraction)}),
		WithTextSearcher(&stubTextSearcher{}),
		WithProductLookup(store),
	)

	result, err := o.Search(context.Background(), core.SearchRequest{
		ImageBytes: []byte("fake-image"),
		TopK:       3,
	})
	require.NoError(t, err, "attribute failure must not fail the search")

	assert.True(t, result.AttributesDegraded)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "prod-a", result.Items[0].ProductID)
	for _, it := range result.Items {
		assert.Empty(t, it.MatchedAttributes)
	}

	assert.Equal(t, int64(1), o.Stats().AttributeDegraded)
}

func TestSearchTextFailureDegrades(t *testing.T) {
	_, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}

	o := NewOrchestrator(enc, idx, DefaultConfig(),
		WithTextSearcher(&stubTextSearcher{err: errors.New("search engine down")}),
	)

	result, err := o.Search(context.Background(), core.SearchRequest{
		ImageBytes: []byte("fake-image"),
		TextQuery:  "running shoes",
		TopK:       3,
	})
	require.NoError(t, err)

	assert.True(t, result.TextDegraded)
	assert.Len(t, result.Items, 3, "similarity results still rank")
	assert.Equal(t, int64(1), o.Stats().TextDegraded)
}

func TestSearchValidationFailureIsFatal(t *testing.T) {
	_, idx := testCatalog(t)
	o := NewOrchestrator(&stubEncoder{vec: []float32{1, 0, 0, 0}}, idx, DefaultConfig())

	_, err := o.Search(context.Background(), core.SearchRequest{TopK: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)

	var perr *core.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, string(StateValidating), perr.Stage)
}

func TestSearchEncoderOverloadIsFatal(t *testing.T) {
	_, idx := testCatalog(t)
	enc := &stubEncoder{err: core.ErrOverloaded}
	o := NewOrchestrator(enc, idx, DefaultConfig())

	_, err := o.Search(context.Background(), core.SearchRequest{
		ImageBytes: []byte("fake-image"),
		TopK:       3,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrOverloaded)
	assert.True(t, core.IsRetryable(err))
	assert.Equal(t, int64(1), o.Stats().Overloads)
}

func TestSearchResultCacheHit(t *testing.T) {
	_, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}
	mem := cache.NewMemory(64, time.Minute)
	defer mem.Close()

	o := NewOrchestrator(enc, idx, DefaultConfig(), WithCache(mem))

	req := core.SearchRequest{ImageBytes: []byte("fake-image"), TopK: 2}

	first, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, len(first.Items), len(second.Items))
	assert.Equal(t, first.Items[0].ProductID, second.Items[0].ProductID)

	assert.Equal(t, int32(1), atomic.LoadInt32(&enc.imageCalls), "cache hit skips the encoder")
	assert.Equal(t, int64(1), o.Stats().CacheHits)
}

func TestSearchEmbeddingCacheReuse(t *testing.T) {
	_, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}
	mem := cache.NewMemory(64, time.Minute)
	defer mem.Close()

	o := NewOrchestrator(enc, idx, DefaultConfig(), WithCache(mem))

	image := []byte("fake-image")

	// Different top_k means a different result key, so only the
	// embedding cache can save the second encode.
	_, err := o.Search(context.Background(), core.SearchRequest{ImageBytes: image, TopK: 1})
	require.NoError(t, err)
	_, err = o.Search(context.Background(), core.SearchRequest{ImageBytes: image, TopK: 2})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&enc.imageCalls))
}

func TestSearchTextOnlyRequest(t *testing.T) {
	_, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}
	ts := &stubTextSearcher{hits: []core.ScoredID{{ProductID: "prod-b", Score: 1.5}}}

	o := NewOrchestrator(enc, idx, DefaultConfig(), WithTextSearcher(ts))

	result, err := o.Search(context.Background(), core.SearchRequest{
		TextQuery: "canvas sneakers",
		TopK:      3,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&enc.textCalls))
	assert.Equal(t, "canvas sneakers", ts.lastQuery)
	assert.NotEmpty(t, result.Items)
}

func TestSearchFiltersReachIndex(t *testing.T) {
	_, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}

	o := NewOrchestrator(enc, idx, DefaultConfig())

	result, err := o.Search(context.Background(), core.SearchRequest{
		ImageBytes: []byte("fake-image"),
		Filters:    core.Filters{Category: "furniture"},
		TopK:       5,
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "prod-c", result.Items[0].ProductID)
}

func TestSearchWithoutExtractorStillWorks(t *testing.T) {
	_, idx := testCatalog(t)
	enc := &stubEncoder{vec: []float32{1, 0, 0, 0}}

	o := NewOrchestrator(enc, idx, DefaultConfig())

	result, err := o.Search(context.Background(), core.SearchRequest{
		ImageBytes: []byte("fake-image"),
		TopK:       2,
	})
	require.NoError(t, err)

	assert.False(t, result.AttributesDegraded, "absent capability is not a degradation")
	require.Len(t, result.Items, 2)
	for _, it := range result.Items {
		assert.Empty(t, it.MatchedAttributes)
	}
}

func TestSearchDefaultsTopK(t *testing.T) {
	_, idx := testCatalog(t)
	o := NewOrchestrator(&stubEncoder{vec: []float32{1, 0, 0, 0}}, idx, DefaultConfig())

	result, err := o.Search(context.Background(), core.SearchRequest{
		ImageBytes: []byte("fake-image"),
	})
	require.NoError(t, err)
	assert.Len(t, result.Items, 3, "default top_k exceeds catalog size, all match")
}
