package search

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/smartshopper/visearch/cache"
	"github.com/smartshopper/visearch/core"
	"github.com/smartshopper/visearch/textsearch"
)

// State names the pipeline stage a request is in. Stages appear in
// error messages and logs so a failed request points at its step.
type State string

const (
	StateReceived            State = "received"
	StateValidating          State = "validating"
	StateCacheHit            State = "cache_hit"
	StateDispatching         State = "dispatching"
	StateEmbedding           State = "embedding"
	StateAttributeExtracting State = "attribute_extracting"
	StateIndexQuerying       State = "index_querying"
	StateTextAugmenting      State = "text_augmenting"
	StateFusing              State = "fusing"
	StateCachingResult       State = "caching_result"
	StateComplete            State = "complete"
	StateFailed              State = "failed"
)

// Config holds per-step deadlines, cache lifetimes and fusion weights
type Config struct {
	Weights FusionWeights `yaml:"weights" json:"weights"`

	EmbedTimeout     time.Duration `yaml:"embed_timeout" json:"embed_timeout"`
	AttributeTimeout time.Duration `yaml:"attribute_timeout" json:"attribute_timeout"`
	TextTimeout      time.Duration `yaml:"text_timeout" json:"text_timeout"`
	TotalTimeout     time.Duration `yaml:"total_timeout" json:"total_timeout"`

	ResultTTL    time.Duration `yaml:"result_ttl" json:"result_ttl"`
	EmbeddingTTL time.Duration `yaml:"embedding_ttl" json:"embedding_ttl"`
}

// DefaultConfig returns production defaults. The attribute budget is an
// order of magnitude above embedding because the vision-language call
// is a remote model inference.
func DefaultConfig() Config {
	return Config{
		Weights:          DefaultFusionWeights(),
		EmbedTimeout:     150 * time.Millisecond,
		AttributeTimeout: 2 * time.Second,
		TextTimeout:      200 * time.Millisecond,
		TotalTimeout:     3 * time.Second,
		ResultTTL:        5 * time.Minute,
		EmbeddingTTL:     time.Hour,
	}
}

// ProductLookup resolves candidate IDs back to products for attribute
// matching. catalog.Store satisfies it.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (core.Product, error)
}

// Option configures optional orchestrator collaborators
type Option func(*Orchestrator)

// WithAttributeExtractor attaches the vision-language attribute service
func WithAttributeExtractor(ex core.AttributeExtractor) Option {
	return func(o *Orchestrator) { o.extractor = ex }
}

// WithTextSearcher attaches the keyword search engine
func WithTextSearcher(ts core.TextSearcher) Option {
	return func(o *Orchestrator) { o.textSearcher = ts }
}

// WithCache attaches the result and embedding cache
func WithCache(c core.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithProductLookup attaches the catalog for attribute matching
func WithProductLookup(pl ProductLookup) Option {
	return func(o *Orchestrator) { o.products = pl }
}

// Orchestrator drives one search request through the pipeline:
// validate, check the result cache, embed the query, fan out to
// attribute extraction and the similarity index, augment with text
// search, fuse, cache. The encoder and index are required; every other
// collaborator is optional and its fusion weight is forced to zero
// when absent.
type Orchestrator struct {
	encoder      core.Encoder
	index        core.SimilarityIndex
	extractor    core.AttributeExtractor
	textSearcher core.TextSearcher
	cache        core.Cache
	products     ProductLookup

	config  Config
	weights FusionWeights
	stats   *Statistics
}

// NewOrchestrator creates an orchestrator over the required encoder and
// index, with optional collaborators supplied as options
func NewOrchestrator(enc core.Encoder, idx core.SimilarityIndex, config Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		encoder: enc,
		index:   idx,
		config:  config,
		stats:   NewStatistics(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.weights = config.Weights
	if o.extractor == nil {
		o.weights.Attribute = 0
	}
	if o.textSearcher == nil {
		o.weights.Text = 0
	}
	return o
}

// Stats returns a snapshot of pipeline counters
func (o *Orchestrator) Stats() StatsSnapshot {
	return o.stats.Snapshot()
}

type attrReply struct {
	attrs core.AttributeSet
	err   error
}

// Search runs one request end to end. Attribute extraction and text
// search failures degrade the result and set the corresponding flag;
// validation, encoding, overload and index failures abort it.
func (o *Orchestrator) Search(ctx context.Context, req core.SearchRequest) (core.SearchResult, error) {
	start := time.Now()
	o.stats.RecordSearch()

	if err := core.ValidateSearchRequest(&req); err != nil {
		o.stats.RecordValidationFailure()
		return core.SearchResult{}, core.NewPipelineError(string(StateValidating), err)
	}

	if o.config.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.TotalTimeout)
		defer cancel()
	}

	resultKey := cache.ResultKey(req)
	if cached, ok := o.cachedResult(ctx, resultKey); ok {
		o.stats.RecordCacheHit()
		cached.CacheHit = true
		cached.TookMs = time.Since(start).Milliseconds()
		return cached, nil
	}

	// Attribute extraction starts now so the slow remote call overlaps
	// embedding and the index query.
	var attrCh chan attrReply
	if o.extractor != nil && req.HasImage() {
		attrCh = make(chan attrReply, 1)
		go o.extractAttributes(ctx, req.ImageBytes, attrCh)
	}

	embedding, err := o.queryEmbedding(ctx, req)
	if err != nil {
		if errors.Is(err, core.ErrOverloaded) {
			o.stats.RecordOverload()
		} else {
			o.stats.RecordEncodingFailure()
		}
		return core.SearchResult{}, core.NewPipelineError(string(StateEmbedding), err)
	}

	simResults, err := o.index.Query(embedding, req.TopK, req.Filters)
	if err != nil {
		o.stats.RecordIndexFailure()
		return core.SearchResult{}, core.NewPipelineError(string(StateIndexQuerying), err)
	}

	var result core.SearchResult
	var attrs core.AttributeSet
	if attrCh != nil {
		reply := <-attrCh
		if reply.err != nil {
			o.stats.RecordAttributeDegraded()
			result.AttributesDegraded = true
			log.Printf("search: attribute extraction degraded: %v", reply.err)
		} else {
			attrs = reply.attrs
		}
	}

	textResults := o.textResults(ctx, req, attrs, &result)

	attrMatches := o.matchAttributes(ctx, attrs, simResults, textResults)
	result.Items = Fuse(simResults, textResults, attrMatches, o.weights, req.TopK)

	o.cacheResult(ctx, resultKey, result)

	result.TookMs = time.Since(start).Milliseconds()
	o.stats.RecordLatency(time.Since(start))
	return result, nil
}

func (o *Orchestrator) cachedResult(ctx context.Context, key string) (core.SearchResult, bool) {
	if o.cache == nil {
		return core.SearchResult{}, false
	}
	raw, ok := o.cache.Get(ctx, key)
	if !ok {
		return core.SearchResult{}, false
	}
	var cached core.SearchResult
	if err := json.Unmarshal(raw, &cached); err != nil {
		return core.SearchResult{}, false
	}
	return cached, true
}

func (o *Orchestrator) cacheResult(ctx context.Context, key string, result core.SearchResult) {
	if o.cache == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, key, raw, o.config.ResultTTL); err != nil {
		o.stats.RecordCacheError()
		log.Printf("search: result cache write failed: %v", err)
	}
}

func (o *Orchestrator) extractAttributes(ctx context.Context, image []byte, out chan<- attrReply) {
	actx := ctx
	if o.config.AttributeTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.config.AttributeTimeout)
		defer cancel()
	}
	attrs, err := o.extractor.Extract(actx, image)
	out <- attrReply{attrs: attrs, err: err}
}

// queryEmbedding resolves the query vector: the embedding cache first
// for image queries, then the encoder. Text-only queries always go to
// the encoder since the text is already the cache-unfriendly short tail.
func (o *Orchestrator) queryEmbedding(ctx context.Context, req core.SearchRequest) (core.Embedding, error) {
	ectx := ctx
	if o.config.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, o.config.EmbedTimeout)
		defer cancel()
	}

	if !req.HasImage() {
		return o.encoder.EmbedText(ectx, req.TextQuery)
	}

	key := cache.EmbeddingKey(req.ImageBytes, o.encoder.ModelVersion())
	if o.cache != nil {
		if raw, ok := o.cache.Get(ctx, key); ok {
			var emb core.Embedding
			if err := json.Unmarshal(raw, &emb); err == nil && emb.ModelVersion == o.encoder.ModelVersion() {
				return emb, nil
			}
		}
	}

	emb, err := o.encoder.EmbedImage(ectx, req.ImageBytes)
	if err != nil {
		return core.Embedding{}, err
	}

	if o.cache != nil {
		if raw, err := json.Marshal(emb); err == nil {
			if err := o.cache.Set(ctx, key, raw, o.config.EmbeddingTTL); err != nil {
				o.stats.RecordCacheError()
			}
		}
	}
	return emb, nil
}

// textResults runs the keyword engine. A user text query is augmented
// with extracted attribute terms; an image-only request searches on the
// attributes alone. Failures degrade, never abort.
func (o *Orchestrator) textResults(ctx context.Context, req core.SearchRequest, attrs core.AttributeSet, result *core.SearchResult) []core.ScoredID {
	if o.textSearcher == nil {
		return nil
	}

	query := req.TextQuery
	filters := req.Filters
	if req.HasText() {
		query = textsearch.AugmentQuery(req.TextQuery, attrs)
	} else {
		query, filters = textsearch.QueryFromAttributes(attrs, req.Filters)
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}

	tctx := ctx
	if o.config.TextTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, o.config.TextTimeout)
		defer cancel()
	}

	hits, err := o.textSearcher.Search(tctx, query, filters)
	if err != nil {
		o.stats.RecordTextDegraded()
		result.TextDegraded = true
		log.Printf("search: text search degraded: %v", err)
		return nil
	}
	return hits
}

// matchAttributes checks each candidate's catalog record against the
// extracted attribute terms. The bonus is the matched share of terms.
func (o *Orchestrator) matchAttributes(ctx context.Context, attrs core.AttributeSet, lists ...[]core.ScoredID) map[string]attributeMatch {
	if o.products == nil || len(attrs) == 0 {
		return nil
	}
	terms := attrs.Terms()
	if len(terms) == 0 {
		return nil
	}

	matches := make(map[string]attributeMatch)
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, c := range list {
			if _, dup := seen[c.ProductID]; dup {
				continue
			}
			seen[c.ProductID] = struct{}{}

			product, err := o.products.GetProduct(ctx, c.ProductID)
			if err != nil {
				continue
			}
			text := strings.ToLower(product.TextFields() + " " + product.Category)

			var matched []string
			for _, term := range terms {
				if strings.Contains(text, term) {
					matched = append(matched, term)
				}
			}
			if len(matched) > 0 {
				matches[c.ProductID] = attributeMatch{
					Matched: matched,
					Bonus:   float64(len(matched)) / float64(len(terms)),
				}
			}
		}
	}
	return matches
}
