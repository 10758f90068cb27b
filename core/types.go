package core

import (
	"sort"
	"strings"
	"time"
)

// Product represents a single catalog item eligible for visual search
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category"`
	Brand       string     `json:"brand,omitempty"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	InStock     bool       `json:"in_stock"`
	Rating      float64    `json:"rating,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Embedding   *Embedding `json:"embedding,omitempty"`
}

// TextFields returns the concatenated text searched by the keyword engine
func (p Product) TextFields() string {
	parts := []string{p.Name, p.Description, p.Brand}
	parts = append(parts, p.Tags...)
	return strings.Join(parts, " ")
}

// Embedding is a fixed-dimension vector produced by a versioned encoder.
// Instances are immutable once created; regeneration replaces them wholesale.
type Embedding struct {
	Values       []float32 `json:"values"`
	ModelVersion string    `json:"model_version"`
	SourceHash   string    `json:"source_hash,omitempty"`
}

// Dimension returns the vector dimension
func (e Embedding) Dimension() int {
	return len(e.Values)
}

// Filters restricts the candidate set before ranking
type Filters struct {
	Category    string   `json:"category,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	MinPrice    *float64 `json:"min_price,omitempty"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
	InStockOnly bool     `json:"in_stock_only,omitempty"`
}

// Match reports whether a product passes the filters
func (f Filters) Match(p Product) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(f.Brand, p.Brand) {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.InStockOnly && !p.InStock {
		return false
	}
	return true
}

// IsZero reports whether no filter is set
func (f Filters) IsZero() bool {
	return f.Category == "" && f.Brand == "" && f.MinPrice == nil && f.MaxPrice == nil && !f.InStockOnly
}

// SearchRequest is a single visual search query. At least one of
// ImageBytes or TextQuery must be present.
type SearchRequest struct {
	ImageBytes []byte  `json:"-"`
	TextQuery  string  `json:"text_query,omitempty"`
	Filters    Filters `json:"filters,omitempty"`
	TopK       int     `json:"top_k"`
}

// HasImage reports whether the request carries an image
func (r SearchRequest) HasImage() bool {
	return len(r.ImageBytes) > 0
}

// HasText reports whether the request carries a text query
func (r SearchRequest) HasText() bool {
	return strings.TrimSpace(r.TextQuery) != ""
}

// ResultItem is a single ranked match
type ResultItem struct {
	ProductID         string   `json:"product_id"`
	FusedScore        float64  `json:"fused_score"`
	SimilarityScore   float64  `json:"similarity_score"`
	TextScore         float64  `json:"text_score"`
	MatchedAttributes []string `json:"matched_attributes,omitempty"`
}

// SearchResult is the ordered outcome of one search. Items are sorted
// strictly descending by FusedScore with ProductID ascending as the
// tie-break. Degradation flags record optional signals that were skipped.
type SearchResult struct {
	Items              []ResultItem `json:"items"`
	AttributesDegraded bool         `json:"attributes_degraded,omitempty"`
	TextDegraded       bool         `json:"text_degraded,omitempty"`
	CacheHit           bool         `json:"cache_hit,omitempty"`
	TookMs             int64        `json:"took_ms"`
}

// ScoredID pairs a product with a single sub-score
type ScoredID struct {
	ProductID string  `json:"product_id"`
	Score     float64 `json:"score"`
}

// AttributeSet is an open mapping of attribute name to value extracted
// from a product image. Multi-valued attributes are comma-joined.
type AttributeSet map[string]string

// Terms returns all attribute values as individual lowercase terms,
// in deterministic order
func (a AttributeSet) Terms() []string {
	if len(a) == 0 {
		return nil
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var terms []string
	for _, k := range keys {
		for _, v := range strings.Split(a[k], ",") {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				terms = append(terms, v)
			}
		}
	}
	return terms
}

// Category returns the extracted category, if any
func (a AttributeSet) Category() string {
	return a["category"]
}
