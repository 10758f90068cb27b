package textsearch

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/smartshopper/visearch/core"
)

// BM25 parameters
const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// document is one indexed product's text, preprocessed
type document struct {
	product core.Product
	length  int
}

// BM25Engine is an in-process keyword engine over product text fields
// (name, description, brand, tags). It stands in for the external
// full-text engine behind the same Searcher boundary; the orchestrator
// never sees the difference.
type BM25Engine struct {
	mu           sync.RWMutex
	documents    map[string]*document
	termFreqs    map[string]map[string]int // term -> productID -> frequency
	avgDocLength float64

	k1 float64
	b  float64

	stopWords map[string]bool
}

// NewBM25Engine creates an empty text index
func NewBM25Engine() *BM25Engine {
	return &BM25Engine{
		documents: make(map[string]*document),
		termFreqs: make(map[string]map[string]int),
		k1:        defaultK1,
		b:         defaultB,
		stopWords: defaultStopWords(),
	}
}

// IndexProduct adds or replaces a product's text in the index
func (e *BM25Engine) IndexProduct(p core.Product) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeLocked(p.ID)

	terms := e.tokenize(p.TextFields())
	e.documents[p.ID] = &document{product: p, length: len(terms)}

	counts := make(map[string]int)
	for _, term := range terms {
		counts[term]++
	}
	for term, count := range counts {
		if e.termFreqs[term] == nil {
			e.termFreqs[term] = make(map[string]int)
		}
		e.termFreqs[term][p.ID] = count
	}

	e.updateAverageDocLengthLocked()
}

// RemoveProduct deletes a product's text from the index
func (e *BM25Engine) RemoveProduct(productID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeLocked(productID)
	e.updateAverageDocLengthLocked()
}

// Search ranks products by BM25 against the query, restricted by the
// filters, ordered descending by score with product ID tie-break
func (e *BM25Engine) Search(ctx context.Context, query string, filters core.Filters) ([]core.ScoredID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	queryTerms := e.tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	docCount := float64(len(e.documents))
	scores := make(map[string]float64)

	for _, term := range queryTerms {
		docFreqs, exists := e.termFreqs[term]
		if !exists {
			continue
		}

		df := float64(len(docFreqs))
		idf := math.Log((docCount-df+0.5)/(df+0.5) + 1)

		for productID, termFreq := range docFreqs {
			doc := e.documents[productID]
			if !filters.Match(doc.product) {
				continue
			}

			docLength := float64(doc.length)
			numerator := float64(termFreq) * (e.k1 + 1)
			denominator := float64(termFreq) + e.k1*(1-e.b+e.b*(docLength/e.avgDocLength))

			scores[productID] += idf * (numerator / denominator)
		}
	}

	results := make([]core.ScoredID, 0, len(scores))
	for productID, score := range scores {
		results = append(results, core.ScoredID{ProductID: productID, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ProductID < results[j].ProductID
	})

	return results, nil
}

// Size returns the number of indexed products
func (e *BM25Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.documents)
}

func (e *BM25Engine) removeLocked(productID string) {
	if _, exists := e.documents[productID]; !exists {
		return
	}
	delete(e.documents, productID)
	for term, docs := range e.termFreqs {
		delete(docs, productID)
		if len(docs) == 0 {
			delete(e.termFreqs, term)
		}
	}
}

func (e *BM25Engine) updateAverageDocLengthLocked() {
	if len(e.documents) == 0 {
		e.avgDocLength = 0
		return
	}
	var total int
	for _, doc := range e.documents {
		total += doc.length
	}
	e.avgDocLength = float64(total) / float64(len(e.documents))
}

// tokenize lowercases, splits on non-alphanumerics and drops stop words
func (e *BM25Engine) tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || e.stopWords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func defaultStopWords() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "were", "will", "with",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
