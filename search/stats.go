package search

import (
	"sync"
	"time"
)

// Statistics tracks pipeline outcomes across searches
type Statistics struct {
	mu sync.RWMutex

	TotalSearches       int64
	CacheHits           int64
	ValidationFailures  int64
	EncodingFailures    int64
	Overloads           int64
	IndexFailures       int64
	AttributeDegraded   int64
	TextDegraded        int64
	CacheErrors         int64
	TotalLatency        time.Duration
	completedForLatency int64
}

func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) RecordSearch() {
	s.mu.Lock()
	s.TotalSearches++
	s.mu.Unlock()
}

func (s *Statistics) RecordCacheHit() {
	s.mu.Lock()
	s.CacheHits++
	s.mu.Unlock()
}

func (s *Statistics) RecordValidationFailure() {
	s.mu.Lock()
	s.ValidationFailures++
	s.mu.Unlock()
}

func (s *Statistics) RecordEncodingFailure() {
	s.mu.Lock()
	s.EncodingFailures++
	s.mu.Unlock()
}

func (s *Statistics) RecordOverload() {
	s.mu.Lock()
	s.Overloads++
	s.mu.Unlock()
}

func (s *Statistics) RecordIndexFailure() {
	s.mu.Lock()
	s.IndexFailures++
	s.mu.Unlock()
}

func (s *Statistics) RecordAttributeDegraded() {
	s.mu.Lock()
	s.AttributeDegraded++
	s.mu.Unlock()
}

func (s *Statistics) RecordTextDegraded() {
	s.mu.Lock()
	s.TextDegraded++
	s.mu.Unlock()
}

func (s *Statistics) RecordCacheError() {
	s.mu.Lock()
	s.CacheErrors++
	s.mu.Unlock()
}

func (s *Statistics) RecordLatency(d time.Duration) {
	s.mu.Lock()
	s.TotalLatency += d
	s.completedForLatency++
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy safe to serialize
type StatsSnapshot struct {
	TotalSearches      int64         `json:"total_searches"`
	CacheHits          int64         `json:"cache_hits"`
	ValidationFailures int64         `json:"validation_failures"`
	EncodingFailures   int64         `json:"encoding_failures"`
	Overloads          int64         `json:"overloads"`
	IndexFailures      int64         `json:"index_failures"`
	AttributeDegraded  int64         `json:"attribute_degraded"`
	TextDegraded       int64         `json:"text_degraded"`
	CacheErrors        int64         `json:"cache_errors"`
	AverageLatency     time.Duration `json:"average_latency"`
}

func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatsSnapshot{
		TotalSearches:      s.TotalSearches,
		CacheHits:          s.CacheHits,
		ValidationFailures: s.ValidationFailures,
		EncodingFailures:   s.EncodingFailures,
		Overloads:          s.Overloads,
		IndexFailures:      s.IndexFailures,
		AttributeDegraded:  s.AttributeDegraded,
		TextDegraded:       s.TextDegraded,
		CacheErrors:        s.CacheErrors,
	}
	if s.completedForLatency > 0 {
		snap.AverageLatency = s.TotalLatency / time.Duration(s.completedForLatency)
	}
	return snap
}
