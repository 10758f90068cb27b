package encoder

import (
	"context"
	"sync"
	"time"
)

// Engine runs raw model inference for a batch of inputs. Implementations
// own a single long-lived model handle and are NOT safe for concurrent
// use; every call site goes through the Gate, never directly.
type Engine interface {
	// EmbedImages encodes a batch of validated images
	EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error)

	// EmbedTexts encodes a batch of text queries into the same vector space
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the output vector dimension
	Dimension() int

	// ModelVersion identifies the loaded model
	ModelVersion() string

	// Warm runs a dummy inference so the first request does not pay
	// model initialization latency
	Warm(ctx context.Context) error

	// Close releases model resources
	Close() error
}

// InferenceStats tracks encoder performance metrics
type InferenceStats struct {
	TotalInferences int64         `json:"total_inferences"`
	TotalInputs     int64         `json:"total_inputs"`
	TotalErrors     int64         `json:"total_errors"`
	AverageLatency  time.Duration `json:"average_latency"`
	recentLatencies []time.Duration
	mu              sync.Mutex
}

// NewInferenceStats creates an empty stats tracker
func NewInferenceStats() *InferenceStats {
	return &InferenceStats{
		recentLatencies: make([]time.Duration, 0, 100),
	}
}

// RecordInference records a completed batch
func (s *InferenceStats) RecordInference(inputs int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalInferences++
	s.TotalInputs += int64(inputs)

	if len(s.recentLatencies) >= 100 {
		s.recentLatencies = s.recentLatencies[1:]
	}
	s.recentLatencies = append(s.recentLatencies, latency)

	var total time.Duration
	for _, l := range s.recentLatencies {
		total += l
	}
	s.AverageLatency = total / time.Duration(len(s.recentLatencies))
}

// RecordError records a failed batch
func (s *InferenceStats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalErrors++
}

// Snapshot returns a copy of the current stats
func (s *InferenceStats) Snapshot() InferenceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return InferenceStats{
		TotalInferences: s.TotalInferences,
		TotalInputs:     s.TotalInputs,
		TotalErrors:     s.TotalErrors,
		AverageLatency:  s.AverageLatency,
	}
}
