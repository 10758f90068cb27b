package encoder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/smartshopper/visearch/core"
)

// GateConfig configures the bounded-concurrency encoder gate
type GateConfig struct {
	// Workers is the number of safely concurrent model contexts.
	// Single-device deployments run one.
	Workers int `yaml:"workers" json:"workers"`

	// QueueDepth bounds the number of requests waiting for the model.
	// A full queue fails fast instead of growing latency unbounded.
	QueueDepth int `yaml:"queue_depth" json:"queue_depth"`

	// BatchWindow is how long a worker accumulates requests before
	// submitting them as one batched inference call.
	BatchWindow time.Duration `yaml:"batch_window" json:"batch_window"`

	// MaxBatch caps the size of a single batched call
	MaxBatch int `yaml:"max_batch" json:"max_batch"`

	// MaxImageBytes rejects oversized uploads before they reach the queue
	MaxImageBytes int `yaml:"max_image_bytes" json:"max_image_bytes"`
}

// DefaultGateConfig returns production defaults for a single-GPU deployment
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Workers:       1,
		QueueDepth:    64,
		BatchWindow:   20 * time.Millisecond,
		MaxBatch:      16,
		MaxImageBytes: 10 << 20,
	}
}

type jobKind int

const (
	imageJob jobKind = iota
	textJob
)

type jobResult struct {
	values []float32
	err    error
}

type job struct {
	kind  jobKind
	image []byte
	text  string

	// result is buffered so a worker can always deliver, even when the
	// caller has already gone away.
	result chan jobResult
}

// Gate funnels every encoder call through a fixed worker pool with a
// bounded queue and a micro-batching window. It is the only access
// path to the underlying engine, so the model handle is never touched
// from unmanaged call sites.
type Gate struct {
	engine Engine
	config GateConfig
	queue  chan *job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewGate wraps an engine with the concurrency gate and starts its workers
func NewGate(engine Engine, config GateConfig) *Gate {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 64
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = 16
	}

	g := &Gate{
		engine: engine,
		config: config,
		queue:  make(chan *job, config.QueueDepth),
	}

	g.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go g.worker()
	}

	return g
}

// EmbedImage encodes raw image bytes. Malformed or oversized input is
// rejected before it can occupy the queue.
func (g *Gate) EmbedImage(ctx context.Context, image []byte) (core.Embedding, error) {
	if err := core.ValidateImage(image, g.config.MaxImageBytes); err != nil {
		return core.Embedding{}, err
	}

	j := &job{kind: imageJob, image: image, result: make(chan jobResult, 1)}
	values, err := g.submit(ctx, j)
	if err != nil {
		return core.Embedding{}, err
	}

	return core.Embedding{
		Values:       values,
		ModelVersion: g.engine.ModelVersion(),
		SourceHash:   sourceHash(image),
	}, nil
}

// EmbedText encodes a text query into the same vector space
func (g *Gate) EmbedText(ctx context.Context, text string) (core.Embedding, error) {
	if text == "" {
		return core.Embedding{}, fmt.Errorf("%w: empty text", core.ErrEncoding)
	}

	j := &job{kind: textJob, text: text, result: make(chan jobResult, 1)}
	values, err := g.submit(ctx, j)
	if err != nil {
		return core.Embedding{}, err
	}

	return core.Embedding{
		Values:       values,
		ModelVersion: g.engine.ModelVersion(),
		SourceHash:   sourceHash([]byte(text)),
	}, nil
}

// Dimension returns the engine's output dimension
func (g *Gate) Dimension() int { return g.engine.Dimension() }

// ModelVersion identifies the gated engine's model
func (g *Gate) ModelVersion() string { return g.engine.ModelVersion() }

// submit enqueues a job with backpressure and waits for its result.
// A caller that gives up abandons the job; an already-dispatched batch
// still completes and its result is discarded.
func (g *Gate) submit(ctx context.Context, j *job) ([]float32, error) {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return nil, core.ErrEncoderUnavailable
	}

	select {
	case g.queue <- j:
		g.mu.RUnlock()
	default:
		g.mu.RUnlock()
		return nil, fmt.Errorf("%w: queue depth %d exceeded", core.ErrOverloaded, g.config.QueueDepth)
	}

	select {
	case res := <-j.result:
		return res.values, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker drains the queue, accumulating jobs that arrive within the
// batch window into one inference call.
func (g *Gate) worker() {
	defer g.wg.Done()

	for first := range g.queue {
		batch := []*job{first}

		if g.config.BatchWindow > 0 {
			timer := time.NewTimer(g.config.BatchWindow)
		accumulate:
			for len(batch) < g.config.MaxBatch {
				select {
				case j, ok := <-g.queue:
					if !ok {
						break accumulate
					}
					batch = append(batch, j)
				case <-timer.C:
					break accumulate
				}
			}
			timer.Stop()
		}

		g.runBatch(batch)
	}
}

// runBatch partitions a batch by kind and dispatches it. Committed GPU
// work always runs to completion; results for callers that have gone
// away land in their buffered channels and are dropped.
func (g *Gate) runBatch(batch []*job) {
	var images [][]byte
	var texts []string
	var imageJobs, textJobs []*job

	for _, j := range batch {
		switch j.kind {
		case imageJob:
			images = append(images, j.image)
			imageJobs = append(imageJobs, j)
		case textJob:
			texts = append(texts, j.text)
			textJobs = append(textJobs, j)
		}
	}

	if len(imageJobs) > 0 {
		embeddings, err := g.engine.EmbedImages(context.Background(), images)
		deliver(imageJobs, embeddings, err)
	}
	if len(textJobs) > 0 {
		embeddings, err := g.engine.EmbedTexts(context.Background(), texts)
		deliver(textJobs, embeddings, err)
	}
}

func deliver(jobs []*job, embeddings [][]float32, err error) {
	for i, j := range jobs {
		if err != nil {
			j.result <- jobResult{err: err}
			continue
		}
		if i >= len(embeddings) {
			j.result <- jobResult{err: fmt.Errorf("%w: missing batch output", core.ErrEncoding)}
			continue
		}
		j.result <- jobResult{values: embeddings[i]}
	}
}

// Close stops accepting work, drains in-flight batches and shuts the
// workers down
func (g *Gate) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.queue)
	g.mu.Unlock()

	g.wg.Wait()
	return g.engine.Close()
}

func sourceHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
