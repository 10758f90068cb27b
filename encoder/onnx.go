package encoder

import (
	"context"
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/smartshopper/visearch/core"
)

// ONNXConfig configures the ONNX runtime engine
type ONNXConfig struct {
	// ImageModelPath is the exported vision encoder
	ImageModelPath string `yaml:"image_model_path" json:"image_model_path"`

	// TextModelPath is the exported text encoder sharing the vision
	// encoder's output space
	TextModelPath string `yaml:"text_model_path" json:"text_model_path"`

	// VocabPath is the tokenizer vocabulary (optional)
	VocabPath string `yaml:"vocab_path" json:"vocab_path"`

	// SharedLibraryPath overrides the onnxruntime shared library location
	SharedLibraryPath string `yaml:"shared_library_path" json:"shared_library_path"`

	// ModelVersion tags every embedding this engine produces
	ModelVersion string `yaml:"model_version" json:"model_version"`

	// Dimension is the model's output vector dimension
	Dimension int `yaml:"dimension" json:"dimension"`

	// UseGPU enables the CUDA execution provider
	UseGPU bool `yaml:"use_gpu" json:"use_gpu"`
}

var ortInitOnce sync.Once

// initRuntime initializes the process-wide ONNX runtime environment.
// The environment is shared by every session and lives until exit.
func initRuntime(sharedLibraryPath string) error {
	var err error
	ortInitOnce.Do(func() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if !ort.IsInitialized() {
			err = ort.InitializeEnvironment()
		}
	})
	return err
}

// ONNXEngine runs CLIP-family image and text encoders through ONNX
// Runtime. The two sessions share one output vector space, so a text
// query can rank against image embeddings without a separate index.
//
// The engine is a singleton resource loaded once at process start; it
// is not safe for concurrent use and must only be called via the Gate.
type ONNXEngine struct {
	config       ONNXConfig
	imageSession *ort.DynamicAdvancedSession
	textSession  *ort.DynamicAdvancedSession
	tokenizer    *Tokenizer
	stats        *InferenceStats
	warmupDone   bool
	mu           sync.Mutex
}

// NewONNXEngine loads the image and text encoder sessions
func NewONNXEngine(config ONNXConfig) (*ONNXEngine, error) {
	if config.ImageModelPath == "" {
		return nil, fmt.Errorf("image model path is required")
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("model dimension is required")
	}

	if err := initRuntime(config.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}

	options, err := sessionOptions(config.UseGPU)
	if err != nil {
		return nil, err
	}
	if options != nil {
		defer options.Destroy()
	}

	engine := &ONNXEngine{
		config: config,
		stats:  NewInferenceStats(),
	}

	engine.imageSession, err = ort.NewDynamicAdvancedSession(
		config.ImageModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load image encoder: %w", err)
	}

	if config.TextModelPath != "" {
		engine.textSession, err = ort.NewDynamicAdvancedSession(
			config.TextModelPath,
			[]string{"input_ids", "attention_mask"},
			[]string{"text_embeds"},
			options,
		)
		if err != nil {
			engine.imageSession.Destroy()
			return nil, fmt.Errorf("failed to load text encoder: %w", err)
		}

		engine.tokenizer, err = NewTokenizer(config.VocabPath)
		if err != nil {
			engine.Close()
			return nil, err
		}
	}

	return engine, nil
}

func sessionOptions(useGPU bool) (*ort.SessionOptions, error) {
	if !useGPU {
		return nil, nil
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer cudaOptions.Destroy()

	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to enable CUDA execution provider: %w", err)
	}

	return options, nil
}

// EmbedImages encodes a batch of validated images
func (e *ONNXEngine) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	if len(images) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.imageSession == nil {
		return nil, core.ErrEncoderUnavailable
	}

	batch := len(images)
	plane := 3 * inputSize * inputSize
	flat := make([]float32, batch*plane)
	for i, img := range images {
		tensor, err := preprocessImage(img)
		if err != nil {
			e.stats.RecordError()
			return nil, fmt.Errorf("%w: %v", core.ErrEncoding, err)
		}
		copy(flat[i*plane:(i+1)*plane], tensor)
	}

	input, err := ort.NewTensor(ort.NewShape(int64(batch), 3, inputSize, inputSize), flat)
	if err != nil {
		e.stats.RecordError()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	return e.run(e.imageSession, []ort.Value{input}, batch)
}

// EmbedTexts encodes a batch of text queries
func (e *ONNXEngine) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.textSession == nil {
		return nil, fmt.Errorf("%w: text encoder not loaded", core.ErrEncoderUnavailable)
	}

	batch := len(texts)
	ids := make([]int64, 0, batch*contextLength)
	masks := make([]int64, 0, batch*contextLength)
	for _, text := range texts {
		tokens := e.tokenizer.Tokenize(text)
		ids = append(ids, tokens...)
		for _, tok := range tokens {
			if tok == 0 {
				masks = append(masks, 0)
			} else {
				masks = append(masks, 1)
			}
		}
	}

	shape := ort.NewShape(int64(batch), contextLength)
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		e.stats.RecordError()
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, masks)
	if err != nil {
		e.stats.RecordError()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	return e.run(e.textSession, []ort.Value{idsTensor, maskTensor}, batch)
}

// run executes a session and splits the flat output into per-input
// normalized vectors
func (e *ONNXEngine) run(session *ort.DynamicAdvancedSession, inputs []ort.Value, batch int) ([][]float32, error) {
	start := time.Now()

	outputs := []ort.Value{nil}
	if err := session.Run(inputs, outputs); err != nil {
		e.stats.RecordError()
		return nil, fmt.Errorf("%w: inference failed: %v", core.ErrEncoding, err)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		e.stats.RecordError()
		return nil, fmt.Errorf("%w: unexpected output tensor type", core.ErrEncoding)
	}

	data := tensor.GetData()
	dim := e.config.Dimension
	if len(data) != batch*dim {
		e.stats.RecordError()
		return nil, fmt.Errorf("%w: output length %d, expected %d", core.ErrDimensionMismatch, len(data), batch*dim)
	}

	embeddings := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		v := make([]float32, dim)
		copy(v, data[i*dim:(i+1)*dim])
		embeddings[i] = core.Normalize(v)
	}

	e.stats.RecordInference(batch, time.Since(start))
	return embeddings, nil
}

// Dimension returns the output vector dimension
func (e *ONNXEngine) Dimension() int {
	return e.config.Dimension
}

// ModelVersion identifies the loaded model
func (e *ONNXEngine) ModelVersion() string {
	return e.config.ModelVersion
}

// Warm runs a dummy text inference so the first request does not pay
// initialization latency
func (e *ONNXEngine) Warm(ctx context.Context) error {
	e.mu.Lock()
	done := e.warmupDone
	e.mu.Unlock()
	if done {
		return nil
	}

	if e.textSession != nil {
		if _, err := e.EmbedTexts(ctx, []string{"warmup"}); err != nil {
			return fmt.Errorf("warmup inference failed: %w", err)
		}
	}

	e.mu.Lock()
	e.warmupDone = true
	e.mu.Unlock()
	return nil
}

// Stats returns a snapshot of inference statistics
func (e *ONNXEngine) Stats() InferenceStats {
	return e.stats.Snapshot()
}

// Close releases both sessions. The runtime environment itself is
// process-wide and stays initialized.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.imageSession != nil {
		e.imageSession.Destroy()
		e.imageSession = nil
	}
	if e.textSession != nil {
		e.textSession.Destroy()
		e.textSession = nil
	}
	return nil
}
