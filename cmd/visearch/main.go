package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartshopper/visearch/api"
	"github.com/smartshopper/visearch/attributes"
	"github.com/smartshopper/visearch/cache"
	"github.com/smartshopper/visearch/catalog"
	"github.com/smartshopper/visearch/config"
	"github.com/smartshopper/visearch/core"
	"github.com/smartshopper/visearch/encoder"
	"github.com/smartshopper/visearch/index"
	"github.com/smartshopper/visearch/search"
	"github.com/smartshopper/visearch/textsearch"
)

func main() {
	// Parse command line flags
	var (
		configPath    = flag.String("config", "", "Path to configuration file (default: ~/.visearch.yml)")
		host          = flag.String("host", "", "Host to listen on (overrides config)")
		port          = flag.Int("port", 0, "Port to listen on (overrides config)")
		catalogType   = flag.String("catalog", "", "Catalog store type: memory, bolt, badger (overrides config)")
		catalogPath   = flag.String("catalog-path", "", "Catalog store path (overrides config)")
		attrsEndpoint = flag.String("attributes-endpoint", "", "Attribute extraction service URL (overrides config)")
		mockEncoder   = flag.Bool("mock-encoder", false, "Use the deterministic mock encoder instead of ONNX")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override with command-line flags
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *catalogType != "" {
		cfg.Catalog.Type = catalog.StoreType(*catalogType)
	}
	if *catalogPath != "" {
		cfg.Catalog.Path = *catalogPath
	}
	if *attrsEndpoint != "" {
		cfg.Attributes.Endpoint = *attrsEndpoint
	}
	if *mockEncoder {
		cfg.Encoder.Engine = "mock"
	}

	fmt.Println("=== visearch ===")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Host: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Encoder: %s (%s, dim %d)\n", cfg.Encoder.Engine, cfg.Encoder.ONNX.ModelVersion, cfg.Encoder.ONNX.Dimension)
	fmt.Printf("  Catalog: %s\n", cfg.Catalog.Type)
	fmt.Printf("  Cache: %s\n", cfg.Cache.Type)
	if cfg.Attributes.Endpoint != "" {
		fmt.Printf("  Attributes: %s\n", cfg.Attributes.Endpoint)
	} else {
		fmt.Printf("  Attributes: disabled\n")
	}
	fmt.Println()

	// Create the embedding engine behind its concurrency gate
	var engine encoder.Engine
	switch cfg.Encoder.Engine {
	case "mock":
		engine = encoder.NewMockEngine(cfg.Encoder.ONNX.Dimension, cfg.Encoder.ONNX.ModelVersion)
	default:
		engine, err = encoder.NewONNXEngine(cfg.Encoder.ONNX)
		if err != nil {
			log.Fatalf("Failed to create ONNX engine: %v", err)
		}
	}

	gate := encoder.NewGate(engine, cfg.Encoder.Gate)
	defer gate.Close()

	// First inference loads the model; take the hit at startup, not on
	// the first user request.
	if _, err := gate.EmbedText(context.Background(), "warmup"); err != nil {
		log.Printf("Warning: encoder warmup failed: %v", err)
	}

	// Create the catalog store
	store, err := catalog.NewStore(cfg.Catalog)
	if err != nil {
		log.Fatalf("Failed to create catalog store: %v", err)
	}
	defer store.Close()

	// Build the similarity and keyword indexes from the catalog
	idx := index.NewFlat(cfg.Encoder.ONNX.Dimension, cfg.Encoder.ONNX.ModelVersion)
	bm25 := textsearch.NewBM25Engine()

	indexed, err := rebuildIndexes(context.Background(), store, idx, bm25)
	if err != nil {
		log.Fatalf("Failed to rebuild indexes: %v", err)
	}
	fmt.Printf("Indexed %d products from catalog\n", indexed)

	// Create the cache backend
	var searchCache core.Cache
	switch cfg.Cache.Type {
	case "memory":
		mem := cache.NewMemory(cfg.Cache.Capacity, cfg.Cache.CleanupInterval)
		defer mem.Close()
		searchCache = mem
	case "redis":
		rds, err := cache.NewRedis(context.Background(), cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rds.Close()
		searchCache = rds
	}

	// Assemble the search pipeline
	opts := []search.Option{
		search.WithTextSearcher(bm25),
		search.WithProductLookup(store),
	}
	if searchCache != nil {
		opts = append(opts, search.WithCache(searchCache))
	}
	if cfg.Attributes.Endpoint != "" {
		extractor, err := attributes.NewClient(cfg.Attributes)
		if err != nil {
			log.Fatalf("Failed to create attribute extractor: %v", err)
		}
		opts = append(opts, search.WithAttributeExtractor(extractor))
	}

	orchestrator := search.NewOrchestrator(gate, idx, cfg.Pipeline, opts...)

	// Create API server
	server := api.NewServer(orchestrator, store, idx, bm25, gate, cfg.Server.ToServerConfig())

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	fmt.Println("Server stopped gracefully")
}

// rebuildIndexes loads every catalog product into the similarity and
// keyword indexes. Products without embeddings are skipped; they were
// ingested before embedding generation and are invisible to visual
// search until re-ingested.
func rebuildIndexes(ctx context.Context, store catalog.Store, idx *index.Flat, bm25 *textsearch.BM25Engine) (int, error) {
	products, err := store.ListProducts(ctx)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, product := range products {
		if product.Embedding == nil {
			log.Printf("Skipping product %s: no embedding", product.ID)
			continue
		}
		if err := idx.Add(product); err != nil {
			log.Printf("Skipping product %s: %v", product.ID, err)
			continue
		}
		bm25.IndexProduct(product)
		indexed++
	}
	return indexed, nil
}
