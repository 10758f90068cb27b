package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartshopper/visearch/catalog"
	"github.com/smartshopper/visearch/core"
	"github.com/smartshopper/visearch/search"
)

// TextIndexer maintains the keyword index alongside the catalog
type TextIndexer interface {
	IndexProduct(p core.Product)
	RemoveProduct(productID string)
}

// Server represents the REST API server
type Server struct {
	orchestrator *search.Orchestrator
	store        catalog.Store
	index        core.SimilarityIndex
	texts        TextIndexer
	encoder      core.Encoder
	router       *mux.Router
	httpServer   *http.Server
	config       ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	MaxUploadBytes  int64         `json:"max_upload_bytes"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxUploadBytes:  10 << 20,
	}
}

// NewServer creates a new API server. The text indexer may be nil when
// keyword search is not configured.
func NewServer(
	orchestrator *search.Orchestrator,
	store catalog.Store,
	index core.SimilarityIndex,
	texts TextIndexer,
	encoder core.Encoder,
	config ServerConfig,
) *Server {
	s := &Server{
		orchestrator: orchestrator,
		store:        store,
		index:        index,
		texts:        texts,
		encoder:      encoder,
		config:       config,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(loggingMiddleware)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Search endpoint: JSON or multipart image upload
	s.router.HandleFunc("/search", s.handleSearch).Methods("POST")

	// Product endpoints
	s.router.HandleFunc("/products", s.handleAddProduct).Methods("POST")
	s.router.HandleFunc("/products/{id}", s.handleGetProduct).Methods("GET")
	s.router.HandleFunc("/products/{id}", s.handleDeleteProduct).Methods("DELETE")

	// Stats endpoint
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Printf("Starting visearch API server on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Middleware functions
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Error response helper
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

// JSON response helper
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
