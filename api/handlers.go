package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/smartshopper/visearch/core"
)

// Health check response
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	IndexSize    int       `json:"index_size"`
	ModelVersion string    `json:"model_version"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now(),
		Version:      "1.0.0",
		IndexSize:    s.index.Size(),
		ModelVersion: s.index.ModelVersion(),
	}
	s.respondWithJSON(w, http.StatusOK, response)
}

// Search request/response types
type SearchRequestBody struct {
	ImageBase64 string       `json:"image_base64,omitempty"`
	TextQuery   string       `json:"text_query,omitempty"`
	Filters     core.Filters `json:"filters,omitempty"`
	TopK        int          `json:"top_k,omitempty"`
}

type SearchResponseItem struct {
	core.ResultItem
	Product *core.Product `json:"product,omitempty"`
}

type SearchResponse struct {
	Items              []SearchResponseItem `json:"items"`
	AttributesDegraded bool                 `json:"attributes_degraded,omitempty"`
	TextDegraded       bool                 `json:"text_degraded,omitempty"`
	CacheHit           bool                 `json:"cache_hit,omitempty"`
	TookMs             int64                `json:"took_ms"`
}

// handleSearch runs one visual search. The request is either JSON with a
// base64 image, or multipart/form-data with an "image" file part.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseSearchRequest(r)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.HasImage() {
		if err := core.ValidateImage(req.ImageBytes, int(s.config.MaxUploadBytes)); err != nil {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := s.orchestrator.Search(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrEncoding):
			s.respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrOverloaded):
			w.Header().Set("Retry-After", "1")
			s.respondWithError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.respondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.respondWithJSON(w, http.StatusOK, s.enrichResult(r, result))
}

// parseSearchRequest extracts a search request from either encoding
func (s *Server) parseSearchRequest(r *http.Request) (core.SearchRequest, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		return s.parseMultipartSearch(r)
	}

	var body SearchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return core.SearchRequest{}, errors.New("invalid request body")
	}

	req := core.SearchRequest{
		TextQuery: body.TextQuery,
		Filters:   body.Filters,
		TopK:      body.TopK,
	}
	if body.ImageBase64 != "" {
		image, err := base64.StdEncoding.DecodeString(body.ImageBase64)
		if err != nil {
			return core.SearchRequest{}, errors.New("image_base64 is not valid base64")
		}
		req.ImageBytes = image
	}
	return req, nil
}

func (s *Server) parseMultipartSearch(r *http.Request) (core.SearchRequest, error) {
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		return core.SearchRequest{}, errors.New("invalid multipart form")
	}

	var req core.SearchRequest

	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image, err := io.ReadAll(io.LimitReader(file, s.config.MaxUploadBytes+1))
		if err != nil {
			return core.SearchRequest{}, errors.New("failed to read image upload")
		}
		req.ImageBytes = image
	}

	req.TextQuery = r.FormValue("text_query")
	req.Filters.Category = r.FormValue("category")
	req.Filters.Brand = r.FormValue("brand")

	if v := r.FormValue("min_price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return core.SearchRequest{}, errors.New("min_price is not a number")
		}
		req.Filters.MinPrice = &price
	}
	if v := r.FormValue("max_price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return core.SearchRequest{}, errors.New("max_price is not a number")
		}
		req.Filters.MaxPrice = &price
	}
	if v := r.FormValue("in_stock_only"); v != "" {
		req.Filters.InStockOnly = v == "true" || v == "1"
	}
	if v := r.FormValue("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return core.SearchRequest{}, errors.New("top_k is not a number")
		}
		req.TopK = k
	}

	return req, nil
}

// enrichResult joins ranked IDs back to catalog records. A product
// missing from the store still appears as a bare scored ID.
func (s *Server) enrichResult(r *http.Request, result core.SearchResult) SearchResponse {
	response := SearchResponse{
		Items:              make([]SearchResponseItem, 0, len(result.Items)),
		AttributesDegraded: result.AttributesDegraded,
		TextDegraded:       result.TextDegraded,
		CacheHit:           result.CacheHit,
		TookMs:             result.TookMs,
	}

	for _, item := range result.Items {
		out := SearchResponseItem{ResultItem: item}
		if product, err := s.store.GetProduct(r.Context(), item.ProductID); err == nil {
			product.Embedding = nil
			out.Product = &product
		}
		response.Items = append(response.Items, out)
	}
	return response
}

// handleAddProduct ingests one product: store, similarity index and
// keyword index in one call. A product without an embedding gets one
// encoded from its text fields.
func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var product core.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if product.Name == "" {
		s.respondWithError(w, http.StatusBadRequest, "Product name is required")
		return
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}

	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	if product.Embedding == nil {
		embedding, err := s.encoder.EmbedText(r.Context(), product.TextFields())
		if err != nil {
			if errors.Is(err, core.ErrOverloaded) {
				w.Header().Set("Retry-After", "1")
				s.respondWithError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			s.respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		product.Embedding = &embedding
	}

	if err := s.store.SaveProduct(r.Context(), product); err != nil {
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.index.Add(product); err != nil {
		if errors.Is(err, core.ErrDimensionMismatch) {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
		} else {
			s.respondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if s.texts != nil {
		s.texts.IndexProduct(product)
	}

	product.Embedding = nil
	s.respondWithJSON(w, http.StatusCreated, product)
}

// handleGetProduct returns one product by ID
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	product, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrProductNotFound) {
			s.respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			s.respondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	product.Embedding = nil
	s.respondWithJSON(w, http.StatusOK, product)
}

// handleDeleteProduct removes a product from the store and both indexes
func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.store.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrProductNotFound) {
			s.respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			s.respondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// Index membership mirrors the store; a missing index entry is
	// already the desired end state.
	if err := s.index.Delete(id); err != nil && !errors.Is(err, core.ErrProductNotFound) {
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.texts != nil {
		s.texts.RemoveProduct(id)
	}

	s.respondWithJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// StatsResponse aggregates pipeline and index counters
type StatsResponse struct {
	Search    interface{} `json:"search"`
	IndexSize int         `json:"index_size"`
}

// handleStats returns pipeline statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, StatsResponse{
		Search:    s.orchestrator.Stats(),
		IndexSize: s.index.Size(),
	})
}
