package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartshopper/visearch/catalog"
	"github.com/smartshopper/visearch/core"
	"github.com/smartshopper/visearch/index"
	"github.com/smartshopper/visearch/search"
	"github.com/smartshopper/visearch/textsearch"
)

const (
	testDim   = 4
	testModel = "clip-test-v1"
)

// fakeJPEG carries the JPEG magic so upload validation accepts it
var fakeJPEG = append([]byte{0xFF, 0xD8, 0xFF}, []byte("test-image-payload")...)

type testEncoder struct {
	err error
}

func (e *testEncoder) EmbedImage(ctx context.Context, image []byte) (core.Embedding, error) {
	if e.err != nil {
		return core.Embedding{}, e.err
	}
	return core.Embedding{Values: []float32{1, 0, 0, 0}, ModelVersion: testModel}, nil
}

func (e *testEncoder) EmbedText(ctx context.Context, text string) (core.Embedding, error) {
	if e.err != nil {
		return core.Embedding{}, e.err
	}
	return core.Embedding{Values: []float32{0, 1, 0, 0}, ModelVersion: testModel}, nil
}

func (e *testEncoder) Dimension() int       { return testDim }
func (e *testEncoder) ModelVersion() string { return testModel }

func newTestServer(enc core.Encoder) *Server {
	store := catalog.NewMemoryStore()
	idx := index.NewFlat(testDim, testModel)
	bm25 := textsearch.NewBM25Engine()

	orchestrator := search.NewOrchestrator(enc, idx, search.DefaultConfig(),
		search.WithTextSearcher(bm25),
		search.WithProductLookup(store),
	)

	return NewServer(orchestrator, store, idx, bm25, enc, DefaultServerConfig())
}

func TestAPIEndpoints(t *testing.T) {
	server := newTestServer(&testEncoder{})

	t.Run("Health", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/health", nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
		}

		var response HealthResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Errorf("failed to unmarshal response: %v", err)
		}

		if response.Status != "healthy" {
			t.Errorf("expected status 'healthy', got %s", response.Status)
		}
		if response.ModelVersion != testModel {
			t.Errorf("expected model version %s, got %s", testModel, response.ModelVersion)
		}
	})

	t.Run("AddProduct", func(t *testing.T) {
		product := core.Product{
			ID:       "prod-1",
			Name:     "red running shoes",
			Category: "shoes",
			Price:    79.99,
			InStock:  true,
			Embedding: &core.Embedding{
				Values:       []float32{1, 0, 0, 0},
				ModelVersion: testModel,
			},
		}

		body, _ := json.Marshal(product)
		req, err := http.NewRequest("POST", "/products", bytes.NewBuffer(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusCreated {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusCreated)
			t.Errorf("Response body: %s", rr.Body.String())
		}
		if server.index.Size() != 1 {
			t.Errorf("expected index size 1, got %d", server.index.Size())
		}
	})

	t.Run("AddProductWithoutEmbedding", func(t *testing.T) {
		product := core.Product{
			Name:     "blue canvas sneakers",
			Category: "shoes",
			Price:    49.99,
			InStock:  true,
		}

		body, _ := json.Marshal(product)
		req, err := http.NewRequest("POST", "/products", bytes.NewBuffer(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusCreated {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusCreated)
		}

		var created core.Product
		if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if created.ID == "" {
			t.Error("expected a generated product ID")
		}
		if server.index.Size() != 2 {
			t.Errorf("expected index size 2, got %d", server.index.Size())
		}
	})

	t.Run("GetProduct", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/products/prod-1", nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
		}

		var product core.Product
		if err := json.Unmarshal(rr.Body.Bytes(), &product); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if product.Name != "red running shoes" {
			t.Errorf("unexpected product name: %s", product.Name)
		}
		if product.Embedding != nil {
			t.Error("embedding must not leak into responses")
		}
	})

	t.Run("GetProductNotFound", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/products/missing", nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusNotFound {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusNotFound)
		}
	})

	t.Run("SearchJSON", func(t *testing.T) {
		body, _ := json.Marshal(SearchRequestBody{
			ImageBase64: base64.StdEncoding.EncodeToString(fakeJPEG),
			TopK:        5,
		})
		req, err := http.NewRequest("POST", "/search", bytes.NewBuffer(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
			t.Errorf("Response body: %s", rr.Body.String())
		}

		var response SearchResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if len(response.Items) == 0 {
			t.Fatal("expected at least one result")
		}
		if response.Items[0].Product == nil {
			t.Error("expected results enriched with product records")
		}
	})

	t.Run("SearchMultipart", func(t *testing.T) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		part, err := writer.CreateFormFile("image", "query.jpg")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(fakeJPEG); err != nil {
			t.Fatal(err)
		}
		if err := writer.WriteField("category", "shoes"); err != nil {
			t.Fatal(err)
		}
		if err := writer.WriteField("top_k", "3"); err != nil {
			t.Fatal(err)
		}
		writer.Close()

		req, err := http.NewRequest("POST", "/search", &buf)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
			t.Errorf("Response body: %s", rr.Body.String())
		}
	})

	t.Run("SearchWithoutInputs", func(t *testing.T) {
		body, _ := json.Marshal(SearchRequestBody{TopK: 5})
		req, err := http.NewRequest("POST", "/search", bytes.NewBuffer(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusBadRequest {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
		}
	})

	t.Run("SearchBadImage", func(t *testing.T) {
		body, _ := json.Marshal(SearchRequestBody{
			ImageBase64: base64.StdEncoding.EncodeToString([]byte("not an image")),
		})
		req, err := http.NewRequest("POST", "/search", bytes.NewBuffer(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusBadRequest {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/stats", nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
		}
	})

	t.Run("DeleteProduct", func(t *testing.T) {
		req, err := http.NewRequest("DELETE", "/products/prod-1", nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		server.router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
		}
		if server.index.Size() != 1 {
			t.Errorf("expected index size 1 after delete, got %d", server.index.Size())
		}
	})
}

func TestSearchEncoderOverloadReturns503(t *testing.T) {
	server := newTestServer(&testEncoder{err: core.ErrOverloaded})

	body, _ := json.Marshal(SearchRequestBody{
		ImageBase64: base64.StdEncoding.EncodeToString(fakeJPEG),
	})
	req, err := http.NewRequest("POST", "/search", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusServiceUnavailable {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusServiceUnavailable)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on overload")
	}
}
