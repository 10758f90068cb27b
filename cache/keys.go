package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/smartshopper/visearch/core"
)

// ContentHash returns the hex-encoded SHA-256 of the given bytes. It is
// the content fingerprint used for embedding cache keys and request
// fingerprints.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EmbeddingKey builds the cache key for an image embedding. Keyed by
// content hash plus model version, so a model rollout never serves
// stale vectors.
func EmbeddingKey(image []byte, modelVersion string) string {
	return fmt.Sprintf("emb:%s:%s", modelVersion, ContentHash(image))
}

// ResultKey builds the cache key for a finished search result from a
// canonical fingerprint of the full request: image hash or text query,
// filters and top_k.
func ResultKey(req core.SearchRequest) string {
	h := sha256.New()

	if req.HasImage() {
		h.Write([]byte("img:" + ContentHash(req.ImageBytes)))
	}
	h.Write([]byte("|"))
	if req.HasText() {
		h.Write([]byte("txt:" + req.TextQuery))
	}
	h.Write([]byte("|"))

	f := req.Filters
	h.Write([]byte(fmt.Sprintf("cat:%s|brand:%s|stock:%t|", f.Category, f.Brand, f.InStockOnly)))
	if f.MinPrice != nil {
		h.Write([]byte(fmt.Sprintf("min:%.4f|", *f.MinPrice)))
	}
	if f.MaxPrice != nil {
		h.Write([]byte(fmt.Sprintf("max:%.4f|", *f.MaxPrice)))
	}

	h.Write([]byte(fmt.Sprintf("k:%d", req.TopK)))

	return "result:" + hex.EncodeToString(h.Sum(nil))
}
