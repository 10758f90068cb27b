package core

import (
	"bytes"
	"fmt"
)

const (
	// MaxTopK caps the number of results a single request may ask for
	MaxTopK = 100

	// DefaultTopK is applied when a request does not specify top_k
	DefaultTopK = 10
)

// ValidateSearchRequest checks a request before any work is dispatched.
// All failures wrap ErrValidation.
func ValidateSearchRequest(req *SearchRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrValidation)
	}
	if !req.HasImage() && !req.HasText() {
		return fmt.Errorf("%w: at least one of image or text query is required", ErrValidation)
	}
	if req.TopK < 0 {
		return fmt.Errorf("%w: top_k must not be negative", ErrValidation)
	}
	if req.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k %d exceeds maximum %d", ErrValidation, req.TopK, MaxTopK)
	}
	if req.TopK == 0 {
		req.TopK = DefaultTopK
	}
	if req.Filters.MinPrice != nil && *req.Filters.MinPrice < 0 {
		return fmt.Errorf("%w: min_price must not be negative", ErrValidation)
	}
	if req.Filters.MinPrice != nil && req.Filters.MaxPrice != nil && *req.Filters.MinPrice > *req.Filters.MaxPrice {
		return fmt.Errorf("%w: min_price exceeds max_price", ErrValidation)
	}
	return nil
}

// ImageFormat identifies a recognized image container
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatWebP    ImageFormat = "webp"
	FormatUnknown ImageFormat = ""
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// DetectImageFormat sniffs the image container from magic bytes
func DetectImageFormat(data []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpMagic):
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// ValidateImage rejects malformed or oversized input before it can
// occupy the encoder queue. Failures wrap ErrEncoding.
func ValidateImage(data []byte, maxBytes int) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty image", ErrEncoding)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return fmt.Errorf("%w: image of %d bytes exceeds limit %d", ErrEncoding, len(data), maxBytes)
	}
	if DetectImageFormat(data) == FormatUnknown {
		return fmt.Errorf("%w: unrecognized image format", ErrEncoding)
	}
	return nil
}
