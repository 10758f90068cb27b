package attributes

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smartshopper/visearch/core"
)

// Config configures the vision-language attribute service client
type Config struct {
	// Endpoint is the attribute service URL; empty means the capability
	// is absent and no extractor is constructed
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey authenticates against the service, if it requires one
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout bounds a single extraction call. This is the slowest
	// external dependency in the pipeline; it must never run unbounded.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// extractRequest is the payload sent to the attribute service
type extractRequest struct {
	Image    string `json:"image"`
	MimeType string `json:"mime_type"`
}

// Client calls an external vision-language service to derive structured
// product attributes from an image. Every failure wraps
// core.ErrAttributeExtraction; callers treat it as a degradation, never
// a request failure.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates an attribute service client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("attribute service endpoint is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Extract sends the image and parses the structured attributes the
// service returns
func (c *Client) Extract(ctx context.Context, image []byte) (core.AttributeSet, error) {
	payload, err := json.Marshal(extractRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		MimeType: "image/" + string(core.DetectImageFormat(image)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAttributeExtraction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAttributeExtraction, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAttributeExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: service returned %d: %s", core.ErrAttributeExtraction, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAttributeExtraction, err)
	}

	attrs, err := ParseAttributes(body)
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// ParseAttributes turns a service response into an AttributeSet. Model
// output sometimes arrives wrapped in markdown code fences; those are
// stripped before decoding. List values are comma-joined, nulls and
// nested objects dropped.
func ParseAttributes(body []byte) (core.AttributeSet, error) {
	text := stripFences(strings.TrimSpace(string(body)))

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: unparseable response: %v", core.ErrAttributeExtraction, err)
	}

	attrs := make(core.AttributeSet, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			if v != "" {
				attrs[key] = v
			}
		case float64:
			attrs[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			attrs[key] = strconv.FormatBool(v)
		case []interface{}:
			var parts []string
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				attrs[key] = strings.Join(parts, ", ")
			}
		}
	}

	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: response contained no usable attributes", core.ErrAttributeExtraction)
	}
	return attrs, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
