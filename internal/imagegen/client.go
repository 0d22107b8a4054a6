// Package imagegen is the client for the cover image generation API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://ark.cn-beijing.volces.com"

// Supported aspect ratios and the pixel sizes the API expects for them.
var ratioSizes = map[string]string{
	"2.35:1": "3072x1308",
	"1:1":    "2048x2048",
	"9:16":   "1440x2560",
	"3:4":    "1728x2304",
}

// DefaultRatio is used when a request does not name an aspect ratio.
const DefaultRatio = "2.35:1"

// SizeForRatio maps an aspect ratio to the pixel size the API accepts. The
// coarse tiers 1k/2k/4k pass through untouched; anything else falls back to
// the square size.
func SizeForRatio(ratio string) string {
	if size, ok := ratioSizes[ratio]; ok {
		return size
	}
	switch ratio {
	case "1k", "2k", "4k":
		return ratio
	}
	return ratioSizes["1:1"]
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client calls an Ark-compatible image generations endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new image generation client.
func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
	Stream         bool   `json:"stream"`
	Watermark      bool   `json:"watermark"`
	SequentialMode string `json:"sequential_image_generation"`
}

type generationResponse struct {
	Data []struct {
		URL  string `json:"url"`
		Size string `json:"size"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Result is one generated image.
type Result struct {
	ImageURL string
	Size     string
}

// Generate renders one image for prompt at the given pixel size.
func (c *Client) Generate(ctx context.Context, prompt, size string) (*Result, error) {
	body, err := json.Marshal(generationRequest{
		Model:          c.model,
		Prompt:         prompt,
		Size:           size,
		ResponseFormat: "url",
		SequentialMode: "disabled",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result generationResponse
	if resp.StatusCode != http.StatusOK {
		if err := json.Unmarshal(respBody, &result); err == nil && result.Error != nil {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, result.Error.Message)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return nil, fmt.Errorf("empty generation response")
	}

	got := result.Data[0]
	if got.Size == "" {
		got.Size = size
	}
	return &Result{ImageURL: got.URL, Size: got.Size}, nil
}
