// Package apiclient is a typed HTTP client for the writeflow REST API. Its
// fetchers satisfy stream.FetchFunc so a settled stream completion can be
// reconciled against the persisted record.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/writeflow-dev/writeflow/internal/domain"
	"github.com/writeflow-dev/writeflow/internal/stream"
)

// Client issues requests against a writeflow server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// New creates a client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return stream.ErrRecordNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return stream.ErrRecordNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetRewrite fetches one rewrite record.
func (c *Client) GetRewrite(ctx context.Context, id int64) (*domain.RewriteRecord, error) {
	var rec domain.RewriteRecord
	if err := c.getJSON(ctx, fmt.Sprintf("/api/rewrites/%d", id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetReview fetches one review record.
func (c *Client) GetReview(ctx context.Context, id int64) (*domain.ReviewRecord, error) {
	var rec domain.ReviewRecord
	if err := c.getJSON(ctx, fmt.Sprintf("/api/reviews/%d", id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetStyle fetches one writing style.
func (c *Client) GetStyle(ctx context.Context, id int64) (*domain.WritingStyle, error) {
	var rec domain.WritingStyle
	if err := c.getJSON(ctx, fmt.Sprintf("/api/styles/%d", id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetCover fetches one cover record.
func (c *Client) GetCover(ctx context.Context, id int64) (*domain.CoverRecord, error) {
	var rec domain.CoverRecord
	if err := c.getJSON(ctx, fmt.Sprintf("/api/covers/%d", id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListStyles fetches all saved writing styles.
func (c *Client) ListStyles(ctx context.Context) ([]*domain.WritingStyle, error) {
	var out []*domain.WritingStyle
	if err := c.getJSON(ctx, "/api/styles", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteStyle removes one saved writing style.
func (c *Client) DeleteStyle(ctx context.Context, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/api/styles/%d", c.baseURL, id), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete style %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return stream.ErrRecordNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("delete style %d: status %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// ResumeWorkflow resumes a paused workflow. Empty editedContent skips
// straight to cover generation.
func (c *Client) ResumeWorkflow(ctx context.Context, rewriteID int64, editedContent, editNote string) error {
	body := map[string]any{
		"rewrite_id":     rewriteID,
		"edited_content": editedContent,
		"edit_note":      editNote,
	}
	return c.postJSON(ctx, "/api/reviews/workflow/resume", body, nil)
}
