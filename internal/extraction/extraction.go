// Package extraction defines the snippet extraction adapter and its HTTP
// client. Extraction turns one source file into zero or more snippet
// candidates; whether that happens via an LLM, heuristics, or a parsing
// service is hidden behind the Extractor interface.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrExtraction wraps adapter-level extraction failures.
var ErrExtraction = errors.New("extraction failed")

// FileInput is one source file handed to the extractor.
type FileInput struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// Candidate is one snippet proposed by the extractor, before it gets an
// identity or a vector.
type Candidate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Language    string `json:"language,omitempty"`
}

// Extractor proposes snippet candidates for a single file. An empty result
// with a nil error means the file contained nothing worth keeping.
type Extractor interface {
	Extract(ctx context.Context, in FileInput) ([]Candidate, error)
}

// Config configures the HTTP extraction client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps outbound calls; zero disables the limiter.
	RequestsPerSecond float64
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	return nil
}

// Client calls a snippet extraction service over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an extraction client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

type extractResponse struct {
	Snippets []Candidate `json:"snippets"`
}

// Extract posts the file to the extraction service and decodes the
// proposed candidates. Calls are paced by the configured rate limit.
func (c *Client) Extract(ctx context.Context, in FileInput) ([]Candidate, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrExtraction, err)
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrExtraction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrExtraction, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: service returned %d: %s", ErrExtraction, resp.StatusCode, msg)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExtraction, err)
	}
	return out.Snippets, nil
}
