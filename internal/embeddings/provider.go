// Package embeddings provides embedding generation with caching, a remote
// HTTP provider, and a deterministic fallback.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/vantagekit/vectorsync/internal/resilience"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers. Implementations return
// vectors of their native dimension; the Service normalizes to the store
// dimension.
type Provider interface {
	// Embed generates one embedding per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the provider's native embedding dimension.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// HTTPConfig holds configuration for the HTTP embedding provider.
type HTTPConfig struct {
	// BaseURL is the base URL of the embedding API.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model to request.
	// Default: "BAAI/bge-base-en-v1.5"
	Model string `koanf:"model"`

	// APIKey is the optional bearer token.
	APIKey string `koanf:"api_key"`

	// NativeDimension is the provider's output dimension.
	// Default: 768
	NativeDimension int `koanf:"native_dimension"`

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// ApplyDefaults sets default values for unset fields.
func (c *HTTPConfig) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Model == "" {
		c.Model = "BAAI/bge-base-en-v1.5"
	}
	if c.NativeDimension == 0 {
		c.NativeDimension = 768
	}
}

// Validate validates the configuration.
func (c HTTPConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// HTTPProvider generates embeddings via an HTTP API. A single call with no
// retry; resilience is layered on by the Service. Failures that should be
// retried (HTTP 5xx, 429, transport errors) are marked transient.
type HTTPProvider struct {
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates an HTTP embedding provider.
func NewHTTPProvider(config HTTPConfig) (*HTTPProvider, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &HTTPProvider{
		config:  config,
		client:  &http.Client{},
		limiter: limiter,
	}, nil
}

// embedRequest is the request body for the embed endpoint.
type embedRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

// Embed generates embeddings for the given texts.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(embedRequest{Model: p.config.Model, Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("calling embedding API: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(detail))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.Transient(apiErr)
		}
		return nil, apiErr
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// Dimension returns the provider's native embedding dimension.
func (p *HTTPProvider) Dimension() int {
	return p.config.NativeDimension
}

// Close is a no-op for the HTTP provider.
func (p *HTTPProvider) Close() error {
	return nil
}
