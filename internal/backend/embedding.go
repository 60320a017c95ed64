// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package backend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/savora/internal/cache"
)

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Dims    int           `koanf:"dims"`

	// CacheSize and CacheTTL tune the per-query embedding cache. Zero
	// values fall back to the cache package defaults.
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// EmbeddingClient calls the sentence-embedding backend over HTTP. Query
// vectors are memoized in an LRU cache keyed on the normalized text, so
// popular queries hit the backend once per TTL.
type EmbeddingClient struct {
	baseURL    string
	dims       int
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
	cache      *cache.LRU[[]float32]
	logger     zerolog.Logger
}

// NewEmbeddingClient builds a breaker-protected embedding client.
func NewEmbeddingClient(cfg EmbeddingConfig, logger zerolog.Logger) (*EmbeddingClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend: embedding url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &EmbeddingClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		dims:       cfg.Dims,
		httpClient: &http.Client{Timeout: timeout},
		cb:         newBreaker("embedding-backend"),
		cache:      cache.NewLRU[[]float32](cfg.CacheSize, cfg.CacheTTL),
		logger:     logger.With().Str("component", "embedding_client").Logger(),
	}, nil
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed converts text into a dense vector. The returned vector length is
// validated against the configured dimension when one is set.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := c.cache.Get(text); ok {
		return vector, nil
	}

	payload, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	body, err := execute(c.cb, "embedding-backend", func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/embed", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embed request: %w", err)
		}
		return readResponse(resp)
	})
	if err != nil {
		return nil, err
	}

	var out embedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding backend returned empty vector")
	}
	if c.dims > 0 && len(out.Embedding) != c.dims {
		return nil, fmt.Errorf("embedding backend returned %d dims, expected %d",
			len(out.Embedding), c.dims)
	}

	c.cache.Add(text, out.Embedding)
	return out.Embedding, nil
}

// Healthy probes the backend health endpoint.
func (c *EmbeddingClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
