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

	"github.com/tomtom215/savora/internal/catalog"
)

// LanguageEnglish is the catalog's canonical language. Queries are
// normalized to it before embedding and recipes are translated back out.
const LanguageEnglish = "en"

// TranslationConfig holds translation backend settings.
type TranslationConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Enabled bool          `koanf:"enabled"`
}

// TranslationClient calls the translation backend over HTTP. A disabled
// client is a pass-through: every text is treated as English and recipes are
// returned untranslated, so callers never branch on the config flag.
type TranslationClient struct {
	enabled    bool
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger
}

// NewTranslationClient builds a breaker-protected translation client. When
// cfg.Enabled is false the URL may be empty and no HTTP calls are made.
func NewTranslationClient(cfg TranslationConfig, logger zerolog.Logger) (*TranslationClient, error) {
	clog := logger.With().Str("component", "translation_client").Logger()
	if !cfg.Enabled {
		clog.Info().Msg("Translation disabled, serving English pass-through")
		return &TranslationClient{logger: clog}, nil
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend: translation url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &TranslationClient{
		enabled:    true,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cb:         newBreaker("translation-backend"),
		logger:     clog,
	}, nil
}

type normalizeRequest struct {
	Text string `json:"text"`
}

type normalizeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// DetectAndNormalize detects the query language and returns the English
// form of the text along with the detected language code. English input
// passes through unchanged.
func (c *TranslationClient) DetectAndNormalize(ctx context.Context, text string) (string, string, error) {
	if !c.enabled {
		return text, LanguageEnglish, nil
	}

	payload, err := json.Marshal(normalizeRequest{Text: text})
	if err != nil {
		return "", "", fmt.Errorf("marshal normalize request: %w", err)
	}

	body, err := c.post(ctx, "/normalize", payload)
	if err != nil {
		return "", "", err
	}

	var out normalizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", fmt.Errorf("decode normalize response: %w", err)
	}
	if out.Language == "" {
		out.Language = LanguageEnglish
	}
	return out.Text, out.Language, nil
}

type translateRecipeRequest struct {
	Recipe         catalog.Recipe `json:"recipe"`
	TargetLanguage string         `json:"target_language"`
}

// TranslateRecipe renders a recipe into the target language. English
// targets short-circuit without a backend round trip.
func (c *TranslationClient) TranslateRecipe(ctx context.Context, recipe catalog.Recipe, targetLang string) (catalog.Recipe, error) {
	if !c.enabled || targetLang == "" || targetLang == LanguageEnglish {
		return recipe, nil
	}

	payload, err := json.Marshal(translateRecipeRequest{
		Recipe:         recipe,
		TargetLanguage: targetLang,
	})
	if err != nil {
		return catalog.Recipe{}, fmt.Errorf("marshal translate request: %w", err)
	}

	body, err := c.post(ctx, "/translate", payload)
	if err != nil {
		return catalog.Recipe{}, err
	}

	var out catalog.Recipe
	if err := json.Unmarshal(body, &out); err != nil {
		return catalog.Recipe{}, fmt.Errorf("decode translate response: %w", err)
	}
	// The backend translates text fields only; identity and rating stay ours.
	out.ID = recipe.ID
	out.Rating = recipe.Rating
	return out, nil
}

func (c *TranslationClient) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return execute(c.cb, "translation-backend", func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", path, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request: %w", path, err)
		}
		return readResponse(resp)
	})
}

// Healthy probes the backend health endpoint. A disabled client has no
// backend to be unhealthy.
func (c *TranslationClient) Healthy(ctx context.Context) bool {
	if !c.enabled {
		return true
	}
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
