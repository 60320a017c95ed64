// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package recommend runs the recommendation pipeline: normalize the query,
// embed it, retrieve similar recipes, blend scores with the hybrid ranker,
// hydrate from the catalog, and translate results back into the query
// language. External backend failures propagate to the caller; metric
// recording is best-effort and never fails a request.
package recommend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/savora/internal/catalog"
	"github.com/tomtom215/savora/internal/metrics"
	"github.com/tomtom215/savora/internal/monitor"
	"github.com/tomtom215/savora/internal/ranking"
	"github.com/tomtom215/savora/internal/search"
)

// Embedder converts query text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves the nearest recipes to a query vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]search.Result, error)
}

// Translator handles query language detection and result translation.
type Translator interface {
	DetectAndNormalize(ctx context.Context, text string) (normalized, language string, err error)
	TranslateRecipe(ctx context.Context, recipe catalog.Recipe, targetLang string) (catalog.Recipe, error)
}

// CatalogStore hydrates recipes and supplies the popularity baseline.
type CatalogStore interface {
	GetMany(ctx context.Context, ids []string) ([]catalog.Recipe, error)
	Ratings(ctx context.Context) ([]ranking.Rating, error)
}

// Config tunes the pipeline.
type Config struct {
	Alpha float64 `koanf:"alpha"`
	Beta  float64 `koanf:"beta"`

	// DefaultLimit applies when a request asks for zero results;
	// MaxLimit caps what a request may ask for.
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`

	// CandidateMultiplier controls retrieval overfetch so ranking has
	// room to reorder beyond the requested page.
	CandidateMultiplier int `koanf:"candidate_multiplier"`
}

// DefaultConfig returns production pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:               0.6,
		Beta:                0.2,
		DefaultLimit:        5,
		MaxLimit:            50,
		CandidateMultiplier: 2,
	}
}

// Validate checks the config against ranker constraints.
func (c Config) Validate() error {
	if err := (ranking.Params{Alpha: c.Alpha, Beta: c.Beta}).Validate(); err != nil {
		return err
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("recommend: default_limit must be positive")
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("recommend: max_limit must be >= default_limit")
	}
	if c.CandidateMultiplier < 1 {
		return fmt.Errorf("recommend: candidate_multiplier must be >= 1")
	}
	return nil
}

// ScoredRecipe is one recommendation: the hydrated recipe and its blended
// relevance score.
type ScoredRecipe struct {
	Recipe catalog.Recipe `json:"recipe"`
	Score  float64        `json:"score"`
}

// Response is one recommendation result set.
type Response struct {
	Query     string         `json:"query"`
	Language  string         `json:"language"`
	Results   []ScoredRecipe `json:"results"`
	Count     int            `json:"count"`
	LatencyMS float64        `json:"latency_ms"`
}

// Engine coordinates the recommendation pipeline. It is safe for
// concurrent use.
type Engine struct {
	config     Config
	embedder   Embedder
	searcher   Searcher
	translator Translator
	catalog    CatalogStore
	collector  *monitor.Collector
	logger     zerolog.Logger

	popMu      sync.RWMutex
	popularity ranking.PopularityTable

	now func() time.Time
}

// NewEngine wires the pipeline and builds the initial popularity baseline
// from the catalog.
func NewEngine(ctx context.Context, cfg Config, embedder Embedder, searcher Searcher,
	translator Translator, store CatalogStore, collector *monitor.Collector,
	logger zerolog.Logger) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		config:     cfg,
		embedder:   embedder,
		searcher:   searcher,
		translator: translator,
		catalog:    store,
		collector:  collector,
		logger:     logger.With().Str("component", "recommend").Logger(),
		now:        time.Now,
	}
	if err := e.RefreshPopularity(ctx); err != nil {
		return nil, fmt.Errorf("build popularity baseline: %w", err)
	}
	return e, nil
}

// RefreshPopularity rebuilds the popularity baseline from current catalog
// ratings. Call it after catalog imports.
func (e *Engine) RefreshPopularity(ctx context.Context) error {
	ratings, err := e.catalog.Ratings(ctx)
	if err != nil {
		return err
	}
	table := ranking.BuildPopularityTable(ratings)

	e.popMu.Lock()
	e.popularity = table
	e.popMu.Unlock()

	e.logger.Debug().Int("recipes", len(table)).Msg("Popularity baseline rebuilt")
	return nil
}

// Recommend runs the full pipeline for one query. A query that matches
// nothing returns an empty result set, not an error; failures of the
// embedding, search, catalog, or translation dependencies propagate.
func (e *Engine) Recommend(ctx context.Context, query string, limit int) (*Response, error) {
	start := e.now()

	limit = e.clampLimit(limit)
	logger := e.logger.With().Int("limit", limit).Logger()

	normalized, lang, err := e.normalize(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("normalize query: %w", err)
	}

	vector, err := e.embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := e.retrieve(ctx, vector, limit*e.config.CandidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}

	ranked, err := e.rank(candidates, limit)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	if len(ranked) == 0 {
		logger.Debug().Str("language", lang).Msg("No candidates for query")
		resp := e.finishResponse(query, lang, []ScoredRecipe{}, start)
		return resp, nil
	}

	results, err := e.hydrate(ctx, ranked, lang)
	if err != nil {
		return nil, err
	}

	resp := e.finishResponse(query, lang, results, start)
	logger.Debug().Str("language", lang).Int("results", resp.Count).
		Float64("latency_ms", resp.LatencyMS).Msg("Recommendation served")
	return resp, nil
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		return e.config.MaxLimit
	}
	return limit
}

func (e *Engine) normalize(ctx context.Context, query string) (string, string, error) {
	stage := e.now()
	text, lang, err := e.translator.DetectAndNormalize(ctx, query)
	metrics.RecordPipelineStage("normalize", e.now().Sub(stage), err)
	if err != nil {
		return "", "", err
	}
	e.record(monitor.MetricTranslationLatencyMS, msSince(stage, e.now()), nil)
	return text, lang, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	stage := e.now()
	vector, err := e.embedder.Embed(ctx, text)
	metrics.RecordPipelineStage("embed", e.now().Sub(stage), err)
	return vector, err
}

func (e *Engine) retrieve(ctx context.Context, vector []float32, fetch int) ([]ranking.Candidate, error) {
	stage := e.now()
	hits, err := e.searcher.Search(ctx, vector, fetch)
	metrics.RecordPipelineStage("search", e.now().Sub(stage), err)
	if err != nil {
		return nil, err
	}
	e.record(monitor.MetricSearchLatencyMS, msSince(stage, e.now()), nil)

	candidates := make([]ranking.Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, ranking.Candidate{
			ID:            h.ID,
			SemanticScore: h.Score,
		})
	}
	return candidates, nil
}

func (e *Engine) rank(candidates []ranking.Candidate, limit int) ([]ranking.Ranked, error) {
	e.popMu.RLock()
	popularity := e.popularity
	e.popMu.RUnlock()

	stage := e.now()
	ranked, err := ranking.Rank(candidates, popularity, limit,
		ranking.Params{Alpha: e.config.Alpha, Beta: e.config.Beta})
	metrics.RecordPipelineStage("rank", e.now().Sub(stage), err)
	return ranked, err
}

func (e *Engine) hydrate(ctx context.Context, ranked []ranking.Ranked, lang string) ([]ScoredRecipe, error) {
	ids := make([]string, len(ranked))
	scoreByID := make(map[string]float64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
		scoreByID[r.ID] = r.HybridScore
	}

	stage := e.now()
	recipes, err := e.catalog.GetMany(ctx, ids)
	metrics.RecordPipelineStage("hydrate", e.now().Sub(stage), err)
	if err != nil {
		return nil, fmt.Errorf("hydrate recipes: %w", err)
	}

	results := make([]ScoredRecipe, 0, len(recipes))
	for _, recipe := range recipes {
		stage = e.now()
		translated, err := e.translator.TranslateRecipe(ctx, recipe, lang)
		metrics.RecordPipelineStage("translate", e.now().Sub(stage), err)
		if err != nil {
			return nil, fmt.Errorf("translate recipe %s: %w", recipe.ID, err)
		}
		results = append(results, ScoredRecipe{
			Recipe: translated,
			Score:  scoreByID[recipe.ID],
		})
	}
	return results, nil
}

// finishResponse assembles the response and records request metrics.
// Recording never fails the request.
func (e *Engine) finishResponse(query, lang string, results []ScoredRecipe, start time.Time) *Response {
	elapsed := e.now().Sub(start)
	resp := &Response{
		Query:     query,
		Language:  lang,
		Results:   results,
		Count:     len(results),
		LatencyMS: float64(elapsed.Microseconds()) / 1000,
	}

	metrics.RecordRecommendation(elapsed, resp.Count)
	e.record(monitor.MetricRequestLatencyMS, resp.LatencyMS, nil)
	e.record(monitor.MetricRequestCount, 1, nil)
	e.record(monitor.MetricResultCount, float64(resp.Count), nil)
	if resp.Count > 0 {
		sum := 0.0
		for _, r := range results {
			sum += r.Score
		}
		e.record(monitor.MetricHybridScoreMean, sum/float64(resp.Count), nil)
	}
	return resp
}

// RecordRequestError feeds a failed request into the monitoring series.
func (e *Engine) RecordRequestError() {
	e.record(monitor.MetricRequestCount, 1, nil)
	e.record(monitor.MetricRequestErrors, 1, nil)
}

func (e *Engine) record(metric string, value float64, labels map[string]string) {
	if e.collector == nil {
		return
	}
	e.collector.Record(metric, value, labels)
}

func msSince(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
