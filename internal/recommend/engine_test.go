// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package recommend

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/tomtom215/savora/internal/catalog"
	"github.com/tomtom215/savora/internal/logging"
	"github.com/tomtom215/savora/internal/monitor"
	"github.com/tomtom215/savora/internal/ranking"
	"github.com/tomtom215/savora/internal/search"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type fakeSearcher struct {
	results   []search.Result
	err       error
	lastLimit int
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, limit int) ([]search.Result, error) {
	f.lastLimit = limit
	return f.results, f.err
}

type fakeTranslator struct {
	language string
	err      error
}

func (f *fakeTranslator) DetectAndNormalize(_ context.Context, text string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	lang := f.language
	if lang == "" {
		lang = "en"
	}
	return text, lang, nil
}

func (f *fakeTranslator) TranslateRecipe(_ context.Context, r catalog.Recipe, lang string) (catalog.Recipe, error) {
	if lang != "en" {
		r.Name = r.Name + " (" + lang + ")"
	}
	return r, nil
}

type fakeCatalog struct {
	recipes map[string]catalog.Recipe
	ratings []ranking.Rating
}

func (f *fakeCatalog) GetMany(_ context.Context, ids []string) ([]catalog.Recipe, error) {
	out := make([]catalog.Recipe, 0, len(ids))
	for _, id := range ids {
		if r, ok := f.recipes[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Ratings(_ context.Context) ([]ranking.Rating, error) {
	return f.ratings, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		recipes: map[string]catalog.Recipe{
			"pasta": {ID: "pasta", Name: "Pasta Carbonara"},
			"tacos": {ID: "tacos", Name: "Street Tacos"},
			"soup":  {ID: "soup", Name: "Tom Yum Soup"},
		},
		ratings: []ranking.Rating{
			{ID: "pasta", Value: 5.0, Known: true},
			{ID: "tacos", Value: 2.5, Known: true},
			{ID: "soup"},
		},
	}
}

func newTestEngine(t *testing.T, embedder Embedder, searcher Searcher,
	translator Translator, store CatalogStore) *Engine {
	t.Helper()

	collector, err := monitor.NewCollector(monitor.CollectorConfig{},
		logging.NewTestLogger(os.Stderr))
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	t.Cleanup(func() { _ = collector.Close() })

	e, err := NewEngine(context.Background(), DefaultConfig(), embedder, searcher,
		translator, store, collector, logging.NewTestLogger(os.Stderr))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestEngine_RecommendFullPipeline(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{
		{ID: "pasta", Score: 0.9},
		{ID: "tacos", Score: 0.8},
		{ID: "soup", Score: 0.7},
	}}
	e := newTestEngine(t, &fakeEmbedder{vector: []float32{0.1, 0.2}},
		searcher, &fakeTranslator{}, testCatalog())

	resp, err := e.Recommend(context.Background(), "comfort food", 2)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Count != 2 || len(resp.Results) != 2 {
		t.Fatalf("Count = %d, want 2", resp.Count)
	}
	// Overfetch: 2 requested, multiplier 2 means 4 candidates pulled.
	if searcher.lastLimit != 4 {
		t.Errorf("search limit = %d, want 4", searcher.lastLimit)
	}
	// Highest semantic score plus top rating must win.
	if resp.Results[0].Recipe.ID != "pasta" {
		t.Errorf("top result = %s, want pasta", resp.Results[0].Recipe.ID)
	}
	if resp.Results[0].Score < resp.Results[1].Score {
		t.Error("results are not score-descending")
	}
	if resp.Language != "en" {
		t.Errorf("Language = %q, want en", resp.Language)
	}
}

func TestEngine_EmptyCandidatesIsSuccess(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{vector: []float32{0.1}},
		&fakeSearcher{results: nil}, &fakeTranslator{}, testCatalog())

	resp, err := e.Recommend(context.Background(), "unobtainium stew", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v, want success with empty results", err)
	}
	if resp.Count != 0 || resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("response = %+v, want empty non-nil results", resp)
	}
}

func TestEngine_TranslatesResultsToQueryLanguage(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{vector: []float32{0.1}},
		&fakeSearcher{results: []search.Result{{ID: "pasta", Score: 0.9}}},
		&fakeTranslator{language: "es"}, testCatalog())

	resp, err := e.Recommend(context.Background(), "pasta cremosa", 1)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Language != "es" {
		t.Errorf("Language = %q, want es", resp.Language)
	}
	if resp.Results[0].Recipe.Name != "Pasta Carbonara (es)" {
		t.Errorf("recipe name = %q, want translated", resp.Results[0].Recipe.Name)
	}
}

func TestEngine_BackendFailuresPropagate(t *testing.T) {
	tests := []struct {
		name       string
		embedder   Embedder
		searcher   Searcher
		translator Translator
	}{
		{
			name:       "translator down",
			embedder:   &fakeEmbedder{vector: []float32{0.1}},
			searcher:   &fakeSearcher{},
			translator: &fakeTranslator{err: errors.New("translation backend down")},
		},
		{
			name:       "embedder down",
			embedder:   &fakeEmbedder{err: errors.New("embedding backend down")},
			searcher:   &fakeSearcher{},
			translator: &fakeTranslator{},
		},
		{
			name:       "search down",
			embedder:   &fakeEmbedder{vector: []float32{0.1}},
			searcher:   &fakeSearcher{err: errors.New("qdrant unreachable")},
			translator: &fakeTranslator{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.embedder, tt.searcher, tt.translator, testCatalog())
			if _, err := e.Recommend(context.Background(), "anything", 3); err == nil {
				t.Error("Recommend() error = nil, want propagated backend error")
			}
		})
	}
}

func TestEngine_LimitClamping(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newTestEngine(t, &fakeEmbedder{vector: []float32{0.1}},
		searcher, &fakeTranslator{}, testCatalog())

	tests := []struct {
		name      string
		limit     int
		wantFetch int
	}{
		{name: "zero uses default", limit: 0, wantFetch: 10},
		{name: "negative uses default", limit: -3, wantFetch: 10},
		{name: "over max is capped", limit: 500, wantFetch: 100},
		{name: "in range passes through", limit: 7, wantFetch: 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Recommend(context.Background(), "query", tt.limit); err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			if searcher.lastLimit != tt.wantFetch {
				t.Errorf("search limit = %d, want %d", searcher.lastLimit, tt.wantFetch)
			}
		})
	}
}

func TestEngine_RefreshPopularityChangesRanking(t *testing.T) {
	store := testCatalog()
	searcher := &fakeSearcher{results: []search.Result{
		{ID: "pasta", Score: 0.5},
		{ID: "tacos", Score: 0.5},
	}}
	e := newTestEngine(t, &fakeEmbedder{vector: []float32{0.1}},
		searcher, &fakeTranslator{}, store)

	resp, err := e.Recommend(context.Background(), "dinner", 2)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Results[0].Recipe.ID != "pasta" {
		t.Fatalf("top result = %s, want pasta on popularity tiebreak", resp.Results[0].Recipe.ID)
	}

	// Flip the ratings and rebuild the baseline.
	store.ratings = []ranking.Rating{
		{ID: "pasta", Value: 1.0, Known: true},
		{ID: "tacos", Value: 5.0, Known: true},
	}
	if err := e.RefreshPopularity(context.Background()); err != nil {
		t.Fatalf("RefreshPopularity() error = %v", err)
	}

	resp, err = e.Recommend(context.Background(), "dinner", 2)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Results[0].Recipe.ID != "tacos" {
		t.Errorf("top result after refresh = %s, want tacos", resp.Results[0].Recipe.ID)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "negative alpha", mutate: func(c *Config) { c.Alpha = -0.1 }, wantErr: true},
		{name: "weights exceed one", mutate: func(c *Config) { c.Alpha = 0.8; c.Beta = 0.5 }, wantErr: true},
		{name: "zero default limit", mutate: func(c *Config) { c.DefaultLimit = 0 }, wantErr: true},
		{name: "max below default", mutate: func(c *Config) { c.MaxLimit = 1 }, wantErr: true},
		{name: "zero multiplier", mutate: func(c *Config) { c.CandidateMultiplier = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
