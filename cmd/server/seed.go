// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/savora/internal/catalog"
	"github.com/tomtom215/savora/internal/logging"
	"github.com/tomtom215/savora/internal/metrics"
	"github.com/tomtom215/savora/internal/search"
)

// indexBatchSize bounds memory while embedding the seed file; the embedding
// backend is called once per recipe regardless.
const indexBatchSize = 64

// embedder is the slice of the embedding client the seeder needs.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// indexer is the slice of the search client the seeder needs.
type indexer interface {
	Upsert(ctx context.Context, points []search.Point) error
}

// seedCatalog imports recipes from a JSON file into the catalog and indexes
// their embeddings into the vector collection. Re-running with the same file
// is safe: catalog keys and vector point IDs are both derived from the
// recipe ID, so existing entries are overwritten in place.
func seedCatalog(ctx context.Context, path string, store *catalog.Store, emb embedder, idx indexer) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var recipes []catalog.Recipe
	if err := json.Unmarshal(raw, &recipes); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	if len(recipes) == 0 {
		logging.Warn().Str("path", path).Msg("Seed file contains no recipes")
		return nil
	}

	if err := store.Put(ctx, recipes...); err != nil {
		return fmt.Errorf("import recipes: %w", err)
	}

	points := make([]search.Point, 0, indexBatchSize)
	for _, r := range recipes {
		vector, err := emb.Embed(ctx, embeddingText(r))
		if err != nil {
			return fmt.Errorf("embed recipe %s: %w", r.ID, err)
		}
		points = append(points, search.Point{RecipeID: r.ID, Vector: vector})

		if len(points) == indexBatchSize {
			if err := idx.Upsert(ctx, points); err != nil {
				return fmt.Errorf("index recipes: %w", err)
			}
			points = points[:0]
		}
	}
	if len(points) > 0 {
		if err := idx.Upsert(ctx, points); err != nil {
			return fmt.Errorf("index recipes: %w", err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count catalog: %w", err)
	}
	metrics.CatalogRecipes.Set(float64(count))
	metrics.CatalogImports.Inc()

	logging.Info().
		Int("imported", len(recipes)).
		Int("catalog_total", count).
		Msg("Catalog seeded and indexed")
	return nil
}

// embeddingText flattens a recipe into the text the embedding backend sees.
// Name and description carry most of the semantic signal; ingredients anchor
// queries like "something with eggplant".
func embeddingText(r catalog.Recipe) string {
	parts := []string{r.Name, r.Description}
	if len(r.Ingredients) > 0 {
		parts = append(parts, strings.Join(r.Ingredients, ", "))
	}
	return strings.TrimSpace(strings.Join(parts, ". "))
}
