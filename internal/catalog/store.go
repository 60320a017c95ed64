// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package catalog stores the recipe catalog in BadgerDB: lookups by ID for
// response hydration and full rating scans for the popularity baseline.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/savora/internal/ranking"
)

// Key prefix for recipe records in BadgerDB.
const recipeKeyPrefix = "recipe:"

// Recipe is one catalog entry. Rating is nil when the recipe has never been
// rated; the popularity baseline imputes it to the catalog mean.
type Recipe struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Ingredients  []string `json:"ingredients,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
}

// Store is a BadgerDB-backed recipe catalog.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewStore wraps an open BadgerDB handle.
func NewStore(db *badger.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Put stores recipes, overwriting existing entries with the same ID. Bulk
// imports go through a write batch so a large seed file does not pay one
// transaction per recipe.
func (s *Store) Put(ctx context.Context, recipes ...Recipe) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, r := range recipes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.ID == "" {
			return errors.New("catalog: recipe with empty id")
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal recipe %s: %w", r.ID, err)
		}
		if err := wb.Set([]byte(recipeKeyPrefix+r.ID), data); err != nil {
			return fmt.Errorf("batch recipe %s: %w", r.ID, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush recipe batch: %w", err)
	}
	s.logger.Debug().Int("count", len(recipes)).Msg("Recipes stored")
	return nil
}

// Get retrieves one recipe. The second return is false for unknown IDs.
func (s *Store) Get(_ context.Context, id string) (Recipe, bool, error) {
	var recipe Recipe
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recipeKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get recipe %s: %w", id, err)
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &recipe)
		})
	})
	if err != nil {
		return Recipe{}, false, err
	}
	return recipe, found, nil
}

// GetMany fetches recipes by ID, preserving input order. Unknown IDs are
// skipped, not errors: the vector index can briefly reference recipes the
// catalog no longer holds.
func (s *Store) GetMany(_ context.Context, ids []string) ([]Recipe, error) {
	recipes := make([]Recipe, 0, len(ids))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get([]byte(recipeKeyPrefix + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				s.logger.Debug().Str("recipe_id", id).Msg("Recipe missing from catalog")
				continue
			}
			if err != nil {
				return fmt.Errorf("get recipe %s: %w", id, err)
			}
			var recipe Recipe
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &recipe)
			}); err != nil {
				return fmt.Errorf("decode recipe %s: %w", id, err)
			}
			recipes = append(recipes, recipe)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// Ratings scans the whole catalog and returns every recipe's raw rating
// observation, the input for the popularity baseline.
func (s *Store) Ratings(ctx context.Context) ([]ranking.Rating, error) {
	var ratings []ranking.Rating

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recipeKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var recipe Recipe
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &recipe)
			}); err != nil {
				return fmt.Errorf("decode recipe during rating scan: %w", err)
			}
			rating := ranking.Rating{ID: recipe.ID}
			if recipe.Rating != nil {
				rating.Value = *recipe.Rating
				rating.Known = true
			}
			ratings = append(ratings, rating)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

// Count returns the number of catalog entries.
func (s *Store) Count(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recipeKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
