// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/savora/internal/catalog"
	"github.com/tomtom215/savora/internal/evaluate"
	"github.com/tomtom215/savora/internal/registry"
)

// catalogDataSource feeds the retraining scheduler from the recipe catalog.
// Sample counts come from catalog size rather than an interaction log, so
// "new samples since deployment" is approximated as the whole catalog when
// no production model exists yet, and catalog growth otherwise.
type catalogDataSource struct {
	store *catalog.Store
	reg   *registry.Registry
}

func newCatalogDataSource(store *catalog.Store, reg *registry.Registry) *catalogDataSource {
	return &catalogDataSource{store: store, reg: reg}
}

// NewSampleCount implements retrain.DataSource. The production model's
// training_samples metric records how much data it was fitted on; anything
// beyond that in the catalog counts as new.
func (d *catalogDataSource) NewSampleCount(modelID string) (int, error) {
	total, err := d.store.Count(context.Background())
	if err != nil {
		return 0, fmt.Errorf("count catalog: %w", err)
	}

	prod, ok := d.reg.ProductionModel(modelID)
	if !ok {
		return total, nil
	}
	seen := int(prod.Metrics["training_samples"])
	if total <= seen {
		return 0, nil
	}
	return total - seen, nil
}

// TrainingData implements retrain.DataSource. Ratings become a columnar
// dataset split 80/20 into training and validation; unknown ratings carry a
// zero indicator column so the trainer can distinguish imputation.
func (d *catalogDataSource) TrainingData(_ string) (evaluate.Dataset, evaluate.Dataset, error) {
	ratings, err := d.store.Ratings(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog ratings: %w", err)
	}

	values := make([]float64, 0, len(ratings))
	known := make([]float64, 0, len(ratings))
	for _, r := range ratings {
		values = append(values, r.Value)
		if r.Known {
			known = append(known, 1)
		} else {
			known = append(known, 0)
		}
	}

	split := len(values) * 4 / 5
	training := evaluate.Dataset{
		"rating":       values[:split],
		"rating_known": known[:split],
	}
	validation := evaluate.Dataset{
		"rating":       values[split:],
		"rating_known": known[split:],
	}
	return training, validation, nil
}
