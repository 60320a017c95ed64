// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package retrain

import (
	"context"
	"hash/fnv"

	"github.com/tomtom215/savora/internal/evaluate"
)

// Trainer fits a model and returns its evaluation metrics. Real training is
// external to this service; implementations may call out to a training
// pipeline or, like StubTrainer, fabricate metrics for wiring and tests.
type Trainer interface {
	Train(ctx context.Context, modelID string, training, validation evaluate.Dataset) (map[string]float64, error)
}

// DataSource reports training-data availability and supplies datasets for
// scheduled retraining runs.
type DataSource interface {
	// NewSampleCount returns how many samples accumulated since the current
	// production model was deployed.
	NewSampleCount(modelID string) (int, error)

	// TrainingData returns the training and validation datasets for modelID.
	TrainingData(modelID string) (training, validation evaluate.Dataset, err error)
}

// StubTrainer fabricates deterministic metrics from the model ID and the
// training set size, so repeated runs over the same data produce the same
// candidate metrics.
type StubTrainer struct{}

// Train implements Trainer.
func (StubTrainer) Train(_ context.Context, modelID string, training, validation evaluate.Dataset) (map[string]float64, error) {
	rows := datasetRows(training)

	h := fnv.New32a()
	_, _ = h.Write([]byte(modelID))
	jitter := float64(h.Sum32()%1000) / 10000 // [0, 0.1)

	metrics := map[string]float64{
		"accuracy":         0.85 + jitter,
		"precision":        0.82 + jitter,
		"recall":           0.80 + jitter,
		"f1_score":         0.81 + jitter,
		"training_samples": float64(rows),
	}
	if validation != nil {
		metrics["validation_samples"] = float64(datasetRows(validation))
	}
	return metrics, nil
}

// datasetRows returns the row count of a columnar dataset: the length of its
// longest column.
func datasetRows(d evaluate.Dataset) int {
	rows := 0
	for _, col := range d {
		if len(col) > rows {
			rows = len(col)
		}
	}
	return rows
}
