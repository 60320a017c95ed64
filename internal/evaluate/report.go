// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package evaluate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Report accumulates evaluation metrics and validation outcomes for one
// model version and serializes them as a JSON document.
type Report struct {
	ModelID           string                      `json:"model_id"`
	Version           string                      `json:"version"`
	Timestamp         time.Time                   `json:"timestamp"`
	Metrics           map[string]float64          `json:"metrics"`
	ValidationResults map[string]ValidationResult `json:"validation_results"`
}

// NewReport starts an empty report for (modelID, version).
func NewReport(modelID, version string) *Report {
	return &Report{
		ModelID:           modelID,
		Version:           version,
		Timestamp:         time.Now().UTC(),
		Metrics:           map[string]float64{},
		ValidationResults: map[string]ValidationResult{},
	}
}

// AddMetrics merges metrics into the report. Later additions overwrite
// earlier ones under the same name.
func (r *Report) AddMetrics(metrics map[string]float64) {
	for name, v := range metrics {
		r.Metrics[name] = v
	}
}

// AddValidation records one named validation outcome.
func (r *Report) AddValidation(name string, result ValidationResult) {
	r.ValidationResults[name] = result
}

// Save writes the report under dir as
// "{model_id}_{version}_{unix_timestamp}.json" and returns the path.
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal evaluation report: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%d.json", r.ModelID, r.Version, r.Timestamp.Unix()))
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write evaluation report: %w", err)
	}
	return path, nil
}
