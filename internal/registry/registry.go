// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package registry persists model version metadata as a single JSON document
// keyed by "{model_id}_{version}".
//
// The whole document is read at startup and rewritten on every mutation with
// write-temp-then-rename, so a crash mid-write leaves the previous document
// intact. The store assumes a single writer process; there is no distributed
// locking, which is an accepted limitation at this service's scale.
package registry

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/savora/internal/metrics"
)

// Status is a model version's lifecycle state. The lifecycle is monotonic:
// training → validation → production, with archived reachable from any state
// and terminal. A version never moves backwards; retraining creates a new
// version instead of resurrecting an old one.
type Status string

const (
	StatusTraining   Status = "training"
	StatusValidation Status = "validation"
	StatusProduction Status = "production"
	StatusArchived   Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTraining, StatusValidation, StatusProduction, StatusArchived:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle. Transitions must strictly
// increase rank.
func (s Status) rank() int {
	switch s {
	case StatusTraining:
		return 0
	case StatusValidation:
		return 1
	case StatusProduction:
		return 2
	case StatusArchived:
		return 3
	}
	return -1
}

// Model types.
const (
	TypeEmbedding = "embedding"
	TypeRanking   = "ranking"
	TypeHybrid    = "hybrid"
)

var (
	// ErrInvalidMetadata indicates metadata that fails identity or value
	// validation.
	ErrInvalidMetadata = errors.New("registry: invalid metadata")

	// ErrInvalidTransition indicates a status change that would move a model
	// version backwards in its lifecycle.
	ErrInvalidTransition = errors.New("registry: invalid status transition")
)

// Metadata describes one registered model version.
type Metadata struct {
	ModelID     string    `json:"model_id"`
	Version     string    `json:"version"`
	ModelType   string    `json:"model_type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`

	// Metrics holds evaluation results, e.g. accuracy or ndcg. All values
	// must be finite.
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// Parameters is an open map of hyperparameters; the set varies per model
	// type, so only identity and status fields are validated strictly.
	Parameters map[string]any `json:"parameters,omitempty"`

	Status         Status            `json:"status"`
	ParentVersion  string            `json:"parent_version,omitempty"`
	DeploymentDate *time.Time        `json:"deployment_date,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// Key returns the composite registry key for this metadata.
func (m Metadata) Key() string {
	return Key(m.ModelID, m.Version)
}

// Key builds the composite "{model_id}_{version}" registry key.
func Key(modelID, version string) string {
	return modelID + "_" + version
}

// validate checks identity fields, status, and metric finiteness.
func (m Metadata) validate() error {
	if m.ModelID == "" {
		return fmt.Errorf("%w: empty model_id", ErrInvalidMetadata)
	}
	if !IsValidVersion(m.Version) {
		return fmt.Errorf("%w: version %q is not a semantic version", ErrInvalidMetadata, m.Version)
	}
	switch m.ModelType {
	case TypeEmbedding, TypeRanking, TypeHybrid:
	default:
		return fmt.Errorf("%w: unknown model_type %q", ErrInvalidMetadata, m.ModelType)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidMetadata, m.Status)
	}
	for name, v := range m.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: metric %q is not finite", ErrInvalidMetadata, name)
		}
	}
	return nil
}

// Registry is the durable model metadata store.
type Registry struct {
	mu      sync.Mutex
	path    string
	entries map[string]Metadata
	logger  zerolog.Logger
}

// New opens the registry at path, loading the existing document if present.
func New(path string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		path:    path,
		entries: make(map[string]Metadata),
		logger:  logger.With().Str("component", "registry").Logger(),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh store.
	case err != nil:
		return nil, fmt.Errorf("read registry: %w", err)
	default:
		if err := json.Unmarshal(data, &r.entries); err != nil {
			return nil, fmt.Errorf("parse registry document: %w", err)
		}
	}

	r.logger.Info().Str("path", path).Int("entries", len(r.entries)).Msg("Model registry opened")
	return r, nil
}

// Register upserts metadata by (model_id, version). Re-registering an
// existing key overwrites it, logged as an update rather than rejected:
// last write wins.
//
// An empty status defaults to training, an empty timestamp to now.
func (r *Registry) Register(meta Metadata) error {
	if meta.Status == "" {
		meta.Status = StatusTraining
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	if err := meta.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := meta.Key()
	_, existed := r.entries[key]
	r.entries[key] = meta
	if err := r.persistLocked(); err != nil {
		if existed {
			return err
		}
		delete(r.entries, key)
		return err
	}

	r.exportGaugesLocked()

	evt := r.logger.Info().Str("model_id", meta.ModelID).Str("version", meta.Version).
		Str("status", string(meta.Status))
	if existed {
		evt.Msg("Model version updated")
	} else {
		evt.Msg("Model version registered")
	}
	return nil
}

// Get returns the metadata for (modelID, version). The second return is
// false when the key is unknown.
func (r *Registry) Get(modelID, version string) (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.entries[Key(modelID, version)]
	return meta, ok
}

// UpdateStatus transitions a model version to newStatus.
//
// An unknown key returns (false, nil): probing for existence is a routine
// caller workflow, not an error. A lifecycle violation returns
// ErrInvalidTransition. Promotion to production stamps DeploymentDate and
// archives any other production version of the same model, enforcing the
// at-most-one-production invariant at write time.
func (r *Registry) UpdateStatus(modelID, version string, newStatus Status) (bool, error) {
	if !newStatus.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidMetadata, newStatus)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key(modelID, version)
	meta, ok := r.entries[key]
	if !ok {
		return false, nil
	}
	if newStatus.rank() <= meta.Status.rank() {
		return false, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, meta.Status, newStatus, key)
	}

	prev := r.entries
	undo := map[string]Metadata{key: meta}

	if newStatus == StatusProduction {
		now := time.Now().UTC()
		meta.DeploymentDate = &now
		for k, other := range prev {
			if k != key && other.ModelID == modelID && other.Status == StatusProduction {
				undo[k] = other
				other.Status = StatusArchived
				r.entries[k] = other
				r.logger.Info().Str("model_id", modelID).Str("version", other.Version).
					Msg("Archived prior production version")
			}
		}
	}
	meta.Status = newStatus
	r.entries[key] = meta

	if err := r.persistLocked(); err != nil {
		for k, m := range undo {
			r.entries[k] = m
		}
		return false, err
	}

	r.exportGaugesLocked()

	r.logger.Info().Str("model_id", modelID).Str("version", version).
		Str("status", string(newStatus)).Msg("Model status updated")
	return true, nil
}

// exportGaugesLocked refreshes the per-status version-count gauges.
func (r *Registry) exportGaugesLocked() {
	counts := make(map[Status]int, 4)
	for _, meta := range r.entries {
		counts[meta.Status]++
	}
	for _, s := range []Status{StatusTraining, StatusValidation, StatusProduction, StatusArchived} {
		metrics.RegistryModels.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// ProductionModel returns the production version of modelID. Matching uses
// the stored ModelID field rather than key prefixes, so "hybrid_ranker"
// never matches a "hybrid_ranker_v2" entry. Should multiple production
// entries exist (possible only in a hand-edited document), the most recently
// registered one wins deterministically.
func (r *Registry) ProductionModel(modelID string) (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best Metadata
	found := false
	for _, meta := range r.entries {
		if meta.ModelID != modelID || meta.Status != StatusProduction {
			continue
		}
		if !found || meta.Timestamp.After(best.Timestamp) {
			best = meta
			found = true
		}
	}
	return best, found
}

// List returns entries filtered by modelID and status (empty values match
// everything), sorted by registration timestamp descending.
func (r *Registry) List(modelID string, status Status) []Metadata {
	r.mu.Lock()
	out := make([]Metadata, 0, len(r.entries))
	for _, meta := range r.entries {
		if modelID != "" && meta.ModelID != modelID {
			continue
		}
		if status != "" && meta.Status != status {
			continue
		}
		out = append(out, meta)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Key() > out[j].Key()
	})
	return out
}

// Versions returns all registered versions of modelID, unordered.
func (r *Registry) Versions(modelID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, meta := range r.entries {
		if meta.ModelID == modelID {
			out = append(out, meta.Version)
		}
	}
	return out
}

// persistLocked rewrites the registry document atomically. Must be called
// with mu held.
func (r *Registry) persistLocked() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry document: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write registry temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close registry temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace registry document: %w", err)
	}
	return nil
}
