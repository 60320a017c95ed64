// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package search adapts the Qdrant vector database for recipe similarity
// retrieval. Point IDs are deterministic UUIDs derived from the recipe ID so
// re-indexing the same catalog upserts in place instead of duplicating
// points; the original recipe ID travels in the payload.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	payloadRecipeID = "recipe_id"

	healthCacheTTL = 5 * time.Second
)

// recipePointNamespace seeds the deterministic point UUIDs. Changing it
// orphans every existing point, so don't.
var recipePointNamespace = uuid.MustParse("9b1c2a34-55de-4e9f-8c1b-0d2e3f4a5b6c")

// Config holds Qdrant connection settings.
type Config struct {
	URL        string `koanf:"url"`
	APIKey     string `koanf:"api_key"`
	Collection string `koanf:"collection"`
	Dims       uint64 `koanf:"dims"`
}

// Result is one similarity hit: the recipe ID and its raw cosine similarity.
type Result struct {
	ID    string
	Score float64
}

// Point is one vector to index.
type Point struct {
	RecipeID string
	Vector   []float32
}

// Searcher wraps a Qdrant client for one collection.
type Searcher struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     zerolog.Logger

	healthGroup singleflight.Group
	healthyAt   time.Time
}

// parseQdrantURL extracts host and gRPC port from a Qdrant URL. The
// conventional REST port 6333 maps to the gRPC port 6334.
func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("parse qdrant url: %w", err)
	}
	if u.Host == "" {
		return "", 0, false, fmt.Errorf("qdrant url %q has no host", raw)
	}

	host = u.Hostname()
	useTLS = u.Scheme == "https"

	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("qdrant url port %q: %w", p, err)
		}
		if port == 6333 {
			port = 6334
		}
	} else if useTLS {
		port = 443
	}
	return host, port, useTLS, nil
}

// NewSearcher connects to Qdrant. It does not touch the collection; call
// EnsureCollection before indexing.
func NewSearcher(cfg Config, logger zerolog.Logger) (*Searcher, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("search: collection name required")
	}
	if cfg.Dims == 0 {
		return nil, fmt.Errorf("search: vector dims required")
	}

	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s:%d: %w", host, port, err)
	}

	return &Searcher{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger.With().Str("component", "search").Logger(),
	}, nil
}

// EnsureCollection creates the recipe collection if it does not exist.
// Vectors are compared by cosine similarity.
func (s *Searcher) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dims,
			Distance: qdrant.Distance_Cosine,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(16)),
			EfConstruct: qdrant.PtrOf(uint64(128)),
		},
	})
	if err != nil {
		// Lost a create race; the collection is there either way.
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	s.logger.Info().Str("collection", s.collection).Uint64("dims", s.dims).
		Msg("Created vector collection")
	return nil
}

// Upsert indexes recipe vectors, replacing points with the same recipe ID.
func (s *Searcher) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qp := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if uint64(len(p.Vector)) != s.dims {
			return fmt.Errorf("recipe %s vector has %d dims, collection expects %d",
				p.RecipeID, len(p.Vector), s.dims)
		}
		pointID := uuid.NewSHA1(recipePointNamespace, []byte(p.RecipeID)).String()
		qp = append(qp, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{payloadRecipeID: p.RecipeID}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qp,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(qp), err)
	}
	s.logger.Debug().Int("count", len(qp)).Msg("Indexed recipe vectors")
	return nil
}

// Search returns the limit nearest recipes to the query vector with their
// raw similarity scores.
func (s *Searcher) Search(ctx context.Context, vector []float32, limit int) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", s.collection, err)
	}

	results := make([]Result, 0, len(points))
	for _, sp := range points {
		id, ok := recipeIDFromPayload(sp.Payload)
		if !ok {
			s.logger.Warn().Msg("Search hit without recipe_id payload, skipping")
			continue
		}
		results = append(results, Result{ID: id, Score: float64(sp.Score)})
	}
	return results, nil
}

func recipeIDFromPayload(payload map[string]*qdrant.Value) (string, bool) {
	v, ok := payload[payloadRecipeID]
	if !ok {
		return "", false
	}
	id := v.GetStringValue()
	return id, id != ""
}

// Healthy reports whether Qdrant answers. Results are cached briefly and
// concurrent probes collapse into one request.
func (s *Searcher) Healthy(ctx context.Context) bool {
	if time.Since(s.healthyAt) < healthCacheTTL {
		return true
	}

	v, err, _ := s.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_, err := s.client.HealthCheck(checkCtx)
		return err == nil, err
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Qdrant health check failed")
		return false
	}
	if ok, _ := v.(bool); ok {
		s.healthyAt = time.Now()
		return true
	}
	return false
}

// Close releases the gRPC connection.
func (s *Searcher) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
