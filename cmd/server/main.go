// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package main is the entry point for the Savora server application.
//
// Savora serves hybrid recipe recommendations (semantic similarity blended
// with feature overlap and rating popularity) and monitors its own model in
// production: per-request metric collection, anomaly detection, health
// scoring, a versioned model registry, and a retraining scheduler.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, config.yaml, SAVORA_* env (Koanf v2)
//  2. Catalog: BadgerDB recipe store, optionally seeded from a JSON file
//  3. Vector search: Qdrant collection for semantic retrieval
//  4. Model backends: embedding and translation HTTP services, each behind
//     a circuit breaker
//  5. MLOps layer: metrics collector, health monitor, model registry,
//     retraining orchestrator and scheduler
//  6. Recommendation engine: the request pipeline tying it all together
//  7. HTTP server: REST API under /api/v1 plus the Prometheus scrape endpoint
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (SAVORA_ prefix, e.g. SAVORA_SERVER_PORT)
//   - Config file (config.yaml, or SAVORA_CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Stops the retraining scheduler and closes the catalog, the metric
//     log, and the Qdrant connection
//
// # Example Usage
//
// Local development against stub backends:
//
//	export SAVORA_CATALOG_PATH=./data/catalog
//	export SAVORA_CATALOG_SEED_PATH=./data/recipes.json
//	export SAVORA_SEARCH_URL=http://localhost:6333
//	export SAVORA_EMBEDDING_URL=http://localhost:8501
//	export SAVORA_TRANSLATION_URL=http://localhost:8502
//	./savora
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/savora/internal/api"
	"github.com/tomtom215/savora/internal/backend"
	"github.com/tomtom215/savora/internal/catalog"
	"github.com/tomtom215/savora/internal/config"
	"github.com/tomtom215/savora/internal/logging"
	"github.com/tomtom215/savora/internal/monitor"
	"github.com/tomtom215/savora/internal/recommend"
	"github.com/tomtom215/savora/internal/registry"
	"github.com/tomtom215/savora/internal/retrain"
	"github.com/tomtom215/savora/internal/search"
	"github.com/tomtom215/savora/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("catalog_path", cfg.Catalog.Path).
		Str("search_url", cfg.Search.URL).
		Str("embedding_url", cfg.Embedding.URL).
		Bool("translation_enabled", cfg.Translation.Enabled).
		Bool("retrain_enabled", cfg.Retrain.Enabled).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog store. Badger's own logging is noisy at default levels, so it
	// stays off and failures surface through our error paths.
	db, err := badger.Open(badger.DefaultOptions(cfg.Catalog.Path).WithLogger(nil))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open catalog database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog database")
		}
	}()
	store := catalog.NewStore(db, logger)

	// Vector search
	searcher, err := search.NewSearcher(cfg.Search, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create search client")
	}
	defer func() {
		if err := searcher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing search client")
		}
	}()
	if err := searcher.EnsureCollection(ctx); err != nil {
		// Qdrant may simply not be up yet; the engine surfaces search
		// failures per request and the supervisor keeps the API alive.
		logging.Warn().Err(err).Msg("Failed to ensure search collection (will retry per request)")
	}

	// Model backends
	embedder, err := backend.NewEmbeddingClient(cfg.Embedding, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create embedding client")
	}
	translator, err := backend.NewTranslationClient(cfg.Translation, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create translation client")
	}

	// Seed the catalog and the vector index before the engine builds its
	// popularity baseline.
	if cfg.Catalog.SeedPath != "" {
		if err := seedCatalog(ctx, cfg.Catalog.SeedPath, store, embedder, searcher); err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Catalog.SeedPath).Msg("Failed to seed catalog")
		}
	}

	// MLOps layer: collector, health monitor, registry, retraining
	collector, err := monitor.NewCollector(monitor.CollectorConfig{
		MaxPoints: cfg.Monitor.MaxPoints,
		LogPath:   cfg.Monitor.LogPath,
	}, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create metrics collector")
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing metrics collector")
		}
	}()

	health := monitor.NewHealthMonitor(collector, cfg.Monitor.Thresholds, logger)

	reg, err := registry.New(cfg.Registry.Path, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open model registry")
	}
	if err := bootstrapRegistry(reg, cfg.Retrain.Models); err != nil {
		logging.Fatal().Err(err).Msg("Failed to bootstrap model registry")
	}

	data := newCatalogDataSource(store, reg)
	orchestrator := retrain.NewOrchestrator(cfg.Retrain.Orchestrator(), reg,
		retrain.StubTrainer{}, data, logger)
	scheduler := retrain.NewScheduler(orchestrator, data, cfg.Retrain.Models,
		cfg.Retrain.SweepInterval, cfg.Retrain.Enabled, logger)

	// Recommendation engine
	engine, err := recommend.NewEngine(ctx, cfg.Recommend, embedder, searcher,
		translator, store, collector, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create recommendation engine")
	}

	// HTTP surface
	window := time.Duration(cfg.Monitor.WindowMinutes) * time.Minute
	handler := api.NewHandler(engine, health, collector, reg, orchestrator,
		scheduler, window, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	})

	// Supervisor tree
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddMLOpsService(scheduler)
	tree.AddAPIService(supervisor.NewHTTPService(supervisor.HTTPConfig{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router.Setup(), logger))

	// Signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// bootstrapRegistry registers an initial production version for each
// configured model lineage that has none, so production lookups and the
// retraining sweep have a baseline to compare against.
func bootstrapRegistry(reg *registry.Registry, modelIDs []string) error {
	for _, modelID := range modelIDs {
		if _, ok := reg.ProductionModel(modelID); ok {
			continue
		}
		err := reg.Register(registry.Metadata{
			ModelID:     modelID,
			Version:     "1.0.0",
			ModelType:   registry.TypeHybrid,
			Status:      registry.StatusProduction,
			Description: "initial baseline",
		})
		if err != nil {
			return fmt.Errorf("register baseline for %s: %w", modelID, err)
		}
		logging.Info().Str("model_id", modelID).Msg("Registered baseline production model")
	}
	return nil
}
