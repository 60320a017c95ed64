// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/savora/internal/monitor"
	"github.com/tomtom215/savora/internal/recommend"
	"github.com/tomtom215/savora/internal/registry"
	"github.com/tomtom215/savora/internal/retrain"
)

// Recommender serves recommendation requests. Implemented by
// recommend.Engine; an interface so handler tests can stub the pipeline.
type Recommender interface {
	Recommend(ctx context.Context, query string, limit int) (*recommend.Response, error)
	RecordRequestError()
}

// Sweeper runs one retraining sweep on demand. Implemented by
// retrain.Scheduler.
type Sweeper interface {
	Sweep(ctx context.Context) retrain.ScheduleResult
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	engine       Recommender
	health       *monitor.HealthMonitor
	collector    *monitor.Collector
	registry     *registry.Registry
	orchestrator *retrain.Orchestrator
	sweeper      Sweeper
	window       time.Duration
	logger       zerolog.Logger
}

// NewHandler wires the handler dependencies. window is the lookback for
// health and metrics queries.
func NewHandler(engine Recommender, health *monitor.HealthMonitor, collector *monitor.Collector,
	reg *registry.Registry, orchestrator *retrain.Orchestrator, sweeper Sweeper,
	window time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:       engine,
		health:       health,
		collector:    collector,
		registry:     reg,
		orchestrator: orchestrator,
		sweeper:      sweeper,
		window:       window,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Recommend handles POST /api/v1/recommend.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	resp, err := h.engine.Recommend(r.Context(), req.Query, req.Limit)
	if err != nil {
		h.engine.RecordRequestError()
		h.logger.Error().Err(err).Msg("Recommendation failed")
		respondError(w, http.StatusBadGateway, "RECOMMENDATION_FAILED",
			"A recommendation backend is unavailable", err)
		return
	}

	respondOK(w, resp, start)
}

// HealthLive handles GET /api/v1/health/live: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]string{"status": "alive"}, time.Now())
}

// Health handles GET /api/v1/health: evaluated component health over the
// configured window. Degraded and unhealthy snapshots still return 200; the
// payload carries the verdict.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	window := h.windowFromQuery(r)
	respondOK(w, h.health.Snapshot(window), start)
}

// metricsSummary is the per-series payload of the metrics endpoint.
type metricsSummary struct {
	WindowMinutes int                      `json:"window_minutes"`
	Series        map[string]monitor.Stats `json:"series"`
}

// Metrics handles GET /api/v1/metrics?window_minutes=N: summary statistics
// for every collected series.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	window := h.windowFromQuery(r)

	summary := metricsSummary{
		WindowMinutes: int(window.Minutes()),
		Series:        make(map[string]monitor.Stats),
	}
	for _, name := range h.collector.SeriesNames() {
		if stats, ok := h.collector.Stats(name, window); ok {
			summary.Series[name] = stats
		}
	}

	respondOK(w, summary, start)
}

// Models handles GET /api/v1/models?model_id=&status=.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := registry.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "INVALID_STATUS",
			"status must be one of: training, validation, production, archived", nil)
		return
	}

	models := h.registry.List(r.URL.Query().Get("model_id"), status)
	respondOK(w, map[string]interface{}{
		"models": models,
		"count":  len(models),
	}, start)
}

// ProductionModel handles GET /api/v1/models/{id}/production.
func (h *Handler) ProductionModel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	modelID := chi.URLParam(r, "id")

	meta, ok := h.registry.ProductionModel(modelID)
	if !ok {
		respondError(w, http.StatusNotFound, "NO_PRODUCTION_MODEL",
			"No production model for this lineage", nil)
		return
	}
	respondOK(w, meta, start)
}

// ModelHistory handles GET /api/v1/models/{id}/history: every registered
// version of the lineage, newest first.
func (h *Handler) ModelHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	modelID := chi.URLParam(r, "id")

	models := h.registry.List(modelID, "")
	if len(models) == 0 {
		respondError(w, http.StatusNotFound, "UNKNOWN_MODEL",
			"No registered versions for this lineage", nil)
		return
	}
	respondOK(w, map[string]interface{}{
		"model_id": modelID,
		"versions": models,
		"count":    len(models),
	}, start)
}

// RetrainCheck handles POST /api/v1/retrain/check: one on-demand sweep of
// every configured lineage, retraining and evaluating the ones that are due.
func (h *Handler) RetrainCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := h.sweeper.Sweep(r.Context())
	respondOK(w, result, start)
}

// RetrainJobs handles GET /api/v1/retrain/jobs?model_id=&status=.
func (h *Handler) RetrainJobs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := retrain.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "INVALID_STATUS",
			"status must be one of: pending, running, completed, failed, cancelled", nil)
		return
	}

	jobs := h.orchestrator.ListJobs(r.URL.Query().Get("model_id"), status)
	respondOK(w, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	}, start)
}

// windowFromQuery reads window_minutes, falling back to the configured
// default and rejecting nonsense by ignoring it.
func (h *Handler) windowFromQuery(r *http.Request) time.Duration {
	minutes := getIntParam(r, "window_minutes", 0)
	if minutes <= 0 {
		return h.window
	}
	return time.Duration(minutes) * time.Minute
}
