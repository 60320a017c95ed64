// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package metrics exposes Prometheus instrumentation for the recommendation
// pipeline, the external model backends, and the retraining lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Recommendation Pipeline Metrics
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "End-to-end duration of recommendation requests",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	RecommendationResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_results",
			Help:    "Number of recipes returned per recommendation request",
			Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
		},
	)

	RecommendationEmpty = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_empty_total",
			Help: "Total number of recommendation requests that returned no recipes",
		},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of individual recommendation pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // "normalize", "embed", "search", "rank", "hydrate", "translate"
	)

	PipelineStageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_errors_total",
			Help: "Total number of pipeline stage failures",
		},
		[]string{"stage"},
	)

	// Catalog Metrics
	CatalogRecipes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_recipes",
			Help: "Current number of recipes in the catalog",
		},
	)

	CatalogImports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_imports_total",
			Help: "Total number of recipes imported into the catalog",
		},
	)

	// Model Registry and Retraining Metrics
	RegistryModels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_models",
			Help: "Current number of registered model versions by status",
		},
		[]string{"status"},
	)

	RetrainJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrain_jobs_total",
			Help: "Total number of retraining jobs by terminal status",
		},
		[]string{"status"}, // "completed", "failed", "cancelled"
	)

	RetrainPromotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrain_promotions_total",
			Help: "Total number of candidate evaluation decisions",
		},
		[]string{"decision"}, // "promoted", "archived"
	)

	// Monitoring Metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of metric anomalies flagged by z-score analysis",
		},
		[]string{"metric"},
	)

	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Component health (0=healthy, 1=degraded, 2=unhealthy)",
		},
		[]string{"component"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records latency and status for one API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordPipelineStage records one stage of the recommendation pipeline.
func RecordPipelineStage(stage string, duration time.Duration, err error) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		PipelineStageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordRecommendation records an end-to-end recommendation request.
func RecordRecommendation(duration time.Duration, resultCount int) {
	RecommendationDuration.Observe(duration.Seconds())
	RecommendationResults.Observe(float64(resultCount))
	if resultCount == 0 {
		RecommendationEmpty.Inc()
	}
}

// RecordRetrainJob counts a job reaching a terminal status.
func RecordRetrainJob(status string) {
	RetrainJobs.WithLabelValues(status).Inc()
}

// RecordPromotionDecision counts a candidate evaluation outcome.
func RecordPromotionDecision(promoted bool) {
	if promoted {
		RetrainPromotions.WithLabelValues("promoted").Inc()
	} else {
		RetrainPromotions.WithLabelValues("archived").Inc()
	}
}

// SetHealthStatus exports a component's health rank.
func SetHealthStatus(component string, rank int) {
	HealthStatus.WithLabelValues(component).Set(float64(rank))
}
