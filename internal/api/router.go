// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/savora/internal/metrics"
	"github.com/tomtom215/savora/internal/middleware"
)

// RouterConfig tunes the HTTP surface.
type RouterConfig struct {
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// Router assembles the HTTP routes.
type Router struct {
	handler *Handler
	cfg     RouterConfig
}

// NewRouter builds a router around the handler set.
func NewRouter(handler *Handler, cfg RouterConfig) *Router {
	if cfg.RateLimitReqs <= 0 {
		cfg.RateLimitReqs = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Router{handler: handler, cfg: cfg}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(prometheusMetrics)

	// Health gets a permissive limit so external probes never starve.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(rateLimitByIP(1000, time.Minute))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		r.Use(middleware.Compression)

		r.Post("/recommend", router.handler.Recommend)
		r.Get("/metrics", router.handler.Metrics)

		r.Route("/models", func(r chi.Router) {
			r.Get("/", router.handler.Models)
			r.Get("/{id}/production", router.handler.ProductionModel)
			r.Get("/{id}/history", router.handler.ModelHistory)
		})

		r.Route("/retrain", func(r chi.Router) {
			r.Post("/check", router.handler.RetrainCheck)
			r.Get("/jobs", router.handler.RetrainJobs)
		})
	})

	// Prometheus scrape endpoint, unversioned by convention.
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimitByIP is httprate.LimitByIP with rejected requests counted. The
// counter is labeled by the route pattern matched so far, which at group
// middleware depth is the group prefix, keeping cardinality bounded.
func rateLimitByIP(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requestLimit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			metrics.APIRateLimitHits.WithLabelValues(endpoint).Inc()
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}))
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// prometheusMetrics instruments every request with duration and status
// counters, labeled by the Chi route pattern rather than the raw path so
// cardinality stays bounded.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(rec.status), time.Since(start))
	})
}
