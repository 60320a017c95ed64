// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package monitor

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/savora/internal/metrics"
)

// Health status values, worst to best ordering is unhealthy < degraded < healthy.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Thresholds configures health evaluation.
type Thresholds struct {
	// MaxErrorRate is the tolerated fraction of failed requests (e.g. 0.05).
	MaxErrorRate float64 `koanf:"max_error_rate"`

	// MaxLatencyMS alerts when the p95 request latency exceeds it.
	MaxLatencyMS float64 `koanf:"max_latency_ms"`

	// MinAccuracy degrades model health when the mean accuracy falls below it.
	MinAccuracy float64 `koanf:"min_accuracy"`

	// AnomalyZScore is the Z-score cutoff for accuracy anomaly scanning.
	AnomalyZScore float64 `koanf:"anomaly_z_score"`

	// DegradationWindow and DegradationThreshold configure the windowed
	// accuracy comparison.
	DegradationWindow    int     `koanf:"degradation_window"`
	DegradationThreshold float64 `koanf:"degradation_threshold"`
}

// DefaultThresholds mirror the deployed alerting configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxErrorRate:         0.05,
		MaxLatencyMS:         2000,
		MinAccuracy:          0.7,
		AnomalyZScore:        3.0,
		DegradationWindow:    10,
		DegradationThreshold: 0.1,
	}
}

// ComponentHealth is the health of one subsystem.
type ComponentHealth struct {
	Status  string             `json:"status"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Alerts  []string           `json:"alerts,omitempty"`
}

// Health is a point-in-time snapshot of service health.
type Health struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HealthMonitor composes the collector, the anomaly detector, and threshold
// configuration into health snapshots.
type HealthMonitor struct {
	collector  *Collector
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewHealthMonitor creates a health monitor over the given collector.
func NewHealthMonitor(collector *Collector, thresholds Thresholds, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		collector:  collector,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "health").Logger(),
	}
}

// Snapshot evaluates API and model health over the given window. Series with
// no data in the window report healthy with no metrics: absence of traffic
// is not an incident.
func (m *HealthMonitor) Snapshot(window time.Duration) Health {
	h := Health{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentHealth, 2),
		Timestamp:  time.Now(),
	}

	h.Components["api"] = m.apiHealth(window)
	h.Components["model"] = m.modelHealth(window)

	for name, c := range h.Components {
		h.Status = worseOf(h.Status, c.Status)
		metrics.SetHealthStatus(name, statusRank(c.Status))
	}
	if h.Status != StatusHealthy {
		m.logger.Warn().Str("status", h.Status).Msg("Health snapshot not healthy")
	}
	return h
}

func (m *HealthMonitor) apiHealth(window time.Duration) ComponentHealth {
	c := ComponentHealth{Status: StatusHealthy, Metrics: map[string]float64{}}

	requests, haveRequests := m.collector.Stats(MetricRequestCount, window)
	errStats, haveErrors := m.collector.Stats(MetricRequestErrors, window)
	if haveRequests && requests.Count > 0 {
		errorCount := 0
		if haveErrors {
			errorCount = errStats.Count
		}
		rate := float64(errorCount) / float64(requests.Count)
		c.Metrics["error_rate"] = rate
		c.Metrics["request_count"] = float64(requests.Count)
		if rate >= m.thresholds.MaxErrorRate {
			c.Status = StatusUnhealthy
			c.Alerts = append(c.Alerts, "error rate above threshold")
		}
	}

	latency, ok := m.collector.Stats(MetricRequestLatencyMS, window)
	if ok {
		c.Metrics["latency_p50_ms"] = latency.P50
		c.Metrics["latency_p95_ms"] = latency.P95
		c.Metrics["latency_p99_ms"] = latency.P99
		if latency.P95 > m.thresholds.MaxLatencyMS {
			c.Status = worseOf(c.Status, StatusDegraded)
			c.Alerts = append(c.Alerts, "p95 latency above threshold")
		}
	}

	return c
}

func (m *HealthMonitor) modelHealth(window time.Duration) ComponentHealth {
	c := ComponentHealth{Status: StatusHealthy, Metrics: map[string]float64{}}

	accuracy, ok := m.collector.Stats(MetricModelAccuracy, window)
	if !ok {
		return c
	}
	c.Metrics["accuracy_mean"] = accuracy.Mean
	c.Metrics["accuracy_min"] = accuracy.Min
	if accuracy.Mean < m.thresholds.MinAccuracy {
		c.Status = StatusDegraded
		c.Alerts = append(c.Alerts, "mean accuracy below threshold")
	}

	values := m.collector.LatestValues(MetricModelAccuracy, DefaultMaxPoints)

	report := DetectAnomalies(values, m.thresholds.AnomalyZScore)
	if len(report.Anomalies) > 0 {
		c.Status = worseOf(c.Status, StatusDegraded)
		c.Alerts = append(c.Alerts, "accuracy anomalies detected")
		c.Metrics["anomaly_rate"] = report.Rate
		metrics.AnomaliesDetected.WithLabelValues(MetricModelAccuracy).Inc()
	}

	deg := DetectDegradation(values, m.thresholds.DegradationWindow, m.thresholds.DegradationThreshold)
	if deg.Degraded {
		c.Status = StatusUnhealthy
		c.Alerts = append(c.Alerts, "accuracy degradation detected")
		c.Metrics["accuracy_drop"] = deg.Drop
	}

	return c
}

// statusRank orders statuses for comparison and gauge export
// (0=healthy, 1=degraded, 2=unhealthy).
func statusRank(s string) int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// worseOf returns the worse of two statuses.
func worseOf(a, b string) string {
	if statusRank(b) > statusRank(a) {
		return b
	}
	return a
}
