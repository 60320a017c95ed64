// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package monitor provides the in-process observation layer for the ranking
// pipeline: a bounded time-series metrics collector with a durable append
// log, Z-score anomaly detection, and a health snapshot composed from both.
//
// Recording is best-effort at every boundary. A failed metric write warns and
// moves on; it never fails the request path it observes.
package monitor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Metric names recorded by the service. Series are created on first use, so
// these are conventions rather than a registry.
const (
	MetricRequestLatencyMS     = "api_request_latency_ms"
	MetricRequestCount         = "api_requests"
	MetricRequestErrors        = "api_request_errors"
	MetricHybridScoreMean      = "hybrid_score_mean"
	MetricResultCount          = "result_count"
	MetricModelAccuracy        = "model_accuracy"
	MetricTranslationLatencyMS = "translation_latency_ms"
	MetricSearchLatencyMS      = "search_latency_ms"
)

// DefaultMaxPoints bounds in-memory retention per series.
const DefaultMaxPoints = 10000

// Point is one metric observation. Immutable once recorded.
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// logRecord is the durable JSONL line format. One self-contained object per
// line; the log is append-only and replayed, never rewritten.
type logRecord struct {
	Metric    string            `json:"metric"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Stats summarizes the points of one series inside a time window.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// series is a fixed-capacity ring buffer of points. Oldest evicted first.
type series struct {
	points []Point
	head   int
	count  int
}

func newSeries(capacity int) *series {
	return &series{points: make([]Point, capacity)}
}

func (s *series) append(p Point) {
	if s.count < len(s.points) {
		s.points[(s.head+s.count)%len(s.points)] = p
		s.count++
		return
	}
	// Full: overwrite the oldest slot.
	s.points[s.head] = p
	s.head = (s.head + 1) % len(s.points)
}

// snapshot returns the points in append order.
func (s *series) snapshot() []Point {
	out := make([]Point, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.points[(s.head+i)%len(s.points)]
	}
	return out
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// MaxPoints caps in-memory retention per series. Defaults to
	// DefaultMaxPoints when zero.
	MaxPoints int

	// LogPath is the JSONL append-log file. Empty disables the durable log.
	LogPath string
}

// Collector records and queries named scalar metric series.
//
// A single mutex serializes all series access; write volume here is one
// record per request plus scheduler ticks, so per-series locking is not
// worth the bookkeeping.
type Collector struct {
	mu        sync.Mutex
	series    map[string]*series
	maxPoints int
	logFile   *os.File
	logger    zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewCollector creates a collector. When cfg.LogPath is set, the append log
// is opened immediately (parent directory created as needed) so log-file
// problems surface at startup rather than mid-traffic.
func NewCollector(cfg CollectorConfig, logger zerolog.Logger) (*Collector, error) {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}

	c := &Collector{
		series:    make(map[string]*series),
		maxPoints: cfg.MaxPoints,
		logger:    logger.With().Str("component", "monitor").Logger(),
		now:       time.Now,
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o750); err != nil {
			return nil, fmt.Errorf("create metrics log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open metrics log: %w", err)
		}
		c.logFile = f
	}

	return c, nil
}

// Record appends one observation to the named series, creating the series on
// first use. It never fails the caller: non-finite values are dropped with a
// warning, and append-log write errors are warned and swallowed.
func (c *Collector) Record(name string, value float64, labels map[string]string) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		c.logger.Warn().Str("metric", name).Float64("value", value).
			Msg("Dropping non-finite metric value")
		return
	}

	p := Point{Timestamp: c.now(), Value: value, Labels: labels}

	c.mu.Lock()
	s, ok := c.series[name]
	if !ok {
		s = newSeries(c.maxPoints)
		c.series[name] = s
	}
	s.append(p)
	file := c.logFile
	c.mu.Unlock()

	if file == nil {
		return
	}
	line, err := json.Marshal(logRecord{
		Metric:    name,
		Timestamp: p.Timestamp,
		Value:     p.Value,
		Labels:    p.Labels,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("metric", name).Msg("Failed to marshal metric log record")
		return
	}
	line = append(line, '\n')

	c.mu.Lock()
	_, err = file.Write(line)
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Str("metric", name).Msg("Failed to append metric log record")
	}
}

// Latest returns up to count most recent points of the series in
// chronological order. Unknown series yield an empty slice, not an error.
func (c *Collector) Latest(name string, count int) []Point {
	c.mu.Lock()
	s, ok := c.series[name]
	var points []Point
	if ok {
		points = s.snapshot()
	}
	c.mu.Unlock()

	if count < 0 {
		count = 0
	}
	if len(points) > count {
		points = points[len(points)-count:]
	}
	return points
}

// LatestValues returns up to count most recent values of the series in
// chronological order.
func (c *Collector) LatestValues(name string, count int) []float64 {
	points := c.Latest(name, count)
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

// Stats summarizes points recorded within [now-window, now]. The second
// return is false when the series is unknown or no points fall in the
// window.
func (c *Collector) Stats(name string, window time.Duration) (Stats, bool) {
	cutoff := c.now().Add(-window)

	c.mu.Lock()
	s, ok := c.series[name]
	var points []Point
	if ok {
		points = s.snapshot()
	}
	c.mu.Unlock()

	values := make([]float64, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.Before(cutoff) {
			values = append(values, p.Value)
		}
	}
	if len(values) == 0 {
		return Stats{}, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := meanOf(values)
	return Stats{
		Count:  len(values),
		Mean:   mean,
		StdDev: stdDevOf(values, mean),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P50:    percentile(sorted, 0.50),
		P95:    percentile(sorted, 0.95),
		P99:    percentile(sorted, 0.99),
	}, true
}

// SeriesNames returns the names of all series seen so far, sorted.
func (c *Collector) SeriesNames() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	c.mu.Unlock()

	sort.Strings(names)
	return names
}

// Close releases the append log file, if any.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDevOf is the population standard deviation.
func stdDevOf(values []float64, mean float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// percentile computes the q-quantile of sorted values using linear
// interpolation between closest ranks, matching standard percentile
// implementations.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
