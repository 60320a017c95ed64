// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package monitor

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/savora/internal/logging"
)

func newTestCollector(t *testing.T, cfg CollectorConfig) *Collector {
	t.Helper()
	c, err := NewCollector(cfg, logging.NewTestLogger(os.Stderr))
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCollector_RecordAndLatest(t *testing.T) {
	c := newTestCollector(t, CollectorConfig{})

	c.Record("latency", 10, nil)
	c.Record("latency", 20, map[string]string{"route": "recommend"})
	c.Record("latency", 30, nil)

	points := c.Latest("latency", 2)
	if len(points) != 2 {
		t.Fatalf("Latest() returned %d points, want 2", len(points))
	}
	if points[0].Value != 20 || points[1].Value != 30 {
		t.Errorf("Latest() values = [%f, %f], want [20, 30] in chronological order",
			points[0].Value, points[1].Value)
	}
	if points[0].Labels["route"] != "recommend" {
		t.Errorf("labels not preserved: %v", points[0].Labels)
	}
}

func TestCollector_UnknownSeries(t *testing.T) {
	c := newTestCollector(t, CollectorConfig{})

	if points := c.Latest("nope", 10); len(points) != 0 {
		t.Errorf("Latest(unknown) returned %d points, want 0", len(points))
	}
	if _, ok := c.Stats("nope", time.Hour); ok {
		t.Error("Stats(unknown) ok = true, want false")
	}
}

func TestCollector_RetentionEviction(t *testing.T) {
	c := newTestCollector(t, CollectorConfig{MaxPoints: 3})

	for i := 1; i <= 5; i++ {
		c.Record("s", float64(i), nil)
	}

	points := c.Latest("s", 10)
	if len(points) != 3 {
		t.Fatalf("retention kept %d points, want 3", len(points))
	}
	want := []float64{3, 4, 5}
	for i, w := range want {
		if points[i].Value != w {
			t.Errorf("points[%d].Value = %f, want %f (oldest must be evicted first)",
				i, points[i].Value, w)
		}
	}
}

func TestCollector_NonFiniteValuesDropped(t *testing.T) {
	c := newTestCollector(t, CollectorConfig{})

	c.Record("s", math.NaN(), nil)
	c.Record("s", math.Inf(1), nil)
	c.Record("s", math.Inf(-1), nil)
	c.Record("s", 1.5, nil)

	points := c.Latest("s", 10)
	if len(points) != 1 || points[0].Value != 1.5 {
		t.Errorf("non-finite values must be dropped, got %d points", len(points))
	}
}

func TestCollector_Stats(t *testing.T) {
	c := newTestCollector(t, CollectorConfig{})

	for _, v := range []float64{10, 20, 30, 40, 50} {
		c.Record("s", v, nil)
	}

	stats, ok := c.Stats("s", time.Hour)
	if !ok {
		t.Fatal("Stats() ok = false, want true")
	}
	if stats.Count != 5 {
		t.Errorf("Count = %d, want 5", stats.Count)
	}
	if stats.Mean != 30 {
		t.Errorf("Mean = %f, want 30", stats.Mean)
	}
	if stats.Min != 10 || stats.Max != 50 {
		t.Errorf("Min/Max = %f/%f, want 10/50", stats.Min, stats.Max)
	}
	if stats.P50 != 30 {
		t.Errorf("P50 = %f, want 30", stats.P50)
	}
	// Linear interpolation: p95 position = 0.95*4 = 3.8 → 40 + 0.8*10 = 48.
	if math.Abs(stats.P95-48) > 1e-9 {
		t.Errorf("P95 = %f, want 48", stats.P95)
	}
	// Population std of [10..50] = sqrt(200).
	if math.Abs(stats.StdDev-math.Sqrt(200)) > 1e-9 {
		t.Errorf("StdDev = %f, want %f", stats.StdDev, math.Sqrt(200))
	}
}

func TestCollector_StatsWindowFiltering(t *testing.T) {
	c := newTestCollector(t, CollectorConfig{})

	base := time.Now()
	c.now = func() time.Time { return base.Add(-2 * time.Hour) }
	c.Record("s", 100, nil)
	c.now = func() time.Time { return base }
	c.Record("s", 10, nil)

	stats, ok := c.Stats("s", time.Hour)
	if !ok {
		t.Fatal("Stats() ok = false, want true")
	}
	if stats.Count != 1 || stats.Mean != 10 {
		t.Errorf("window must exclude old points: Count=%d Mean=%f", stats.Count, stats.Mean)
	}
}

func TestCollector_DurableLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "metrics.jsonl")
	c := newTestCollector(t, CollectorConfig{LogPath: path})

	c.Record("latency", 12.5, map[string]string{"route": "recommend"})
	c.Record("latency", 13.5, nil)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("log has %d lines, want 2", len(lines))
	}

	var rec struct {
		Metric string            `json:"metric"`
		Value  float64           `json:"value"`
		Labels map[string]string `json:"labels"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line not valid JSON: %v", err)
	}
	if rec.Metric != "latency" || rec.Value != 12.5 || rec.Labels["route"] != "recommend" {
		t.Errorf("unexpected log record: %+v", rec)
	}
	if !strings.Contains(lines[0], `"timestamp"`) {
		t.Error("log record missing timestamp field")
	}
}

func TestCollector_SeriesNames(t *testing.T) {
	c := newTestCollector(t, CollectorConfig{})

	c.Record("b", 1, nil)
	c.Record("a", 1, nil)

	names := c.SeriesNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("SeriesNames() = %v, want [a b]", names)
	}
}
