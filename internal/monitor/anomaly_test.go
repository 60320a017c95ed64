// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package monitor

import (
	"testing"
)

func TestDetectAnomalies(t *testing.T) {
	tests := []struct {
		name        string
		values      []float64
		threshold   float64
		wantIndices []int
	}{
		{
			name:        "constant series has zero variance and no anomalies",
			values:      []float64{10, 10, 10, 10, 10},
			threshold:   3.0,
			wantIndices: nil,
		},
		{
			name:        "clear outlier flagged",
			values:      []float64{10, 10, 10, 10, 100},
			threshold:   2.0,
			wantIndices: []int{4},
		},
		{
			name:        "empty series",
			values:      nil,
			threshold:   3.0,
			wantIndices: nil,
		},
		{
			name:        "single sample is not anomalous",
			values:      []float64{42},
			threshold:   0.5,
			wantIndices: nil,
		},
		{
			name:        "tight threshold flags both tails",
			values:      []float64{-50, 0, 0, 0, 0, 0, 0, 50},
			threshold:   1.5,
			wantIndices: []int{0, 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := DetectAnomalies(tt.values, tt.threshold)
			if len(report.Anomalies) != len(tt.wantIndices) {
				t.Fatalf("flagged %d anomalies, want %d: %+v",
					len(report.Anomalies), len(tt.wantIndices), report.Anomalies)
			}
			for i, want := range tt.wantIndices {
				if report.Anomalies[i].Index != want {
					t.Errorf("anomaly[%d].Index = %d, want %d", i, report.Anomalies[i].Index, want)
				}
			}
			if len(tt.values) > 0 {
				wantRate := float64(len(tt.wantIndices)) / float64(len(tt.values))
				if report.Rate != wantRate {
					t.Errorf("Rate = %f, want %f", report.Rate, wantRate)
				}
			}
		})
	}
}

func TestDetectAnomalies_OutlierDetail(t *testing.T) {
	report := DetectAnomalies([]float64{10, 10, 10, 10, 100}, 2.0)
	if len(report.Anomalies) != 1 {
		t.Fatalf("flagged %d anomalies, want 1", len(report.Anomalies))
	}
	a := report.Anomalies[0]
	if a.Value != 100 {
		t.Errorf("anomaly value = %f, want 100", a.Value)
	}
	if a.ZScore <= 2.0 {
		t.Errorf("anomaly z-score = %f, want > 2.0", a.ZScore)
	}
}

func TestDetectDegradation(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		window    int
		threshold float64
		want      bool
	}{
		{
			name:      "gradual slide stays under threshold",
			values:    []float64{0.92, 0.91, 0.90, 0.89, 0.88, 0.85, 0.84, 0.83, 0.80},
			window:    3,
			threshold: 0.1,
			want:      false,
		},
		{
			name:      "sharp drop detected",
			values:    []float64{0.90, 0.91, 0.92, 0.50, 0.48, 0.46},
			window:    3,
			threshold: 0.1,
			want:      true,
		},
		{
			name:      "insufficient history",
			values:    []float64{0.9, 0.5, 0.4},
			window:    3,
			threshold: 0.1,
			want:      false,
		},
		{
			name:      "improvement is not degradation",
			values:    []float64{0.5, 0.5, 0.5, 0.9, 0.9, 0.9},
			window:    3,
			threshold: 0.1,
			want:      false,
		},
		{
			name:      "zero historical mean guarded",
			values:    []float64{0, 0, 0, 0, 0, 0},
			window:    3,
			threshold: 0.1,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectDegradation(tt.values, tt.window, tt.threshold)
			if got.Degraded != tt.want {
				t.Errorf("Degraded = %v, want %v (recent=%f historical=%f drop=%f)",
					got.Degraded, tt.want, got.RecentMean, got.HistoricalMean, got.Drop)
			}
		})
	}
}
