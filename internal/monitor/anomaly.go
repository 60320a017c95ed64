// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package monitor

import "math"

// Anomaly is one flagged outlier in a value sequence.
type Anomaly struct {
	Index  int     `json:"index"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score"`
}

// AnomalyReport holds the outcome of a Z-score scan.
type AnomalyReport struct {
	Anomalies []Anomaly `json:"anomalies"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	// Rate is flagged count over total count.
	Rate float64 `json:"rate"`
}

// DetectAnomalies flags values whose |z-score| exceeds threshold, using the
// population mean and standard deviation of the whole sequence.
//
// Fewer than two samples, or a zero standard deviation, yields no anomalies:
// a constant series is degenerate but well-defined, not anomalous.
func DetectAnomalies(values []float64, threshold float64) AnomalyReport {
	report := AnomalyReport{Anomalies: []Anomaly{}}
	if len(values) < 2 {
		return report
	}

	mean := meanOf(values)
	std := stdDevOf(values, mean)
	report.Mean = mean
	report.StdDev = std
	if std == 0 {
		return report
	}

	for i, v := range values {
		z := (v - mean) / std
		if math.Abs(z) > threshold {
			report.Anomalies = append(report.Anomalies, Anomaly{Index: i, Value: v, ZScore: z})
		}
	}
	report.Rate = float64(len(report.Anomalies)) / float64(len(values))
	return report
}

// Degradation holds the outcome of a windowed performance comparison.
type Degradation struct {
	Degraded bool `json:"degraded"`
	// RecentMean is the mean of the most recent window.
	RecentMean float64 `json:"recent_mean"`
	// HistoricalMean is the mean of the window preceding it.
	HistoricalMean float64 `json:"historical_mean"`
	// Drop is the relative decline (historical - recent) / historical.
	Drop float64 `json:"drop"`
}

// DetectDegradation compares the mean of the most recent windowSize samples
// against the mean of the windowSize samples before them, and flags
// degradation when the relative drop exceeds threshold.
//
// Sign convention: this assumes higher-is-better metrics such as accuracy.
// Only a DROP counts as degradation; for lower-is-better metrics (latency,
// error rate) the caller must invert the series before calling, or alerts
// will fire backwards.
//
// Fewer than 2*windowSize samples means insufficient history, which is
// reported as no degradation rather than an error.
func DetectDegradation(values []float64, windowSize int, threshold float64) Degradation {
	if windowSize <= 0 || len(values) < 2*windowSize {
		return Degradation{}
	}

	recent := values[len(values)-windowSize:]
	historical := values[len(values)-2*windowSize : len(values)-windowSize]

	d := Degradation{
		RecentMean:     meanOf(recent),
		HistoricalMean: meanOf(historical),
	}
	if d.HistoricalMean == 0 {
		return d
	}
	d.Drop = (d.HistoricalMean - d.RecentMean) / d.HistoricalMean
	d.Degraded = d.Drop > threshold
	return d
}
