// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package evaluate

import (
	"math"
	"sort"
)

// Dataset is a columnar sample of numeric features, column name to values.
type Dataset map[string][]float64

// DriftDetail describes the mean shift of one drifting column.
type DriftDetail struct {
	BaselineMean float64 `json:"baseline_mean"`
	CurrentMean  float64 `json:"current_mean"`
	ChangePct    float64 `json:"change_pct"`
}

// DriftReport is the outcome of a drift check.
type DriftReport struct {
	DriftDetected    bool                   `json:"drift_detected"`
	ColumnsWithDrift []string               `json:"columns_with_drift"`
	Details          map[string]DriftDetail `json:"details"`
}

// CheckDataDrift compares per-column means between a baseline and a current
// sample. A column drifts when |current - baseline| / |baseline| exceeds
// threshold; a zero baseline mean is treated as no change to avoid division
// by zero. Columns absent from the current dataset, or empty on either side,
// are skipped, not flagged. The aggregate DriftDetected is true when any
// column drifts.
func CheckDataDrift(baseline, current Dataset, threshold float64) DriftReport {
	report := DriftReport{
		ColumnsWithDrift: []string{},
		Details:          map[string]DriftDetail{},
	}

	for column, baseValues := range baseline {
		curValues, ok := current[column]
		if !ok || len(baseValues) == 0 || len(curValues) == 0 {
			continue
		}

		baseMean := meanOf(baseValues)
		curMean := meanOf(curValues)

		changePct := 0.0
		if baseMean != 0 {
			changePct = math.Abs(curMean-baseMean) / math.Abs(baseMean)
		}

		if changePct > threshold {
			report.DriftDetected = true
			report.ColumnsWithDrift = append(report.ColumnsWithDrift, column)
			report.Details[column] = DriftDetail{
				BaselineMean: baseMean,
				CurrentMean:  curMean,
				ChangePct:    changePct,
			}
		}
	}

	sort.Strings(report.ColumnsWithDrift)
	return report
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
