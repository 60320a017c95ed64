// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package evaluate

import (
	"fmt"
	"math"
)

// Range is an inclusive value interval.
type Range struct {
	Min float64
	Max float64
}

// OutputExpectation configures output validation. Nil fields skip the
// corresponding check.
type OutputExpectation struct {
	// Length is the expected prediction count.
	Length *int

	// Range is the allowed value interval.
	Range *Range
}

// ValidationResult is a structured pass/fail. Validation failures are data,
// not errors: the caller decides what a failed validation means.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// ValidateOutput checks model predictions for shape mismatch, NaN, Inf, and
// out-of-range values against the caller's expectations. All applicable
// issues are collected, not just the first.
func ValidateOutput(predictions []float64, expect OutputExpectation) ValidationResult {
	result := ValidationResult{Valid: true, Issues: []string{}}

	if expect.Length != nil && len(predictions) != *expect.Length {
		result.Valid = false
		result.Issues = append(result.Issues,
			fmt.Sprintf("Shape mismatch: expected %d, got %d", *expect.Length, len(predictions)))
	}

	hasNaN, hasInf, outOfRange := false, false, false
	for _, v := range predictions {
		switch {
		case math.IsNaN(v):
			hasNaN = true
		case math.IsInf(v, 0):
			hasInf = true
		case expect.Range != nil && (v < expect.Range.Min || v > expect.Range.Max):
			outOfRange = true
		}
	}

	if hasNaN {
		result.Valid = false
		result.Issues = append(result.Issues, "NaN values detected in predictions")
	}
	if hasInf {
		result.Valid = false
		result.Issues = append(result.Issues, "Inf values detected in predictions")
	}
	if outOfRange {
		result.Valid = false
		result.Issues = append(result.Issues,
			fmt.Sprintf("Values out of range [%g, %g]", expect.Range.Min, expect.Range.Max))
	}

	return result
}
