// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package evaluate provides pure, stateless model evaluation: ranking and
// classification metrics, NDCG/MRR, retrieval metrics, data drift checks,
// and output validation.
//
// Degenerate inputs (zero variance, zero-count denominators) resolve to 0
// rather than errors; they arise routinely and must not fail evaluation runs.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrLengthMismatch indicates paired input slices of different lengths.
var ErrLengthMismatch = errors.New("evaluate: input length mismatch")

// RankingMetrics are regression-style metrics over predicted vs true scores.
type RankingMetrics struct {
	MSE  float64 `json:"mse"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`

	// R2 falls back to 0 when the true values have zero variance. That is a
	// deliberate guard against division by zero, not mathematically correct
	// R²; a constant target makes the statistic undefined.
	R2 float64 `json:"r2_score"`
}

// Map flattens the metrics for registry storage.
func (m RankingMetrics) Map() map[string]float64 {
	return map[string]float64{
		"mse":      m.MSE,
		"mae":      m.MAE,
		"rmse":     m.RMSE,
		"r2_score": m.R2,
	}
}

// Ranking computes MSE, MAE, RMSE, and guarded R².
func Ranking(yTrue, yPred []float64) (RankingMetrics, error) {
	if len(yTrue) != len(yPred) {
		return RankingMetrics{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return RankingMetrics{}, fmt.Errorf("%w: empty input", ErrLengthMismatch)
	}

	var sqSum, absSum, trueSum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sqSum += d * d
		absSum += math.Abs(d)
		trueSum += yTrue[i]
	}
	n := float64(len(yTrue))
	mse := sqSum / n

	trueMean := trueSum / n
	var ssTot float64
	for _, v := range yTrue {
		d := v - trueMean
		ssTot += d * d
	}
	r2 := 0.0
	if ssTot != 0 {
		r2 = 1 - sqSum/ssTot
	}

	return RankingMetrics{
		MSE:  mse,
		MAE:  absSum / n,
		RMSE: math.Sqrt(mse),
		R2:   r2,
	}, nil
}

// ClassificationMetrics are accuracy plus averaged precision/recall/F1.
type ClassificationMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

// Map flattens the metrics for registry storage.
func (m ClassificationMetrics) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1_score":  m.F1,
	}
}

// Classification computes accuracy, precision, recall, and F1.
//
// The averaging mode is selected by the number of distinct true classes:
// exactly two uses binary averaging with class 1 as the positive label,
// anything else uses support-weighted per-class averaging. Zero-count
// denominators resolve to 0.
func Classification(yTrue, yPred []int) (ClassificationMetrics, error) {
	if len(yTrue) != len(yPred) {
		return ClassificationMetrics{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return ClassificationMetrics{}, fmt.Errorf("%w: empty input", ErrLengthMismatch)
	}

	correct := 0
	classes := make(map[int]struct{})
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
		classes[yTrue[i]] = struct{}{}
	}
	m := ClassificationMetrics{Accuracy: float64(correct) / float64(len(yTrue))}

	if len(classes) == 2 {
		p, r, f1 := classScores(yTrue, yPred, 1)
		m.Precision, m.Recall, m.F1 = p, r, f1
		return m, nil
	}

	// Weighted average: each class's score weighted by its true-label count.
	total := float64(len(yTrue))
	for class := range classes {
		support := 0
		for _, t := range yTrue {
			if t == class {
				support++
			}
		}
		p, r, f1 := classScores(yTrue, yPred, class)
		w := float64(support) / total
		m.Precision += w * p
		m.Recall += w * r
		m.F1 += w * f1
	}
	return m, nil
}

// classScores computes precision/recall/F1 for one class treated as
// positive, with zero-division guarded to 0.
func classScores(yTrue, yPred []int, class int) (precision, recall, f1 float64) {
	var tp, fp, fn float64
	for i := range yTrue {
		predPos := yPred[i] == class
		truePos := yTrue[i] == class
		switch {
		case predPos && truePos:
			tp++
		case predPos && !truePos:
			fp++
		case !predPos && truePos:
			fn++
		}
	}
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// NDCG computes Normalized Discounted Cumulative Gain at k, with gain
// 2^relevance - 1 and discount log2(rank+1). When the ideal DCG is zero
// (no relevant items at all), NDCG is defined as 0.
func NDCG(yTrue, yScores []float64, k int) (float64, error) {
	if len(yTrue) != len(yScores) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yScores))
	}
	if k <= 0 || len(yTrue) == 0 {
		return 0, nil
	}

	ideal := make([]float64, len(yTrue))
	copy(ideal, yTrue)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	idcg := dcg(ideal, k)
	if idcg == 0 {
		return 0, nil
	}

	ordered := relevanceByScore(yTrue, yScores)
	return dcg(ordered, k) / idcg, nil
}

// MRR computes the reciprocal rank of the first item, in descending
// predicted-score order, whose true relevance is positive. Returns 0 when
// nothing relevant is retrieved.
func MRR(yTrue, yScores []float64) (float64, error) {
	if len(yTrue) != len(yScores) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yScores))
	}

	ordered := relevanceByScore(yTrue, yScores)
	for i, rel := range ordered {
		if rel > 0 {
			return 1 / float64(i+1), nil
		}
	}
	return 0, nil
}

// RetrievalMetrics are confusion-matrix metrics after thresholding both true
// and predicted scores into binary labels.
type RetrievalMetrics struct {
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1_score"`
	Specificity float64 `json:"specificity"`
	TP          int     `json:"tp"`
	FP          int     `json:"fp"`
	TN          int     `json:"tn"`
	FN          int     `json:"fn"`
}

// Retrieval thresholds both sides at cutoff (>= is positive) and computes
// confusion counts plus derived rates, zero-division guarded to 0.
func Retrieval(yTrue, yScores []float64, cutoff float64) (RetrievalMetrics, error) {
	if len(yTrue) != len(yScores) {
		return RetrievalMetrics{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yScores))
	}

	var m RetrievalMetrics
	for i := range yTrue {
		truePos := yTrue[i] >= cutoff
		predPos := yScores[i] >= cutoff
		switch {
		case truePos && predPos:
			m.TP++
		case !truePos && predPos:
			m.FP++
		case truePos && !predPos:
			m.FN++
		default:
			m.TN++
		}
	}

	if m.TP+m.FP > 0 {
		m.Precision = float64(m.TP) / float64(m.TP+m.FP)
	}
	if m.TP+m.FN > 0 {
		m.Recall = float64(m.TP) / float64(m.TP+m.FN)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	if m.TN+m.FP > 0 {
		m.Specificity = float64(m.TN) / float64(m.TN+m.FP)
	}
	return m, nil
}

// dcg sums discounted gains over the first k entries of relevance.
func dcg(relevance []float64, k int) float64 {
	if k > len(relevance) {
		k = len(relevance)
	}
	var sum float64
	for i := 0; i < k; i++ {
		sum += (math.Pow(2, relevance[i]) - 1) / math.Log2(float64(i+2))
	}
	return sum
}

// relevanceByScore returns the true relevances reordered by descending
// predicted score. The sort is stable so equal scores keep input order.
func relevanceByScore(yTrue, yScores []float64) []float64 {
	idx := make([]int, len(yScores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScores[idx[a]] > yScores[idx[b]]
	})

	out := make([]float64, len(yTrue))
	for i, j := range idx {
		out[i] = yTrue[j]
	}
	return out
}
