// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package ranking implements the hybrid scoring core: it blends semantic
// similarity from the vector search backend with a catalog-wide popularity
// signal (and optionally a content-feature similarity term) into a single
// descending ranking.
//
// Calibration note: semantic scores are used RAW, in whatever range the
// search backend returns them (cosine similarity may be [-1,1] or [0,1]),
// while popularity scores are pre-normalized to [0,1] against the full
// catalog. The semantic term is therefore not guaranteed to share the
// popularity term's scale, which shifts the effective alpha weighting in
// practice. This asymmetry is preserved deliberately for compatibility with
// the deployed scoring behavior; renormalizing the semantic side would
// change every production ranking.
package ranking

import (
	"errors"
	"sort"
)

// ErrInvalidParameter indicates a blend weight or result count outside its
// valid range.
var ErrInvalidParameter = errors.New("ranking: invalid parameter")

// Candidate is one semantically-scored item from the search backend.
type Candidate struct {
	// ID is the catalog item identifier.
	ID string

	// SemanticScore is the similarity between the query embedding and the
	// item embedding, in the backend's native range.
	SemanticScore float64

	// FeatureScore is an optional content-feature similarity term, only
	// consulted when Params.Beta > 0.
	FeatureScore float64
}

// Ranked is one entry of the final ranking.
type Ranked struct {
	ID          string  `json:"id"`
	HybridScore float64 `json:"hybrid_score"`
}

// Params holds the blend weights for a ranking call.
//
// With Beta == 0 the score is alpha*semantic + (1-alpha)*popularity.
// With Beta > 0 it is alpha*semantic + beta*features + (1-alpha-beta)*popularity.
type Params struct {
	Alpha float64
	Beta  float64
}

// Validate checks the blend weights.
// Alpha must be in [0,1], Beta non-negative, and Alpha+Beta must not exceed 1.
func (p Params) Validate() error {
	if p.Alpha < 0 || p.Alpha > 1 {
		return ErrInvalidParameter
	}
	if p.Beta < 0 || p.Alpha+p.Beta > 1 {
		return ErrInvalidParameter
	}
	return nil
}

// Rank blends semantic, optional feature, and popularity scores into the
// top-n ranking.
//
// Ordering is strictly descending by hybrid score; ties preserve the original
// candidate order (stable sort), so results are deterministic for a given
// input. Duplicate candidate IDs keep their first occurrence. The result
// holds exactly min(n, distinct candidates) entries; an empty candidate set
// yields an empty ranking, not an error, because zero catalog matches is a
// routine outcome that must not fail the request.
func Rank(candidates []Candidate, popularity PopularityTable, n int, params Params) ([]Ranked, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrInvalidParameter
	}

	if len(candidates) == 0 {
		return []Ranked{}, nil
	}

	popWeight := 1 - params.Alpha - params.Beta

	seen := make(map[string]struct{}, len(candidates))
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		score := params.Alpha * c.SemanticScore
		if params.Beta > 0 {
			score += params.Beta * c.FeatureScore
		}
		score += popWeight * popularity.Score(c.ID)

		ranked = append(ranked, Ranked{ID: c.ID, HybridScore: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].HybridScore > ranked[j].HybridScore
	})

	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked, nil
}
