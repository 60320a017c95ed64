// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package ranking

import (
	"math"
	"testing"
)

func TestBuildPopularityTable(t *testing.T) {
	tests := []struct {
		name    string
		ratings []Rating
		want    map[string]float64
	}{
		{
			name: "known ratings normalized by max",
			ratings: []Rating{
				{ID: "a", Value: 5, Known: true},
				{ID: "b", Value: 2.5, Known: true},
			},
			want: map[string]float64{"a": 1.0, "b": 0.5},
		},
		{
			name: "missing rating imputed to mean before normalization",
			ratings: []Rating{
				{ID: "a", Value: 4, Known: true},
				{ID: "b", Value: 2, Known: true},
				{ID: "c"}, // imputed to mean 3, normalized by max 4
			},
			want: map[string]float64{"a": 1.0, "b": 0.5, "c": 0.75},
		},
		{
			name: "no known ratings yields all zeros",
			ratings: []Rating{
				{ID: "a"},
				{ID: "b"},
			},
			want: map[string]float64{"a": 0, "b": 0},
		},
		{
			name: "zero max yields all zeros",
			ratings: []Rating{
				{ID: "a", Value: 0, Known: true},
				{ID: "b"},
			},
			want: map[string]float64{"a": 0, "b": 0},
		},
		{
			name:    "empty catalog",
			ratings: nil,
			want:    map[string]float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := BuildPopularityTable(tt.ratings)
			if len(table) != len(tt.want) {
				t.Fatalf("table has %d entries, want %d", len(table), len(tt.want))
			}
			for id, want := range tt.want {
				got, ok := table[id]
				if !ok {
					t.Errorf("missing entry for %q", id)
					continue
				}
				if math.Abs(got-want) > 1e-9 {
					t.Errorf("table[%q] = %f, want %f", id, got, want)
				}
			}
		})
	}
}

func TestPopularityTable_Score_UnknownID(t *testing.T) {
	table := PopularityTable{"a": 0.8}
	if got := table.Score("missing"); got != 0 {
		t.Errorf("Score(missing) = %f, want 0", got)
	}
}

func TestBuildPopularityTable_ScoresWithinUnitInterval(t *testing.T) {
	ratings := []Rating{
		{ID: "a", Value: 4.7, Known: true},
		{ID: "b", Value: 1.2, Known: true},
		{ID: "c", Value: 3.3, Known: true},
		{ID: "d"},
		{ID: "e", Value: 5.0, Known: true},
	}

	table := BuildPopularityTable(ratings)
	for id, score := range table {
		if score < 0 || score > 1 {
			t.Errorf("score for %q = %f outside [0,1]", id, score)
		}
	}
}
