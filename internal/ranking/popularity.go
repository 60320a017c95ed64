// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package ranking

// Rating is one catalog item's raw rating observation. Known is false when
// the catalog holds no rating for the item.
type Rating struct {
	ID    string
	Value float64
	Known bool
}

// PopularityTable maps item IDs to popularity scores in [0,1], normalized
// against the full catalog. It is a point-in-time snapshot: rebuild it when
// the catalog changes rather than mutating it under concurrent readers.
type PopularityTable map[string]float64

// Score returns the popularity score for id, or 0 for items absent from the
// snapshot.
func (t PopularityTable) Score(id string) float64 {
	return t[id]
}

// BuildPopularityTable normalizes raw catalog ratings into popularity scores.
//
// Missing ratings are imputed to the mean of the known ratings BEFORE
// normalization, then every value is divided by the maximum known rating.
// The baseline is the whole catalog, not the per-request candidate set, so a
// candidate's popularity does not shift with the query. A catalog with no
// known ratings (or a non-positive maximum) yields all-zero scores.
func BuildPopularityTable(ratings []Rating) PopularityTable {
	table := make(PopularityTable, len(ratings))

	var sum float64
	var known int
	max := 0.0
	for _, r := range ratings {
		if !r.Known {
			continue
		}
		sum += r.Value
		known++
		if r.Value > max {
			max = r.Value
		}
	}

	if known == 0 || max <= 0 {
		for _, r := range ratings {
			table[r.ID] = 0
		}
		return table
	}

	mean := sum / float64(known)
	for _, r := range ratings {
		value := r.Value
		if !r.Known {
			value = mean
		}
		table[r.ID] = value / max
	}
	return table
}
