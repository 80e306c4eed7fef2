// Package explain turns per-feature importance weights into a ranked,
// human-readable sequence.
package explain

import (
	"slices"
	"sort"
)

// Weight is one feature's importance as produced by a model.
type Weight struct {
	Feature    string
	Importance float64
}

// Ranked is a single entry of a ranked explanation.
type Ranked struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Rank orders weights by importance, highest first. Ties keep their input
// order so the output is deterministic. The input slice is not modified.
func Rank(weights []Weight) []Ranked {
	sorted := slices.Clone(weights)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})

	out := make([]Ranked, len(sorted))
	for i, w := range sorted {
		out[i] = Ranked{Feature: w.Feature, Importance: w.Importance}
	}
	return out
}
