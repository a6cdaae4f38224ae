package search

import (
	"math"

	"github.com/brensch/threes/game"
)

// Confidences turns Q-values into a feedback distribution:
// (Q(d) − minQ + 1) / Σ_valid (Q(d') − minQ + 1). Invalid directions get 0.
// It is not used for move selection.
func Confidences(q [4]float64) [4]float64 {
	var out [4]float64
	minQ := math.Inf(1)
	valid := 0
	for _, v := range q {
		if math.IsInf(v, -1) {
			continue
		}
		valid++
		if v < minQ {
			minQ = v
		}
	}
	if valid == 0 {
		return out
	}
	total := 0.0
	for i, v := range q {
		if math.IsInf(v, -1) {
			continue
		}
		out[i] = v - minQ + 1
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Confidence is the share of dir among the current Q-values.
func (s *Searcher) Confidence(g Game, dir game.Direction) float64 {
	if !dir.Valid() {
		return 0
	}
	return Confidences(s.QValues(g))[dir]
}
