// Package ntuple implements the N-tuple value network, its policy variant and
// the binary model formats shared with the external trainer.
//
// A Network is a sum of table lookups. Tuple instances point at master tables
// by index, so the eight symmetric copies of a pattern share one table.
// Predict only reads; Train and LoadFromBinary write. Callers serialize
// writers against readers.
package ntuple

import (
	"github.com/brensch/threes/game"
	"github.com/brensch/threes/potential"
)

const (
	DefaultAlpha = 0.0025
	DefaultGamma = 0.99
)

// Stats are informational training statistics carried in the model file.
type Stats struct {
	TotalEpisodes  uint64
	BestTop1Avg    float64
	BestOverallAvg float64
	BestBot10Avg   float64
}

type Network struct {
	tuples  []Tuple
	weights [][]float64

	Alpha     float64
	Gamma     float64
	Potential potential.Weights
	Stats     Stats
}

// New returns a network with the shared-snake layout and zero weights.
func New() *Network {
	n := &Network{}
	n.Reset()
	return n
}

// Reset restores the generated layout, zero weights and default parameters.
func (n *Network) Reset() {
	n.tuples = GeneratePatterns()
	n.weights = make([][]float64, NumMasterTables())
	for i := range n.weights {
		n.weights[i] = make([]float64, TableSize)
	}
	n.Alpha = DefaultAlpha
	n.Gamma = DefaultGamma
	n.Potential = potential.Weights{}
	n.Stats = Stats{}
}

func (n *Network) NumTuples() int { return len(n.tuples) }
func (n *Network) NumTables() int { return len(n.weights) }

// Predict sums the master-table entries selected by every tuple instance.
func (n *Network) Predict(b game.Board) float64 {
	codes := encodeBoard(b)
	sum := 0.0
	for i := range n.tuples {
		t := &n.tuples[i]
		sum += n.weights[t.Table][t.index(&codes)]
	}
	return sum
}

// Train moves Predict(b) toward target by alpha, splitting the correction
// evenly across tuple instances. Aliased instances hit the same cell more
// than once, so the step only contracts while alpha times the largest
// per-cell multiplicity stays below 2. It returns the error before the update.
func (n *Network) Train(b game.Board, target, alpha float64) float64 {
	codes := encodeBoard(b)
	sum := 0.0
	for i := range n.tuples {
		t := &n.tuples[i]
		sum += n.weights[t.Table][t.index(&codes)]
	}
	err := target - sum
	if len(n.tuples) == 0 {
		return err
	}
	split := err * alpha / float64(len(n.tuples))
	for i := range n.tuples {
		t := &n.tuples[i]
		n.weights[t.Table][t.index(&codes)] += split
	}
	return err
}

// Clone deep-copies the network.
func (n *Network) Clone() *Network {
	out := &Network{
		tuples:    append([]Tuple(nil), n.tuples...),
		weights:   make([][]float64, len(n.weights)),
		Alpha:     n.Alpha,
		Gamma:     n.Gamma,
		Potential: n.Potential,
		Stats:     n.Stats,
	}
	for i, w := range n.weights {
		out.weights[i] = append([]float64(nil), w...)
	}
	return out
}
