// Package search scores moves one ply deep over the published spawn band.
//
// For each direction the board is rotated into LEFT alignment, shifted, and
// every (moved row, hint value) pair is materialized and valued with
// V(s) = Predict(s) + Composite(s). Expectimax averages those outcomes; Safe
// takes the worst one. The search only ever sees Game.Hints, never the
// committed spawn value.
package search

import (
	"math"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/ntuple"
	"github.com/brensch/threes/rules"
)

// Invalid is the Q-value of a direction with no legal shift.
var Invalid = math.Inf(-1)

// fallbackHints is used when the published band is empty.
var fallbackHints = []int{1, 2, 3}

// Mode selects how outcomes at the chance node are combined.
type Mode int

const (
	Expectimax Mode = iota
	Safe
)

func (m Mode) String() string {
	if m == Safe {
		return "safe"
	}
	return "expectimax"
}

// ParseMode accepts "expectimax" and "safe"; anything else is Expectimax.
func ParseMode(s string) Mode {
	if s == "safe" || s == "minimax" {
		return Safe
	}
	return Expectimax
}

// Game is the read-only view the searcher needs from a live engine.
type Game interface {
	Board() game.Board
	Hints() []int
	CanMove(dir game.Direction) bool
}

type Searcher struct {
	Net    *ntuple.Network
	Policy *ntuple.Policy
	Mode   Mode
	// UsePolicy defers BestMove to the policy network when it is set.
	UsePolicy bool
}

func New(net *ntuple.Network, mode Mode) *Searcher {
	return &Searcher{Net: net, Mode: mode}
}

func (s *Searcher) gamma() float64 {
	if s.Net == nil || s.Net.Gamma == 0 {
		return ntuple.DefaultGamma
	}
	return s.Net.Gamma
}

// TotalValue is the canonical V(s): network prediction plus the weighted
// composite potential.
func (s *Searcher) TotalValue(b game.Board) float64 {
	if s.Net == nil {
		return 0
	}
	return s.Net.Predict(b) + s.Net.Potential.Composite(b)
}

// Outcomes simulates dir on b and returns the immediate score gain and every
// post-spawn board reachable with the given hint values. ok is false when no
// row moves.
func Outcomes(b game.Board, dir game.Direction, hints []int) (reward float64, boards []game.Board, ok bool) {
	rot := dir.Rotations()
	aligned := b.Rotate(rot)
	shifted, moved := rules.Shift(aligned)

	gain := 0
	rows := make([]int, 0, game.Size)
	for r, m := range moved {
		if !m {
			continue
		}
		rows = append(rows, r)
		for c := 0; c < game.Size; c++ {
			gain += game.TileScore(shifted[r][c]) - game.TileScore(aligned[r][c])
		}
	}
	if len(rows) == 0 {
		return 0, nil, false
	}
	if len(hints) == 0 {
		hints = fallbackHints
	}

	boards = make([]game.Board, 0, len(rows)*len(hints))
	for _, r := range rows {
		for _, v := range hints {
			out := shifted
			out[r][game.Size-1] = v
			boards = append(boards, out.Rotate(4-rot))
		}
	}
	return float64(gain), boards, true
}

// Evaluate is Q(dir) for an explicit board and hint band.
func (s *Searcher) Evaluate(b game.Board, hints []int, dir game.Direction) float64 {
	if !rules.CanMove(b, dir) {
		return Invalid
	}
	reward, boards, ok := Outcomes(b, dir, hints)
	if !ok {
		return Invalid
	}
	var agg float64
	switch s.Mode {
	case Safe:
		agg = math.Inf(1)
		for _, o := range boards {
			if v := s.TotalValue(o); v < agg {
				agg = v
			}
		}
	default:
		for _, o := range boards {
			agg += s.TotalValue(o)
		}
		agg /= float64(len(boards))
	}
	return reward + s.gamma()*agg
}

// EvaluateMove is Q(dir) for the game's current board and published hints.
func (s *Searcher) EvaluateMove(g Game, dir game.Direction) float64 {
	if !g.CanMove(dir) {
		return Invalid
	}
	return s.Evaluate(g.Board(), g.Hints(), dir)
}

// QValues evaluates all four directions in action-index order.
func (s *Searcher) QValues(g Game) [4]float64 {
	b, hints := g.Board(), g.Hints()
	var q [4]float64
	for i, d := range game.Directions {
		if !g.CanMove(d) {
			q[i] = Invalid
			continue
		}
		q[i] = s.Evaluate(b, hints, d)
	}
	return q
}

// BestMove picks the direction with the highest Q under the current mode,
// or the policy's choice when UsePolicy is set and it names a legal move.
// It reports false when no direction is legal.
func (s *Searcher) BestMove(g Game) (game.Direction, bool) {
	return s.BestFromQ(g, s.QValues(g))
}

// BestFromQ is BestMove over already computed Q-values.
func (s *Searcher) BestFromQ(g Game, q [4]float64) (game.Direction, bool) {
	if s.UsePolicy && s.Policy != nil {
		var legal [4]bool
		for i, d := range game.Directions {
			legal[i] = g.CanMove(d)
		}
		if d, ok := s.Policy.BestAction(g.Board(), legal); ok {
			return d, true
		}
	}
	return argmax(q)
}

func argmax(q [4]float64) (game.Direction, bool) {
	best := -1
	for i, v := range q {
		if math.IsInf(v, -1) {
			continue
		}
		if best < 0 || v > q[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return game.Directions[best], true
}

// ShapingReward is the PBRS term F = γ·V(s') − V(s).
func (s *Searcher) ShapingReward(before, after game.Board) float64 {
	return s.gamma()*s.TotalValue(after) - s.TotalValue(before)
}

// DisplayQ is the move quality shown to players: scoreGain + γ·V(s').
func (s *Searcher) DisplayQ(scoreGain float64, after game.Board) float64 {
	return scoreGain + s.gamma()*s.TotalValue(after)
}
