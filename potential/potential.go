// Package potential holds the hand-written board potentials that are blended
// with learned scalar weights and added to the network value as a shaping
// signal.
package potential

import (
	"math"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/rules"
)

// adjacentPairs is the number of right/down neighbour pairs on a 4x4 board.
const adjacentPairs = 2 * game.Size * (game.Size - 1)

// SnakeOrder is the S-shaped traversal anchored at the top-left corner.
var SnakeOrder = [game.Size * game.Size]int{
	0, 1, 2, 3,
	7, 6, 5, 4,
	8, 9, 10, 11,
	15, 14, 13, 12,
}

// snakeWeight[k] = 4^(15-k), heaviest at the anchor corner.
var snakeWeight [game.Size * game.Size]float64

var snakeNorm float64

func init() {
	w := 1.0
	for k := len(snakeWeight) - 1; k >= 0; k-- {
		snakeWeight[k] = w
		w *= 4
	}
	snakeNorm = snakeWeight[0]
}

// Weights are the learned blend coefficients stored alongside the network.
type Weights struct {
	Empty    float64
	Snake    float64
	Merge    float64
	Disorder float64
}

// Composite is wEmpty·Empty + wSnake·Snake + wMerge·Merge − wDisorder·Disorder.
func (w Weights) Composite(b game.Board) float64 {
	if w == (Weights{}) {
		return 0
	}
	return w.Empty*Empty(b) + w.Snake*Snake(b) + w.Merge*Merge(b) - w.Disorder*Disorder(b)
}

// Empty counts empty cells.
func Empty(b game.Board) float64 {
	return float64(b.EmptyCells())
}

// Snake scores rank placement along the snake order for each of the four
// corner-anchored reflections and keeps the best, divided by the heaviest
// snake weight.
func Snake(b game.Board) float64 {
	best := 0.0
	for _, flipRows := range []bool{false, true} {
		for _, flipCols := range []bool{false, true} {
			sum := 0.0
			for k, cell := range SnakeOrder {
				r, c := cell/game.Size, cell%game.Size
				if flipRows {
					r = game.Size - 1 - r
				}
				if flipCols {
					c = game.Size - 1 - c
				}
				sum += float64(game.Rank(b[r][c])) * snakeWeight[k]
			}
			if sum > best {
				best = sum
			}
		}
	}
	return best / snakeNorm
}

// Merge is the fraction of neighbour pairs that could merge right now.
func Merge(b game.Board) float64 {
	n := 0
	forEachPair(b, func(a, c int) {
		if a != 0 && c != 0 && rules.CanMerge(a, c) {
			n++
		}
	})
	return float64(n) / adjacentPairs
}

// Disorder penalizes neighbours more than one rank apart with |diff|^2.5,
// averaged over all neighbour pairs. Empty cells are ignored.
func Disorder(b game.Board) float64 {
	sum := 0.0
	forEachPair(b, func(a, c int) {
		if a == 0 || c == 0 {
			return
		}
		d := game.Rank(a) - game.Rank(c)
		if d < 0 {
			d = -d
		}
		if d > 1 {
			sum += math.Pow(float64(d), 2.5)
		}
	})
	return sum / adjacentPairs
}

func forEachPair(b game.Board, fn func(a, c int)) {
	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			if c+1 < game.Size {
				fn(b[r][c], b[r][c+1])
			}
			if r+1 < game.Size {
				fn(b[r][c], b[r+1][c])
			}
		}
	}
}
