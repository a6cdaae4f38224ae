package ntuple

import (
	"github.com/brensch/threes/game"
	"github.com/brensch/threes/potential"
)

// TupleLen is the number of cells read by each tuple instance.
const TupleLen = 5

// Tuple is one tuple instance: five board cells (row-major indices) and the
// master table it reads and writes. Symmetric instances share a table.
type Tuple struct {
	Indices [TupleLen]int
	Table   int
}

// symmetry maps a cell through an optional horizontal mirror followed by
// rot clockwise quarter turns.
func symmetry(cell int, mirror bool, rot int) int {
	r, c := cell/game.Size, cell%game.Size
	if mirror {
		c = game.Size - 1 - c
	}
	for i := 0; i < rot; i++ {
		r, c = c, game.Size-1-r
	}
	return r*game.Size + c
}

// GeneratePatterns builds the shared-snake layout: one master table per
// length-5 window over the snake order, each expanded to its eight board
// symmetries with coincident variants removed.
func GeneratePatterns() []Tuple {
	order := potential.SnakeOrder
	windows := len(order) - TupleLen + 1

	tuples := make([]Tuple, 0, windows*8)
	for table := 0; table < windows; table++ {
		seen := make(map[[TupleLen]int]bool, 8)
		for _, mirror := range []bool{false, true} {
			for rot := 0; rot < 4; rot++ {
				var idx [TupleLen]int
				for i := 0; i < TupleLen; i++ {
					idx[i] = symmetry(order[table+i], mirror, rot)
				}
				if seen[idx] {
					continue
				}
				seen[idx] = true
				tuples = append(tuples, Tuple{Indices: idx, Table: table})
			}
		}
	}
	return tuples
}

// NumMasterTables is the table count produced by GeneratePatterns.
func NumMasterTables() int {
	return len(potential.SnakeOrder) - TupleLen + 1
}
