package ntuple

import "github.com/brensch/threes/game"

const (
	// NumCodes is the alphabet size of the cell encoding (0..14).
	NumCodes = 15
	// TableSize is NumCodes^TupleLen.
	TableSize = NumCodes * NumCodes * NumCodes * NumCodes * NumCodes
)

// Encode maps a tile to its 0..14 code: 0, 1 and 2 map to themselves and
// v >= 3 maps to floor(log2(v/3))+3, saturating at 14.
func Encode(v int) int {
	if v <= 0 {
		return 0
	}
	if v <= 2 {
		return v
	}
	code := game.Rank(v) + 2
	if code > NumCodes-1 {
		return NumCodes - 1
	}
	return code
}

func encodeBoard(b game.Board) [game.Size * game.Size]int {
	var codes [game.Size * game.Size]int
	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			codes[r*game.Size+c] = Encode(b[r][c])
		}
	}
	return codes
}

func (t *Tuple) index(codes *[game.Size * game.Size]int) int {
	idx := 0
	for _, pos := range t.Indices {
		idx = idx*NumCodes + codes[pos]
	}
	return idx
}
