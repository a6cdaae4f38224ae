package game

import "math/bits"

// MaxRank is the rank of the largest tile the encoders distinguish (6144).
const MaxRank = 12

// Rank returns 0 for empty cells and the base denominations 1 and 2, and
// floor(log2(v/3))+1 for tiles of value 3 and above.
func Rank(v int) int {
	if v <= 2 {
		return 0
	}
	return bits.Len(uint(v / 3))
}

// ValueFromRank is the inverse of Rank for ranks >= 1.
func ValueFromRank(rank int) int {
	if rank < 1 {
		return 0
	}
	return 3 << (rank - 1)
}

// TileScore is the score contribution of a single tile: 3^rank for v >= 3.
func TileScore(v int) int {
	if v < 3 {
		return 0
	}
	s := 1
	for i := Rank(v); i > 0; i-- {
		s *= 3
	}
	return s
}
