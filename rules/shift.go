package rules

import "github.com/brensch/threes/game"

// CanMerge reports whether source may move onto target: a slide into an
// empty cell, the 1+2 rule, or doubling of equal tiles of 3 and above.
func CanMerge(target, source int) bool {
	if source == 0 {
		return false
	}
	return target == 0 || target+source == 3 || (target >= 3 && target == source)
}

func merged(target, source int) int {
	switch {
	case target == 0:
		return source
	case target+source == 3:
		return 3
	default:
		return target * 2
	}
}

// shiftRow applies the left-shift rule to a single row in place. At most one
// merge or slide happens per row per move.
func shiftRow(row *[game.Size]int) bool {
	for c := 0; c < game.Size-1; c++ {
		target, source := row[c], row[c+1]
		if !CanMerge(target, source) {
			continue
		}
		row[c] = merged(target, source)
		for k := c + 1; k < game.Size-1; k++ {
			row[k] = row[k+1]
		}
		row[game.Size-1] = 0
		return true
	}
	return false
}

// Shift runs the LEFT shift on a copy of b and reports which rows moved.
// Callers rotate into and out of LEFT alignment themselves.
func Shift(b game.Board) (game.Board, [game.Size]bool) {
	var moved [game.Size]bool
	for r := 0; r < game.Size; r++ {
		moved[r] = shiftRow(&b[r])
	}
	return b, moved
}

// CanMove scans adjacent pairs in the direction's own frame without rotating.
func CanMove(b game.Board, dir game.Direction) bool {
	dr, dc := 0, 0
	switch dir {
	case game.Up:
		dr = 1
	case game.Down:
		dr = -1
	case game.Left:
		dc = 1
	case game.Right:
		dc = -1
	default:
		return false
	}
	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			nr, nc := r+dr, c+dc
			if nr < 0 || nr >= game.Size || nc < 0 || nc >= game.Size {
				continue
			}
			if CanMerge(b[r][c], b[nr][nc]) {
				return true
			}
		}
	}
	return false
}

// Legal returns CanMove for each direction in action-index order.
func Legal(b game.Board) [4]bool {
	var out [4]bool
	for i, d := range game.Directions {
		out[i] = CanMove(b, d)
	}
	return out
}

// IsGameOver reports whether no direction has a legal move.
func IsGameOver(b game.Board) bool {
	for _, ok := range Legal(b) {
		if ok {
			return false
		}
	}
	return true
}
