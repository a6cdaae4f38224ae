// Package game defines the board and tile types shared by the rules engine,
// the value networks and the search.
//
// Board is a plain value array so copying it is a deep copy; speculative
// search relies on that and never shares cells with the live board.
package game

import (
	"fmt"
	"strings"
)

// Size is the board edge length.
const Size = 4

// Board is a 4x4 grid of tile values indexed [row][col]. 0 is empty.
type Board [Size][Size]int

// Direction is a move direction. The numeric values double as the action
// index used by the policy network and the offline training log format.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Directions lists all moves in action-index order.
var Directions = [4]Direction{Up, Down, Left, Right}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Valid reports whether d is one of the four moves.
func (d Direction) Valid() bool {
	return d >= Up && d <= Right
}

// ParseDirection accepts names ("left", "L") and action indices ("2").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "u", "0":
		return Up, nil
	case "down", "d", "1":
		return Down, nil
	case "left", "l", "2":
		return Left, nil
	case "right", "r", "3":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Rotations returns how many clockwise quarter turns align d with a LEFT shift.
func (d Direction) Rotations() int {
	switch d {
	case Down:
		return 1
	case Right:
		return 2
	case Up:
		return 3
	}
	return 0
}

// Rotate returns the board turned clockwise times quarter turns (mod 4).
func (b Board) Rotate(times int) Board {
	times = ((times % 4) + 4) % 4
	for k := 0; k < times; k++ {
		var out Board
		for r := 0; r < Size; r++ {
			for c := 0; c < Size; c++ {
				out[c][Size-1-r] = b[r][c]
			}
		}
		b = out
	}
	return b
}

// Score recomputes the full board score from scratch.
func (b Board) Score() int {
	s := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			s += TileScore(b[r][c])
		}
	}
	return s
}

// HighestRank is the largest rank among tiles of value 3 or more.
func (b Board) HighestRank() int {
	best := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] > 2 {
				if rk := Rank(b[r][c]); rk > best {
					best = rk
				}
			}
		}
	}
	return best
}

// EmptyCells counts zero cells.
func (b Board) EmptyCells() int {
	n := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] == 0 {
				n++
			}
		}
	}
	return n
}

// Flat returns the cells in row-major order.
func (b Board) Flat() [Size * Size]int {
	var out [Size * Size]int
	for i := range out {
		out[i] = b[i/Size][i%Size]
	}
	return out
}

// FromFlat builds a board from row-major cells.
func FromFlat(cells [Size * Size]int) Board {
	var b Board
	for i, v := range cells {
		b[i/Size][i%Size] = v
	}
	return b
}

func (b Board) String() string {
	var sb strings.Builder
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if c > 0 {
				sb.WriteByte(' ')
			}
			if b[r][c] == 0 {
				sb.WriteString("    .")
			} else {
				fmt.Fprintf(&sb, "%5d", b[r][c])
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
