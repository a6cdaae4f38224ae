// Package rules implements the move engine and the spawn oracle.
//
// All moves are normalized to a LEFT shift by rotating the board clockwise
// (Left=0, Down=1, Right=2, Up=3 quarter turns) and rotating back with 4-rot
// turns afterwards. An Engine is not safe for concurrent use; drivers that
// call it from a timer must serialize access themselves.
package rules

import (
	"math/rand"

	"github.com/brensch/threes/game"
)

// Engine is the live game: board, score, move count and the spawn oracle.
type Engine struct {
	board    game.Board
	score    int
	moves    int
	gameOver bool

	oracle *Oracle
	rng    *rand.Rand
}

// NewEngine starts a fresh game. The rng is threaded through the oracle and
// the spawn-row choice so games are reproducible from a seed.
func NewEngine(rng *rand.Rand) *Engine {
	e := &Engine{rng: rng}
	e.Reset()
	return e
}

// Reset clears the board, rebuilds both bags and spawns the starting tiles.
func (e *Engine) Reset() {
	e.score = 0
	e.moves = 0
	e.gameOver = false
	e.oracle = NewOracle(e.rng)
	e.board = game.Board{}

	cells := e.rng.Perm(game.Size * game.Size)
	for _, idx := range cells[:StartSpawnNumbers] {
		e.board[idx/game.Size][idx%game.Size] = e.oracle.StartingTile()
	}
	e.score = e.board.Score()
	e.oracle.Refresh(e.board, e.moves)
}

// SetBoard replaces the board, recomputes score and game-over, and refreshes
// the hint band. Used to set up scenarios.
func (e *Engine) SetBoard(b game.Board) {
	e.board = b
	e.score = b.Score()
	e.gameOver = IsGameOver(b)
	e.oracle.Refresh(e.board, e.moves)
}

func (e *Engine) Board() game.Board { return e.board }
func (e *Engine) Score() int        { return e.score }
func (e *Engine) Moves() int        { return e.moves }
func (e *Engine) GameOver() bool    { return e.gameOver }

// Hints is the published spawn band; the committed value is never exposed.
func (e *Engine) Hints() []int { return e.oracle.Hints() }

// CanMove reports whether dir would move at least one row.
func (e *Engine) CanMove(dir game.Direction) bool {
	return CanMove(e.board, dir)
}

// Move applies dir. It returns false, leaving the state untouched, when the
// game is over or the direction has no legal shift.
func (e *Engine) Move(dir game.Direction) bool {
	if e.gameOver || !e.CanMove(dir) {
		return false
	}
	rot := dir.Rotations()

	shifted, moved := Shift(e.board.Rotate(rot))
	rows := make([]int, 0, game.Size)
	for r, ok := range moved {
		if ok {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return false
	}

	target := rows[e.rng.Intn(len(rows))]
	shifted[target][game.Size-1] = e.oracle.ActualSpawnValue()
	e.board = shifted.Rotate(4 - rot)

	e.moves++
	e.oracle.Refresh(e.board, e.moves)
	e.score = e.board.Score()
	e.gameOver = IsGameOver(e.board)
	return true
}
