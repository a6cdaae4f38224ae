// Package selfplay plays complete games with a searcher and records them for
// training.
package selfplay

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/rules"
	"github.com/brensch/threes/search"
	"github.com/brensch/threes/store"
	"github.com/brensch/threes/trainer"
	"github.com/google/uuid"
)

type Config struct {
	WorkerID int
	// MaxMoves stops a game early; 0 means play until no move is legal.
	MaxMoves int
	// Epsilon is the chance of playing a uniformly random legal move.
	Epsilon float64
	// Gamma discounts the returns written to the dataset rows.
	Gamma   float64
	Verbose bool
}

func DefaultConfig() Config {
	return Config{Gamma: 0.99}
}

// StepInfo describes one played move.
type StepInfo struct {
	Move   int
	Dir    game.Direction
	Q      [4]float64
	Random bool
	Score  int
}

type Outcome struct {
	GameID string
	// Completed is false when the game was cut short by ctx or MaxMoves.
	Completed   bool
	Score       int
	Moves       int
	HighestTile int
	Episode     *trainer.Episode
	Rows        []store.EpisodeRow
}

// PlayGame plays one game to the end. The searcher is only read, so several
// games may share one as long as nothing trains it meanwhile.
func PlayGame(ctx context.Context, cfg Config, s *search.Searcher, rng *rand.Rand, onStep func(StepInfo)) Outcome {
	if cfg.Gamma <= 0 {
		cfg.Gamma = 0.99
	}
	eng := rules.NewEngine(rng)

	out := Outcome{
		GameID:  uuid.NewString(),
		Episode: &trainer.Episode{},
	}
	hints := [][]int{eng.Hints()}
	scores := []int{eng.Score()}
	out.Episode.Record(eng.Board(), 0)

	for !eng.GameOver() {
		if ctx != nil && ctx.Err() != nil {
			break
		}
		if cfg.MaxMoves > 0 && eng.Moves() >= cfg.MaxMoves {
			break
		}

		q := s.QValues(eng)
		dir, ok := s.BestFromQ(eng, q)
		if !ok {
			break
		}
		random := false
		if cfg.Epsilon > 0 && rng.Float64() < cfg.Epsilon {
			dir, random = randomLegal(rng, eng.Board()), true
		}

		if cfg.Verbose {
			log.Printf("[Worker %d] Move %d: %s | Q %s%s\n%s", cfg.WorkerID, eng.Moves(), dir, formatQ(q), randomMark(random), FormatBoard(eng.Board(), eng.Hints()))
		}

		before := eng.Score()
		if !eng.Move(dir) {
			break
		}
		out.Episode.RecordMove(dir, eng.Board(), float64(eng.Score()-before))
		hints = append(hints, eng.Hints())
		scores = append(scores, eng.Score())

		if onStep != nil {
			onStep(StepInfo{Move: eng.Moves(), Dir: dir, Q: q, Random: random, Score: eng.Score()})
		}
	}

	out.Completed = eng.GameOver()
	out.Score = eng.Score()
	out.Moves = eng.Moves()
	out.HighestTile = highestTile(eng.Board())
	out.Rows = episodeRows(out.GameID, s.Mode.String(), out.Episode, hints, scores, cfg.Gamma)

	if cfg.Verbose {
		log.Printf("[Worker %d] Game %s over: score=%d moves=%d max=%d completed=%v", cfg.WorkerID, out.GameID, out.Score, out.Moves, out.HighestTile, out.Completed)
	}
	return out
}

func episodeRows(gameID, mode string, ep *trainer.Episode, hints [][]int, scores []int, gamma float64) []store.EpisodeRow {
	returns := ep.Returns(gamma)
	rows := make([]store.EpisodeRow, len(ep.Steps))
	for i, st := range ep.Steps {
		h := make([]int32, len(hints[i]))
		for j, v := range hints[i] {
			h[j] = int32(v)
		}
		rows[i] = store.EpisodeRow{
			GameID: gameID,
			Turn:   int32(i),
			Board:  store.BoardCells(st.Board),
			Hints:  h,
			Reward: float32(st.Reward),
			Return: float32(returns[i]),
			Action: int32(st.Action),
			Score:  int32(scores[i]),
			Mode:   mode,
		}
	}
	return rows
}

func randomLegal(rng *rand.Rand, b game.Board) game.Direction {
	legal := rules.Legal(b)
	dirs := make([]game.Direction, 0, 4)
	for _, d := range game.Directions {
		if legal[d] {
			dirs = append(dirs, d)
		}
	}
	return dirs[rng.Intn(len(dirs))]
}

func highestTile(b game.Board) int {
	best := 0
	for _, row := range b {
		for _, v := range row {
			if v > best {
				best = v
			}
		}
	}
	return best
}

func formatQ(q [4]float64) string {
	parts := make([]string, 0, 4)
	for i, v := range q {
		parts = append(parts, fmt.Sprintf("%s=%.2f", game.Direction(i), v))
	}
	return strings.Join(parts, " ")
}

func randomMark(random bool) string {
	if random {
		return " (random)"
	}
	return ""
}
