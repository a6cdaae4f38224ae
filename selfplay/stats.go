package selfplay

import (
	"sort"

	"github.com/brensch/threes/ntuple"
)

// Summary is the score profile of a round of games.
type Summary struct {
	Games      int
	Top1       float64
	Overall    float64
	Bottom10   float64
	MaxTile    int
	TotalMoves int
}

// Summarize scores completed games only. Top1 is the best score, Bottom10 the
// mean of the lowest tenth (at least one game).
func Summarize(outcomes []Outcome) Summary {
	scores := make([]int, 0, len(outcomes))
	var s Summary
	for _, o := range outcomes {
		if !o.Completed {
			continue
		}
		scores = append(scores, o.Score)
		s.TotalMoves += o.Moves
		if o.HighestTile > s.MaxTile {
			s.MaxTile = o.HighestTile
		}
	}
	s.Games = len(scores)
	if s.Games == 0 {
		return s
	}
	sort.Ints(scores)

	total := 0
	for _, v := range scores {
		total += v
	}
	s.Overall = float64(total) / float64(len(scores))
	s.Top1 = float64(scores[len(scores)-1])

	n := len(scores) / 10
	if n == 0 {
		n = 1
	}
	bottom := 0
	for _, v := range scores[:n] {
		bottom += v
	}
	s.Bottom10 = float64(bottom) / float64(n)
	return s
}

// Apply raises the network's best-so-far statistics and reports whether the
// overall average improved.
func (s Summary) Apply(st *ntuple.Stats) bool {
	if s.Games == 0 {
		return false
	}
	if s.Top1 > st.BestTop1Avg {
		st.BestTop1Avg = s.Top1
	}
	if s.Bottom10 > st.BestBot10Avg {
		st.BestBot10Avg = s.Bottom10
	}
	if s.Overall > st.BestOverallAvg {
		st.BestOverallAvg = s.Overall
		return true
	}
	return false
}
