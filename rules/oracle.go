package rules

import (
	"math/rand"
	"sort"

	"github.com/brensch/threes/game"
)

const (
	NumberRandomness  = 4  // copies of each of 1, 2, 3 in the numbers bag
	SpecialRareness   = 20 // blanks per bonus trigger in the special bag
	StartSpawnNumbers = 9
	BonusAfterMove    = 21
)

// Oracle owns the next-spawn commitment and the hint band published from it.
//
// The committed future value never leaves this type. Search only sees Hints,
// and the tile actually placed is re-drawn from a rank window around the
// commitment, so neither the hint nor the commitment is a literal forecast.
type Oracle struct {
	numbers *Bag
	special *Bag
	rng     *rand.Rand

	future int
	hints  []int
}

func NewOracle(rng *rand.Rand) *Oracle {
	special := make([]int, 0, SpecialRareness+1)
	special = append(special, 1)
	for i := 0; i < SpecialRareness; i++ {
		special = append(special, 0)
	}
	return &Oracle{
		numbers: NewBag(rng, NumberRandomness, 1, 2, 3),
		special: NewBag(rng, 1, special...),
		rng:     rng,
	}
}

// Hints returns a copy of the published hint band.
func (o *Oracle) Hints() []int {
	return append([]int(nil), o.hints...)
}

// Refresh commits a new future value and republishes the hint band. It runs
// once per completed move.
func (o *Oracle) Refresh(b game.Board, moves int) {
	o.future = o.nextValue(b, moves)
	o.hints = predictFuture(o.future)
}

func (o *Oracle) nextValue(b game.Board, moves int) int {
	if moves > BonusAfterMove && o.special.Next() == 1 {
		num := b.HighestRank() - 3
		if num < 0 {
			num = 0
		}
		if num >= 2 {
			if num < 4 {
				return game.ValueFromRank(num)
			}
			// Wide windows draw from [4, num], not [num, highest].
			return game.ValueFromRank(4 + o.rng.Intn(num-4+1))
		}
	}
	return o.numbers.Next()
}

// predictFuture coarsens a committed value into the displayed band.
func predictFuture(future int) []int {
	if future <= 3 {
		return []int{future}
	}
	rank := game.Rank(future)
	n := rank - 1
	if n > 3 {
		n = 3
	}
	seen := make(map[int]bool, n)
	list := make([]int, 0, n+1)
	for i := 0; i < n; i++ {
		idx := (rank - 1) - i
		if idx < 1 {
			idx = 1
		}
		v := game.ValueFromRank(idx + 1)
		if !seen[v] {
			seen[v] = true
			list = append(list, v)
		}
	}
	// A band that collapsed onto the literal commitment is widened by one rank.
	if len(list) == 1 && list[0] == future {
		list = append(list, game.ValueFromRank(rank+1))
	}
	sort.Ints(list)
	return list
}

// ActualSpawnValue is the tile placed on the board for the current commitment.
func (o *Oracle) ActualSpawnValue() int {
	if o.future <= 3 {
		return o.future
	}
	rank := game.Rank(o.future)
	lo := rank - 2
	if lo < 2 {
		lo = 2
	}
	return game.ValueFromRank(lo + o.rng.Intn(rank-lo+1))
}

// StartingTile draws one tile for the initial spawn.
func (o *Oracle) StartingTile() int {
	return o.numbers.Next()
}
