package ntuple

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/brensch/threes/game"
)

func TestPolicyImitation(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	p := NewPolicy()
	b := randomBoard(rng)
	for i := 0; i < 200; i++ {
		p.Train(b, game.Left, 0.1)
	}
	scores := p.Scores(b)
	for i, s := range scores {
		if game.Direction(i) == game.Left {
			if s < 0.9 {
				t.Fatalf("left score=%v want close to 1", s)
			}
		} else if s > 0.1 || s < -0.1 {
			t.Fatalf("%s score=%v want close to 0", game.Direction(i), s)
		}
	}

	all := [4]bool{true, true, true, true}
	if d, ok := p.BestAction(b, all); !ok || d != game.Left {
		t.Fatalf("BestAction=%s,%v want left", d, ok)
	}
	noLeft := [4]bool{true, true, false, true}
	if d, ok := p.BestAction(b, noLeft); !ok || d == game.Left {
		t.Fatalf("BestAction=%s,%v picked an illegal move", d, ok)
	}
	if _, ok := p.BestAction(b, [4]bool{}); ok {
		t.Fatal("BestAction with no legal move should report false")
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates four full networks twice")
	}
	rng := rand.New(rand.NewSource(22))
	p := NewPolicy()
	boards := make([]game.Board, 10)
	for i := range boards {
		boards[i] = randomBoard(rng)
		p.Train(boards[i], game.Directions[rng.Intn(4)], 0.05)
	}
	var buf bytes.Buffer
	if err := p.ExportToBinary(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	loaded := NewPolicy()
	if err := loaded.LoadFromBinary(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, b := range boards {
		if p.Scores(b) != loaded.Scores(b) {
			t.Fatalf("scores differ: %v vs %v", p.Scores(b), loaded.Scores(b))
		}
	}
}

func TestPolicyCorruptResets(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	p := NewPolicy()
	b := randomBoard(rng)
	p.Train(b, game.Up, 0.5)
	err := p.LoadFromBinary(bytes.NewReader([]byte{0xc1, 0x00}))
	if !errors.Is(err, ErrCorruptModel) {
		t.Fatalf("err=%v want ErrCorruptModel", err)
	}
	if s := p.Scores(b); s != [4]float64{} {
		t.Fatalf("actors not reset: %v", s)
	}
}
