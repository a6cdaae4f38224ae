package potential

import (
	"math"
	"testing"

	"github.com/brensch/threes/game"
)

func TestEmpty(t *testing.T) {
	b := game.Board{{1, 2, 3, 0}}
	if got := Empty(b); got != 13 {
		t.Fatalf("Empty=%v want=13", got)
	}
}

func TestSnakeIsSymmetricAcrossCorners(t *testing.T) {
	topLeft := game.Board{{96, 48, 24, 12}}
	bottomRight := game.Board{{}, {}, {}, {12, 24, 48, 96}}
	a, b := Snake(topLeft), Snake(bottomRight)
	if a <= 0 || math.Abs(a-b) > 1e-12 {
		t.Fatalf("Snake corner mismatch: %v vs %v", a, b)
	}
	// rank 6 at the anchor plus rank 5 next to it.
	want := 6.0 + 5.0/4 + 4.0/16 + 3.0/64
	if math.Abs(a-want) > 1e-12 {
		t.Fatalf("Snake=%v want=%v", a, want)
	}
	scattered := game.Board{{12, 0, 0, 96}, {}, {}, {48, 0, 0, 24}}
	if Snake(scattered) >= a {
		t.Fatal("ordered snake should beat scattered corners")
	}
}

func TestMerge(t *testing.T) {
	b := game.Board{
		{1, 2, 0, 0},
		{3, 3, 0, 0},
		{6, 0, 0, 0},
		{0, 0, 0, 0},
	}
	// 1-2 (right), 3-3 (right), 3-6? no, 1-3 (down) no, 2-3 (down) no.
	if got, want := Merge(b), 2.0/adjacentPairs; math.Abs(got-want) > 1e-12 {
		t.Fatalf("Merge=%v want=%v", got, want)
	}
}

func TestDisorder(t *testing.T) {
	smooth := game.Board{{3, 6, 12, 24}}
	if got := Disorder(smooth); got != 0 {
		t.Fatalf("Disorder(smooth)=%v want=0", got)
	}
	rough := game.Board{{1, 24, 0, 0}}
	want := math.Pow(4, 2.5) / adjacentPairs
	if got := Disorder(rough); math.Abs(got-want) > 1e-12 {
		t.Fatalf("Disorder(rough)=%v want=%v", got, want)
	}
}

func TestComposite(t *testing.T) {
	b := game.Board{{96, 48, 24, 12}, {1, 24, 0, 0}}
	w := Weights{Empty: 0.5, Snake: 2, Merge: 3, Disorder: 1.5}
	want := 0.5*Empty(b) + 2*Snake(b) + 3*Merge(b) - 1.5*Disorder(b)
	if got := w.Composite(b); math.Abs(got-want) > 1e-12 {
		t.Fatalf("Composite=%v want=%v", got, want)
	}
	if (Weights{}).Composite(b) != 0 {
		t.Fatal("zero weights should give zero potential")
	}
}
