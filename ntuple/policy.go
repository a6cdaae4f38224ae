package ntuple

import (
	"bytes"
	"fmt"
	"io"

	"github.com/brensch/threes/game"
	"github.com/vmihailenco/msgpack/v5"
)

// Policy is four independently trained networks, one per direction in
// action-index order (Up, Down, Left, Right).
type Policy struct {
	Actors [4]*Network
}

func NewPolicy() *Policy {
	p := &Policy{}
	for i := range p.Actors {
		p.Actors[i] = New()
	}
	return p
}

// Scores returns each actor's prediction for b.
func (p *Policy) Scores(b game.Board) [4]float64 {
	var out [4]float64
	for i, a := range p.Actors {
		out[i] = a.Predict(b)
	}
	return out
}

// BestAction returns the highest-scoring legal direction. It reports false
// only when no direction is legal.
func (p *Policy) BestAction(b game.Board, legal [4]bool) (game.Direction, bool) {
	best := -1
	bestVal := 0.0
	for i, a := range p.Actors {
		if !legal[i] {
			continue
		}
		v := a.Predict(b)
		if best < 0 || v > bestVal {
			best, bestVal = i, v
		}
	}
	if best < 0 {
		return 0, false
	}
	return game.Directions[best], true
}

// Train performs one-hot imitation: the taken action's actor is pulled
// toward 1 and every other actor toward 0.
func (p *Policy) Train(b game.Board, action game.Direction, alpha float64) {
	for i, a := range p.Actors {
		target := 0.0
		if game.Direction(i) == action {
			target = 1.0
		}
		a.Train(b, target, alpha)
	}
}

// LoadFromBinary reads four primary-format maps written back to back. Any
// failure after the read resets every actor.
func (p *Policy) LoadFromBinary(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var snaps [4]*snapshot
	for i := range snaps {
		s, err := decodePrimary(dec)
		if err != nil {
			for _, a := range p.Actors {
				a.Reset()
			}
			return fmt.Errorf("%w: policy actor %d: %v", ErrCorruptModel, i, err)
		}
		snaps[i] = s
	}
	for i, s := range snaps {
		p.Actors[i].apply(s)
	}
	return nil
}

// ExportToBinary writes the four actors as consecutive primary-format maps.
func (p *Policy) ExportToBinary(w io.Writer) error {
	var buf bytes.Buffer
	enc := newEncoder(&buf)
	for i, a := range p.Actors {
		if err := a.encode(enc); err != nil {
			return fmt.Errorf("encode policy actor %d: %w", i, err)
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write policy: %w", err)
	}
	return nil
}
