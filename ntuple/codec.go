package ntuple

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/potential"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrModelMismatch means the file describes a different layout than the
	// generator produces.
	ErrModelMismatch = errors.New("model mismatch")
	// ErrCorruptModel means neither the primary nor the legacy format parsed.
	// The network has been reset to zero weights when it is returned.
	ErrCorruptModel = errors.New("corrupt model")
)

// Format identifies which decoder accepted a model payload.
type Format int

const (
	FormatUnknown Format = iota
	FormatMsgpack
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatMsgpack:
		return "msgpack"
	case FormatLegacy:
		return "legacy"
	}
	return "unknown"
}

type tupleRecord struct {
	Indices     []uint64 `msgpack:"indices"`
	WeightIndex uint64   `msgpack:"weight_index"`
}

// modelFile is the self-describing map exchanged with the external trainer.
// Unknown keys are skipped on decode.
type modelFile struct {
	Tuples         []tupleRecord `msgpack:"tuples"`
	Weights        [][]float64   `msgpack:"weights"`
	Alpha          float64       `msgpack:"alpha"`
	Gamma          float64       `msgpack:"gamma"`
	WEmpty         float64       `msgpack:"w_empty"`
	WSnake         float64       `msgpack:"w_snake"`
	WMerge         float64       `msgpack:"w_merge"`
	WDisorder      float64       `msgpack:"w_disorder"`
	TotalEpisodes  uint64        `msgpack:"total_episodes"`
	BestTop1Avg    float64       `msgpack:"best_top1_avg"`
	BestOverallAvg float64       `msgpack:"best_overall_avg"`
	BestBot10Avg   float64       `msgpack:"best_bot10_avg"`
}

// snapshot is a fully decoded and validated model, ready to swap in.
type snapshot struct {
	format    Format
	tuples    []Tuple
	weights   [][]float64
	alpha     float64
	gamma     float64
	potential potential.Weights
	stats     Stats
}

func (n *Network) apply(s *snapshot) {
	n.tuples = s.tuples
	n.weights = s.weights
	n.Alpha = s.alpha
	n.Gamma = s.gamma
	n.Potential = s.potential
	n.Stats = s.stats
}

func (n *Network) toFile() *modelFile {
	f := &modelFile{
		Tuples:         make([]tupleRecord, len(n.tuples)),
		Weights:        n.weights,
		Alpha:          n.Alpha,
		Gamma:          n.Gamma,
		WEmpty:         n.Potential.Empty,
		WSnake:         n.Potential.Snake,
		WMerge:         n.Potential.Merge,
		WDisorder:      n.Potential.Disorder,
		TotalEpisodes:  n.Stats.TotalEpisodes,
		BestTop1Avg:    n.Stats.BestTop1Avg,
		BestOverallAvg: n.Stats.BestOverallAvg,
		BestBot10Avg:   n.Stats.BestBot10Avg,
	}
	for i, t := range n.tuples {
		idx := make([]uint64, TupleLen)
		for j, v := range t.Indices {
			idx[j] = uint64(v)
		}
		f.Tuples[i] = tupleRecord{Indices: idx, WeightIndex: uint64(t.Table)}
	}
	return f
}

func fromFile(f *modelFile) (*snapshot, error) {
	want := len(GeneratePatterns())
	if len(f.Tuples) != want {
		return nil, fmt.Errorf("%w: file has %d tuples, expected %d", ErrModelMismatch, len(f.Tuples), want)
	}
	if len(f.Weights) == 0 {
		return nil, fmt.Errorf("%w: no weight tables", ErrModelMismatch)
	}
	for i, w := range f.Weights {
		if len(w) != TableSize {
			return nil, fmt.Errorf("%w: table %d has %d weights, expected %d", ErrModelMismatch, i, len(w), TableSize)
		}
	}

	tuples := make([]Tuple, len(f.Tuples))
	for i, rec := range f.Tuples {
		if len(rec.Indices) != TupleLen {
			return nil, fmt.Errorf("%w: tuple %d has %d cells", ErrModelMismatch, i, len(rec.Indices))
		}
		if rec.WeightIndex >= uint64(len(f.Weights)) {
			return nil, fmt.Errorf("%w: tuple %d references table %d of %d", ErrModelMismatch, i, rec.WeightIndex, len(f.Weights))
		}
		for j, v := range rec.Indices {
			if v >= game.Size*game.Size {
				return nil, fmt.Errorf("%w: tuple %d cell %d out of range", ErrModelMismatch, i, v)
			}
			tuples[i].Indices[j] = int(v)
		}
		tuples[i].Table = int(rec.WeightIndex)
	}

	return &snapshot{
		format:  FormatMsgpack,
		tuples:  tuples,
		weights: f.Weights,
		alpha:   f.Alpha,
		gamma:   f.Gamma,
		potential: potential.Weights{
			Empty:    f.WEmpty,
			Snake:    f.WSnake,
			Merge:    f.WMerge,
			Disorder: f.WDisorder,
		},
		stats: Stats{
			TotalEpisodes:  f.TotalEpisodes,
			BestTop1Avg:    f.BestTop1Avg,
			BestOverallAvg: f.BestOverallAvg,
			BestBot10Avg:   f.BestBot10Avg,
		},
	}, nil
}

func decodePrimary(dec *msgpack.Decoder) (*snapshot, error) {
	var f modelFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode msgpack: %w", err)
	}
	return fromFile(&f)
}

// decode tries the primary map format, then the legacy table dump.
func decode(data []byte) (*snapshot, error) {
	s, primaryErr := decodePrimary(msgpack.NewDecoder(bytes.NewReader(data)))
	if primaryErr == nil {
		return s, nil
	}
	s, legacyErr := decodeLegacy(data)
	if legacyErr == nil {
		return s, nil
	}
	return nil, fmt.Errorf("%w: primary: %v; legacy: %v", ErrCorruptModel, primaryErr, legacyErr)
}

// LoadFromBinary reads the whole stream before touching the network. A read
// error leaves the network unchanged. A payload neither decoder accepts
// resets the network to zero weights and returns ErrCorruptModel.
func (n *Network) LoadFromBinary(r io.Reader) (Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return FormatUnknown, fmt.Errorf("read model: %w", err)
	}
	s, err := decode(data)
	if err != nil {
		n.Reset()
		return FormatUnknown, err
	}
	n.apply(s)
	return s.format, nil
}

func (n *Network) encode(enc *msgpack.Encoder) error {
	return enc.Encode(n.toFile())
}

func newEncoder(w io.Writer) *msgpack.Encoder {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	return enc
}

// ExportToBinary writes the primary format. The payload is built in memory
// and written with a single call.
func (n *Network) ExportToBinary(w io.Writer) error {
	var buf bytes.Buffer
	if err := n.encode(newEncoder(&buf)); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}
