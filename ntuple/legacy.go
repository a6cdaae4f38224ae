package ntuple

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/brensch/threes/potential"
)

// Legacy layout, little-endian, no tuple metadata:
//
//	[numTables:u32] then per table [tableSize:u32][weights:f32 x tableSize]
//
// Topology comes from GeneratePatterns, so the table count and sizes must
// match the generator exactly.

func decodeLegacy(data []byte) (*snapshot, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("legacy: short header (%d bytes)", len(data))
	}
	numTables := int(binary.LittleEndian.Uint32(data))
	if numTables != NumMasterTables() {
		return nil, fmt.Errorf("%w: legacy file has %d tables, expected %d", ErrModelMismatch, numTables, NumMasterTables())
	}
	want := 4 + numTables*(4+4*TableSize)
	if len(data) != want {
		return nil, fmt.Errorf("legacy: payload is %d bytes, expected %d", len(data), want)
	}

	off := 4
	weights := make([][]float64, numTables)
	for i := range weights {
		size := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if size != TableSize {
			return nil, fmt.Errorf("%w: legacy table %d has %d weights, expected %d", ErrModelMismatch, i, size, TableSize)
		}
		table := make([]float64, size)
		for j := range table {
			table[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
			off += 4
		}
		weights[i] = table
	}

	return &snapshot{
		format:    FormatLegacy,
		tuples:    GeneratePatterns(),
		weights:   weights,
		alpha:     DefaultAlpha,
		gamma:     DefaultGamma,
		potential: potential.Weights{},
	}, nil
}

// ExportLegacy writes the weight tables in the legacy f32 layout. Tuple
// metadata, parameters and statistics are not representable and are dropped.
func (n *Network) ExportLegacy(w io.Writer) error {
	size := 4
	for _, t := range n.weights {
		size += 4 + 4*len(t)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf, uint32(len(n.weights)))
	off := 4
	for _, t := range n.weights {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(t)))
		off += 4
		for _, v := range t {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
			off += 4
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write legacy model: %w", err)
	}
	return nil
}
