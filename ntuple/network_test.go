package ntuple

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/potential"
	"github.com/vmihailenco/msgpack/v5"
)

func randomBoard(rng *rand.Rand) game.Board {
	values := []int{0, 0, 1, 2, 3, 6, 12, 24, 48, 96, 192, 384}
	var b game.Board
	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			b[r][c] = values[rng.Intn(len(values))]
		}
	}
	return b
}

func trainedNetwork(t *testing.T, seed int64) (*Network, []game.Board) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n := New()
	boards := make([]game.Board, 20)
	for i := range boards {
		boards[i] = randomBoard(rng)
		n.Train(boards[i], rng.Float64()*200-50, 0.1)
	}
	return n, boards
}

func TestEncodeMonotonic(t *testing.T) {
	if Encode(0) != 0 {
		t.Fatalf("Encode(0)=%d", Encode(0))
	}
	prev := -1
	for _, v := range []int{0, 1, 2, 3, 6, 12, 24, 48, 96, 192, 384, 768, 1536, 3072, 6144, 12288, 24576} {
		code := Encode(v)
		if code < prev {
			t.Fatalf("Encode(%d)=%d below previous %d", v, code, prev)
		}
		if code < 0 || code >= NumCodes {
			t.Fatalf("Encode(%d)=%d out of range", v, code)
		}
		prev = code
	}
	if Encode(3) != 3 || Encode(6) != 4 || Encode(6144) != 14 || Encode(24576) != 14 {
		t.Fatal("unexpected code values")
	}
}

func TestGeneratePatterns(t *testing.T) {
	tuples := GeneratePatterns()
	if NumMasterTables() != 12 {
		t.Fatalf("tables=%d want=12", NumMasterTables())
	}
	perTable := map[int]int{}
	for _, tp := range tuples {
		perTable[tp.Table]++
		seen := map[int]bool{}
		for _, idx := range tp.Indices {
			if idx < 0 || idx >= 16 || seen[idx] {
				t.Fatalf("bad tuple %+v", tp)
			}
			seen[idx] = true
		}
	}
	for table := 0; table < NumMasterTables(); table++ {
		if perTable[table] != 8 {
			t.Fatalf("table %d has %d instances, want 8", table, perTable[table])
		}
	}
	// first instance of each table is the untransformed snake window.
	for _, tp := range tuples {
		if tp.Table == 0 {
			if tp.Indices != [TupleLen]int{0, 1, 2, 3, 7} {
				t.Fatalf("first window=%v", tp.Indices)
			}
			break
		}
	}
}

func TestSymmetryGroup(t *testing.T) {
	// four rotations are the identity
	for cell := 0; cell < 16; cell++ {
		if got := symmetry(cell, false, 4); got != cell {
			t.Fatalf("rot4(%d)=%d", cell, got)
		}
	}
	// (r,c) -> (c, 3-r)
	if got := symmetry(1, false, 1); got != 1*4+3 {
		t.Fatalf("rot90(0,1)=%d want 7", got)
	}
	// (r,c) -> (r, 3-c)
	if got := symmetry(1, true, 0); got != 2 {
		t.Fatalf("mirror(0,1)=%d want 2", got)
	}
}

func TestPredictIsPure(t *testing.T) {
	n, boards := trainedNetwork(t, 1)
	for _, b := range boards {
		if a, c := n.Predict(b), n.Predict(b); a != c {
			t.Fatalf("predict not stable: %v vs %v", a, c)
		}
	}
}

func TestPredictIsSymmetric(t *testing.T) {
	n, boards := trainedNetwork(t, 2)
	for _, b := range boards {
		base := n.Predict(b)
		for rot := 1; rot < 4; rot++ {
			if got := n.Predict(b.Rotate(rot)); math.Abs(got-base) > 1e-9 {
				t.Fatalf("rotation %d: %v vs %v", rot, got, base)
			}
		}
	}
}

// One update scales the error by 1 - alpha·Σm²/N, where m counts the tuple
// instances landing on each touched cell and N is the instance count. It
// contracts while alpha·max(m) < 2. On the empty board every symmetric
// variant of a table reads the same cell (m = 8), so alpha must stay below
// 0.25 there.
func TestTrainContracts(t *testing.T) {
	n := New()
	for i := 0; i < 5; i++ {
		before := math.Abs(n.Predict(game.Board{}) - 10)
		n.Train(game.Board{}, 10, 0.1)
		after := math.Abs(n.Predict(game.Board{}) - 10)
		if after >= before {
			t.Fatalf("empty board step %d: |err| %v -> %v", i, before, after)
		}
	}

	rng := rand.New(rand.NewSource(3))
	n = New()
	for i := 0; i < 50; i++ {
		b := randomBoard(rng)
		target := rng.Float64()*100 - 20
		before := math.Abs(n.Predict(b) - target)
		n.Train(b, target, 0.1)
		after := math.Abs(n.Predict(b) - target)
		if before > 1e-9 && after >= before {
			t.Fatalf("step %d: |err| %v -> %v", i, before, after)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	n, boards := trainedNetwork(t, 4)
	n.Potential = potential.Weights{Empty: 0.5, Snake: 1.25, Merge: 2, Disorder: 0.75}
	n.Stats = Stats{TotalEpisodes: 17, BestTop1Avg: 1.5, BestOverallAvg: 2.5, BestBot10Avg: 3.5}
	n.Gamma = 0.95

	var buf bytes.Buffer
	if err := n.ExportToBinary(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	loaded := New()
	format, err := loaded.LoadFromBinary(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if format != FormatMsgpack {
		t.Fatalf("format=%s want msgpack", format)
	}
	for _, b := range boards {
		if a, c := n.Predict(b), loaded.Predict(b); math.Abs(a-c) > 1e-12 {
			t.Fatalf("predict mismatch %v vs %v", a, c)
		}
	}
	if loaded.Potential != n.Potential || loaded.Stats != n.Stats || loaded.Gamma != 0.95 {
		t.Fatalf("metadata mismatch: %+v %+v %v", loaded.Potential, loaded.Stats, loaded.Gamma)
	}
}

func TestUnknownKeysAreSkipped(t *testing.T) {
	n, boards := trainedNetwork(t, 5)
	type extended struct {
		modelFile `msgpack:",inline"`
		Optimizer string `msgpack:"optimizer"`
		Schedule  []int  `msgpack:"lr_schedule"`
	}
	payload, err := msgpack.Marshal(&extended{modelFile: *n.toFile(), Optimizer: "adam", Schedule: []int{1, 2, 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded := New()
	if _, err := loaded.LoadFromBinary(bytes.NewReader(payload)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if a, c := n.Predict(boards[0]), loaded.Predict(boards[0]); a != c {
		t.Fatalf("predict mismatch %v vs %v", a, c)
	}
}

func TestLegacyFallback(t *testing.T) {
	n, boards := trainedNetwork(t, 6)
	var buf bytes.Buffer
	if err := n.ExportLegacy(&buf); err != nil {
		t.Fatalf("export legacy: %v", err)
	}
	loaded := New()
	format, err := loaded.LoadFromBinary(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if format != FormatLegacy {
		t.Fatalf("format=%s want legacy", format)
	}
	if loaded.NumTuples() != n.NumTuples() {
		t.Fatalf("tuples=%d want=%d", loaded.NumTuples(), n.NumTuples())
	}
	for _, b := range boards {
		a, c := n.Predict(b), loaded.Predict(b)
		if math.Abs(a-c) > 1e-3*math.Max(1, math.Abs(a)) {
			t.Fatalf("predict mismatch %v vs %v", a, c)
		}
	}
}

func TestTupleCountMismatchResets(t *testing.T) {
	n, boards := trainedNetwork(t, 7)
	f := n.toFile()
	f.Tuples = f.Tuples[:len(f.Tuples)-1]
	payload, err := msgpack.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = n.LoadFromBinary(bytes.NewReader(payload))
	if !errors.Is(err, ErrCorruptModel) {
		t.Fatalf("err=%v want ErrCorruptModel", err)
	}
	if got := n.Predict(boards[0]); got != 0 {
		t.Fatalf("network not reset, predict=%v", got)
	}
	if n.NumTuples() != len(GeneratePatterns()) {
		t.Fatalf("tuples=%d after reset", n.NumTuples())
	}
}

func TestGarbageResets(t *testing.T) {
	n, boards := trainedNetwork(t, 8)
	_, err := n.LoadFromBinary(bytes.NewReader([]byte("not a model")))
	if !errors.Is(err, ErrCorruptModel) {
		t.Fatalf("err=%v want ErrCorruptModel", err)
	}
	if got := n.Predict(boards[0]); got != 0 {
		t.Fatalf("predict=%v want 0", got)
	}
}

func TestReadErrorLeavesNetworkIntact(t *testing.T) {
	n, boards := trainedNetwork(t, 9)
	before := n.Predict(boards[0])
	_, err := n.LoadFromBinary(iotest.ErrReader(errors.New("disk gone")))
	if err == nil || errors.Is(err, ErrCorruptModel) {
		t.Fatalf("err=%v want read error", err)
	}
	if got := n.Predict(boards[0]); got != before {
		t.Fatalf("predict changed %v -> %v", before, got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	n, boards := trainedNetwork(t, 10)
	c := n.Clone()
	before := c.Predict(boards[0])
	n.Train(boards[0], 1000, 0.5)
	if got := c.Predict(boards[0]); got != before {
		t.Fatalf("clone shares weights: %v -> %v", before, got)
	}
}
