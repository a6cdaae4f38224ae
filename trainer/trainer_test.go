package trainer

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/ntuple"
	"github.com/brensch/threes/store"
)

type recordingStore struct {
	valueSaves  int
	policySaves int
	err         error
}

func (r *recordingStore) SaveValue(*ntuple.Network) error {
	r.valueSaves++
	return r.err
}

func (r *recordingStore) SavePolicy(*ntuple.Policy) error {
	r.policySaves++
	return r.err
}

var (
	start = game.Board{{1, 2, 0, 0}, {0, 3, 0, 0}, {}, {}}
	mid   = game.Board{{3, 0, 0, 1}, {3, 0, 0, 0}, {}, {}}
	end   = game.Board{{6, 0, 0, 1}, {0, 0, 0, 0}, {}, {0, 2, 0, 0}}
	// other shares no tiles with the boards above.
	other = game.Board{{}, {}, {0, 0, 48, 24}, {0, 0, 96, 12}}
)

func threeStepEpisode() *Episode {
	ep := &Episode{}
	ep.Record(start, 0)
	ep.RecordMove(game.Left, mid, 3)
	ep.RecordMove(game.Up, end, 6)
	return ep
}

func TestReturnsAreDiscountedBackwards(t *testing.T) {
	ep := threeStepEpisode()
	got := ep.Returns(0.5)
	want := []float64{0 + 0.5*(3+0.5*6), 3 + 0.5*6, 6}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("G[%d]=%v want %v", i, got[i], want[i])
		}
	}
	if ep.Steps[0].Action != int(game.Left) || ep.Steps[1].Action != int(game.Up) || ep.Steps[2].Action != NoAction {
		t.Fatalf("actions %+v", ep.Steps)
	}
}

func TestLogDataParsesBack(t *testing.T) {
	ep := threeStepEpisode()
	lines := strings.Split(strings.TrimSuffix(ep.LogData(0.5), "\n"), "\n")
	if len(lines) != ep.Len() {
		t.Fatalf("lines=%d want %d", len(lines), ep.Len())
	}
	returns := ep.Returns(0.5)
	for i, line := range lines {
		rec, err := ParseLogLine(line)
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		st := ep.Steps[i]
		if rec.Board != st.Board || rec.Action != st.Action || math.Abs(rec.Return-returns[i]) > 1e-9 {
			t.Fatalf("line %d: %+v from %+v", i, rec, st)
		}
	}
}

func TestTrainEpisode(t *testing.T) {
	net := ntuple.New()
	st := &recordingStore{}
	tr := New(net, nil, st)
	ep := threeStepEpisode()

	n, err := tr.TrainEpisode(ep)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("trained %d steps want 3", n)
	}
	if ep.Len() != 0 {
		t.Fatal("episode not cleared")
	}
	if net.Stats.TotalEpisodes != 1 {
		t.Fatalf("episodes=%d", net.Stats.TotalEpisodes)
	}
	if st.valueSaves != 1 {
		t.Fatalf("value saves=%d", st.valueSaves)
	}
	if net.Predict(end) <= 0 || net.Predict(mid) <= 0 {
		t.Fatal("positive returns should pull predictions up")
	}

	if n, err := tr.TrainEpisode(ep); n != 0 || err != nil || st.valueSaves != 1 {
		t.Fatalf("empty episode: n=%d err=%v saves=%d", n, err, st.valueSaves)
	}
}

func TestTrainEpisodeReportsSaveError(t *testing.T) {
	boom := errors.New("disk full")
	tr := New(ntuple.New(), nil, &recordingStore{err: boom})
	if _, err := tr.TrainEpisode(threeStepEpisode()); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
}

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		ok      bool
		action  int
		ret     float64
		cellAt5 int
	}{
		{"value only", "0,0,0,0,0,3,0,0,0,0,0,0,0,0,0,0|12.5", true, NoAction, 12.5, 3},
		{"with action", " 1,2,3,6,12,24,0,0,0,0,0,0,0,0,0,0 | -4 | 2 ", true, 2, -4, 24},
		{"trailing bar", "0,0,0,0,0,1,0,0,0,0,0,0,0,0,0,0|1|", true, NoAction, 1, 1},
		{"short board", "0,0,0|1", false, 0, 0, 0},
		{"no return", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0", false, 0, 0, 0},
		{"bad return", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0|x", false, 0, 0, 0},
		{"bad cell", "0,0,0,0,0,a,0,0,0,0,0,0,0,0,0,0|1", false, 0, 0, 0},
		{"negative cell", "0,0,0,0,0,-3,0,0,0,0,0,0,0,0,0,0|1", false, 0, 0, 0},
		{"action out of range", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0|1|4", false, 0, 0, 0},
		{"nan return", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0|NaN", false, 0, 0, 0},
		{"inf return", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0|inf", false, 0, 0, 0},
		{"negative infinity return", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0|-Infinity|1", false, 0, 0, 0},
		{"action not a number", "0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0|1|left", false, 0, 0, 0},
	}
	for _, tc := range tests {
		tc := tc // per-iteration copy (go.mod targets go1.21)
		t.Run(tc.name, func(t *testing.T) {
			rec, err := ParseLogLine(tc.line)
			if (err == nil) != tc.ok {
				t.Fatalf("err=%v want ok=%v", err, tc.ok)
			}
			if !tc.ok {
				return
			}
			if rec.Action != tc.action || rec.Return != tc.ret {
				t.Fatalf("got %+v", rec)
			}
			if rec.Board[1][1] != tc.cellAt5 {
				t.Fatalf("cell 5=%d want %d", rec.Board[1][1], tc.cellAt5)
			}
		})
	}
}

func TestFormatLogLineParses(t *testing.T) {
	line := FormatLogLine(end, 7.25, int(game.Right))
	if !strings.HasSuffix(line, "|7.25|3") {
		t.Fatalf("line=%q", line)
	}
	rec, err := ParseLogLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Board != end || rec.Return != 7.25 || rec.Action != int(game.Right) {
		t.Fatalf("got %+v", rec)
	}
	if strings.Count(FormatLogLine(end, 1, NoAction), "|") != 1 {
		t.Fatal("NoAction should omit the action column")
	}
}

func TestTrainFromLogDataSkipsMalformed(t *testing.T) {
	midCells := strings.SplitN(FormatLogLine(mid, 0, NoAction), "|", 2)[0]
	net := ntuple.New()
	st := &recordingStore{}
	tr := New(net, nil, st)

	text := strings.Join([]string{
		FormatLogLine(start, 10, NoAction),
		"garbage",
		"",
		FormatLogLine(mid, 5, 4),
		FormatLogLine(end, 8, NoAction),
		midCells + "|NaN",
		midCells + "|inf",
		midCells + "|-Infinity|0",
	}, "\n")

	if got := tr.TrainFromLogData(text); got != 2 {
		t.Fatalf("count=%d want 2", got)
	}
	ref := ntuple.New()
	ref.Train(start, 10, DefaultValueLR)
	ref.Train(end, 8, DefaultValueLR)
	if net.Predict(mid) != ref.Predict(mid) {
		t.Fatal("line with an invalid action or return must not train the value network")
	}
	if v := net.Predict(other); math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("unrelated board predicts %v", v)
	}
	if st.valueSaves != 1 || st.policySaves != 0 {
		t.Fatalf("saves value=%d policy=%d", st.valueSaves, st.policySaves)
	}
}

func TestTrainFromLogDataNothingValid(t *testing.T) {
	st := &recordingStore{}
	tr := New(ntuple.New(), nil, st)
	if got := tr.TrainFromLogData("nope\n\n1,2|3"); got != 0 {
		t.Fatalf("count=%d", got)
	}
	if st.valueSaves != 0 {
		t.Fatal("nothing should be saved")
	}
}

func TestTrainFromLogDataTrainsPolicy(t *testing.T) {
	if testing.Short() {
		t.Skip("policy networks are large")
	}
	policy := ntuple.NewPolicy()
	st := &recordingStore{}
	tr := New(ntuple.New(), policy, st)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString(FormatLogLine(mid, 3, int(game.Down)))
		sb.WriteByte('\n')
	}
	if got := tr.TrainFromLogData(sb.String()); got != 30 {
		t.Fatalf("count=%d", got)
	}
	legal := [4]bool{true, true, true, true}
	if d, ok := policy.BestAction(mid, legal); !ok || d != game.Down {
		t.Fatalf("BestAction=%s,%v want down", d, ok)
	}
	if st.policySaves != 1 {
		t.Fatalf("policy saves=%d", st.policySaves)
	}
}

func TestTrainFromParquet(t *testing.T) {
	ep := threeStepEpisode()
	returns := ep.Returns(0.99)
	rows := make([]store.EpisodeRow, 0, ep.Len()+1)
	for i, s := range ep.Steps {
		rows = append(rows, store.EpisodeRow{
			GameID: "g",
			Turn:   int32(i),
			Board:  store.BoardCells(s.Board),
			Reward: float32(s.Reward),
			Return: float32(returns[i]),
			Action: NoAction,
		})
	}
	rows = append(rows, store.EpisodeRow{GameID: "g", Turn: 9, Board: []int32{1, 2}})
	rows = append(rows, store.EpisodeRow{GameID: "g", Turn: 10, Board: store.BoardCells(mid), Return: float32(math.NaN()), Action: NoAction})
	rows = append(rows, store.EpisodeRow{GameID: "g", Turn: 11, Board: store.BoardCells(mid), Return: float32(math.Inf(1)), Action: NoAction})

	path := filepath.Join(t.TempDir(), "ep.parquet")
	if err := store.WriteEpisodeParquet(path, rows); err != nil {
		t.Fatal(err)
	}

	net := ntuple.New()
	st := &recordingStore{}
	tr := New(net, nil, st)
	n, err := tr.TrainFromParquet(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("trained %d rows want 3", n)
	}
	if net.Predict(end) <= 0 {
		t.Fatal("end board was not trained")
	}
	if v := net.Predict(other); math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("non-finite return leaked into the network: %v", v)
	}
	if st.valueSaves != 1 {
		t.Fatalf("value saves=%d", st.valueSaves)
	}

	if _, err := tr.TrainFromParquet(filepath.Join(t.TempDir(), "missing.parquet")); err == nil {
		t.Fatal("missing file should error")
	}
}
