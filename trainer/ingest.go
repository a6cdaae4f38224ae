package trainer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/store"
)

// Record is one parsed offline training line.
type Record struct {
	Board  game.Board
	Return float64
	Action int
}

// FormatLogLine renders "c0,...,c15|return[|action]". The action column is
// omitted when action is NoAction.
func FormatLogLine(b game.Board, ret float64, action int) string {
	flat := b.Flat()
	cells := make([]string, len(flat))
	for i, v := range flat {
		cells[i] = strconv.Itoa(v)
	}
	line := strings.Join(cells, ",") + "|" + strconv.FormatFloat(ret, 'g', -1, 64)
	if action >= 0 {
		line += "|" + strconv.Itoa(action)
	}
	return line
}

// ParseLogLine parses a whole line before anything is trained on it, so a
// line with a bad action column contributes nothing.
func ParseLogLine(line string) (Record, error) {
	rec := Record{Action: NoAction}
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) < 2 {
		return rec, errors.New("missing return column")
	}

	cells := strings.Split(strings.TrimSpace(parts[0]), ",")
	if len(cells) != game.Size*game.Size {
		return rec, fmt.Errorf("want %d cells, got %d", game.Size*game.Size, len(cells))
	}
	var flat [game.Size * game.Size]int
	for i, c := range cells {
		v, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return rec, fmt.Errorf("cell %d: %w", i, err)
		}
		if v < 0 {
			return rec, fmt.Errorf("cell %d: negative tile %d", i, v)
		}
		flat[i] = v
	}
	rec.Board = game.FromFlat(flat)

	ret, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return rec, fmt.Errorf("return: %w", err)
	}
	if math.IsNaN(ret) || math.IsInf(ret, 0) {
		return rec, fmt.Errorf("return %v is not finite", ret)
	}
	rec.Return = ret

	if len(parts) >= 3 {
		if s := strings.TrimSpace(parts[2]); s != "" {
			a, err := strconv.Atoi(s)
			if err != nil {
				return rec, fmt.Errorf("action: %w", err)
			}
			if !game.Direction(a).Valid() {
				return rec, fmt.Errorf("action %d out of range", a)
			}
			rec.Action = a
		}
	}
	return rec, nil
}

func (t *Trainer) trainRecord(rec Record) {
	t.Value.Train(rec.Board, rec.Return, t.ValueLR)
	if rec.Action != NoAction && t.Policy != nil {
		t.Policy.Train(rec.Board, game.Direction(rec.Action), t.PolicyLR)
	}
}

// TrainFromLogData trains on every well-formed line of text and returns how
// many were used. Malformed lines are skipped. Both networks are persisted
// when at least one line succeeded; a save failure is logged.
func (t *Trainer) TrainFromLogData(text string) int {
	count, skipped := 0, 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseLogLine(line)
		if err != nil {
			skipped++
			continue
		}
		t.trainRecord(rec)
		count++
	}
	if skipped > 0 {
		t.logger().Debug("skipped malformed log lines", "skipped", skipped)
	}
	if count > 0 {
		if err := t.persistAll(); err != nil {
			t.logger().Error("failed to save models after ingestion", "error", err)
		}
	}
	return count
}

// TrainFromParquet trains on the episode rows in a self-play parquet file.
// Rows with a malformed board or a non-finite return are skipped.
func (t *Trainer) TrainFromParquet(path string) (int, error) {
	count := 0
	_, err := store.ReadEpisodeParquet(path, func(row store.EpisodeRow) error {
		b, err := store.BoardFromRow(row)
		if err != nil {
			return nil
		}
		if ret := float64(row.Return); math.IsNaN(ret) || math.IsInf(ret, 0) {
			return nil
		}
		rec := Record{Board: b, Return: float64(row.Return), Action: NoAction}
		if game.Direction(row.Action).Valid() {
			rec.Action = int(row.Action)
		}
		t.trainRecord(rec)
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("ingest %s: %w", path, err)
	}
	if count > 0 {
		if err := t.persistAll(); err != nil {
			return count, err
		}
	}
	return count, nil
}
