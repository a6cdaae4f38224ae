// Package store persists models and self-play datasets.
//
// Model files are read fully into memory before parsing and written to a
// temp file that is renamed into place, so readers never observe a partial
// model. Episodes are stored as Parquet rows that the trainer can replay.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/brensch/threes/game"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const episodeSchema = "threes_episode_row_v1"

// EpisodeRow is one recorded move of a self-play episode.
//
// Board holds the 16 tiles row-major (turn 0 is the starting position) and
// Reward the score gained reaching it. Action is the direction then played
// from this board (0=Up, 1=Down, 2=Left, 3=Right), or -1 on the final board.
// Return is the discounted Monte-Carlo return from this position.
type EpisodeRow struct {
	GameID string  `parquet:"game_id,dict"`
	Turn   int32   `parquet:"turn"`
	Board  []int32 `parquet:"board"`
	Hints  []int32 `parquet:"hints"`
	Reward float32 `parquet:"reward"`
	Return float32 `parquet:"return"`
	Action int32   `parquet:"action"`
	Score  int32   `parquet:"score"`
	Mode   string  `parquet:"mode,dict"`
}

// BoardFromRow rebuilds the board; it fails on rows with the wrong cell count.
func BoardFromRow(row EpisodeRow) (game.Board, error) {
	if len(row.Board) != game.Size*game.Size {
		return game.Board{}, fmt.Errorf("row %s/%d has %d cells", row.GameID, row.Turn, len(row.Board))
	}
	var cells [game.Size * game.Size]int
	for i, v := range row.Board {
		cells[i] = int(v)
	}
	return game.FromFlat(cells), nil
}

// BoardCells flattens a board into the row representation.
func BoardCells(b game.Board) []int32 {
	flat := b.Flat()
	out := make([]int32, len(flat))
	for i, v := range flat {
		out[i] = int32(v)
	}
	return out
}

func writeOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", episodeSchema),
	}
}

// WriteEpisodeParquet writes rows to outPath through a temp file and rename.
func WriteEpisodeParquet(outPath string, rows []EpisodeRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadEpisodeParquet streams every row of a file into fn. A non-nil error
// from fn stops the scan and is returned.
func ReadEpisodeParquet(path string, fn func(EpisodeRow) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := parquet.NewGenericReader[EpisodeRow](f)
	defer reader.Close()

	buf := make([]EpisodeRow, 256)
	total := 0
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			if ferr := fn(buf[i]); ferr != nil {
				return total, ferr
			}
			total++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return total, fmt.Errorf("read parquet: %w", err)
		}
	}
	return total, nil
}
