// Command archive2train converts self-play episode parquet shards into the
// line-oriented training log ("board|return|action") read by the external
// trainer and by cmd/ingest.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/threes/store"
	"github.com/brensch/threes/trainer"
)

func main() {
	inDir := flag.String("in-dir", "", "Directory containing episode parquet shards")
	outDir := flag.String("out-dir", "", "Output directory for .log training files")
	gamma := flag.Float64("gamma", 0, "If > 0, recompute returns with this discount instead of using the stored ones")
	flag.Parse()

	if *inDir == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "-in-dir and -out-dir are required")
		os.Exit(2)
	}
	absIn, _ := filepath.Abs(*inDir)
	absOut, _ := filepath.Abs(*outDir)
	if absIn == absOut {
		fmt.Fprintln(os.Stderr, "out-dir must be different from in-dir")
		os.Exit(2)
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create out-dir: %v\n", err)
		os.Exit(2)
	}

	inputs := make([]string, 0, 256)
	_ = filepath.WalkDir(absIn, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "no parquet inputs found")
		os.Exit(1)
	}

	convertedFiles, lines := 0, 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".log")
		n, err := convertOne(inPath, outPath, *gamma)
		if err != nil {
			fmt.Fprintf(os.Stderr, "convert %s: %v\n", inPath, err)
			continue
		}
		if n > 0 {
			convertedFiles++
			lines += n
		}
	}
	if convertedFiles == 0 {
		fmt.Fprintln(os.Stderr, "no output written (no convertible rows)")
		os.Exit(1)
	}
	fmt.Printf("converted %d files, %d lines\n", convertedFiles, lines)
}

// convertOne writes one log line per row with a valid board. Rows of a game
// are contiguous in a shard, so returns are recomputed game by game.
func convertOne(inPath, outPath string, gamma float64) (int, error) {
	var games [][]store.EpisodeRow
	_, err := store.ReadEpisodeParquet(inPath, func(row store.EpisodeRow) error {
		if n := len(games); n == 0 || games[n-1][0].GameID != row.GameID {
			games = append(games, nil)
		}
		games[len(games)-1] = append(games[len(games)-1], row)
		return nil
	})
	if err != nil {
		return 0, err
	}

	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	f, err := os.OpenFile(outTmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)

	written := 0
	for _, rows := range games {
		ep := &trainer.Episode{}
		var returns []float64
		for _, row := range rows {
			b, err := store.BoardFromRow(row)
			if err != nil {
				continue
			}
			ep.Steps = append(ep.Steps, trainer.Step{Board: b, Reward: float64(row.Reward), Action: int(row.Action)})
			returns = append(returns, float64(row.Return))
		}
		if gamma > 0 {
			returns = ep.Returns(gamma)
		}
		for i, st := range ep.Steps {
			if _, err := w.WriteString(trainer.FormatLogLine(st.Board, returns[i], st.Action) + "\n"); err != nil {
				_ = f.Close()
				_ = os.Remove(outTmp)
				return 0, err
			}
			written++
		}
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if written == 0 {
		_ = os.Remove(outTmp)
		return 0, nil
	}
	if err := os.Rename(outTmp, outPath); err != nil {
		return 0, err
	}
	return written, nil
}
