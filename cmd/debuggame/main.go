package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/search"
	"github.com/brensch/threes/selfplay"
	"github.com/brensch/threes/store"
)

func main() {
	modelPath := flag.String("model", filepath.Join("models", "threes.bin"), "Value network file")
	outDir := flag.String("out-dir", "debug_games", "Output directory for debug games")
	mode := flag.String("mode", "expectimax", "Search mode: expectimax or safe")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time based)")
	maxMoves := flag.Int("max-moves", 0, "Stop after this many moves (0 = no limit)")
	board := flag.Bool("board", false, "Print the board before every move")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	models := &store.ModelStore{ValuePath: *modelPath}
	value, err := models.LoadValue()
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	searcher := search.New(value, search.ParseMode(*mode))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Printf("Generating debug game (%s search, seed %d)", searcher.Mode, *seed)

	cfg := selfplay.Config{MaxMoves: *maxMoves, Gamma: value.Gamma, Verbose: *board}
	onStep := func(st selfplay.StepInfo) {
		conf := search.Confidences(st.Q)
		fmt.Printf("  Move %4d | %-5s | score %6d | conf U%.2f D%.2f L%.2f R%.2f\n",
			st.Move, st.Dir, st.Score, conf[game.Up], conf[game.Down], conf[game.Left], conf[game.Right])
	}
	result := selfplay.PlayGame(ctx, cfg, searcher, rand.New(rand.NewSource(*seed)), onStep)

	log.Printf("Game complete: %d moves, score %d, highest tile %d", result.Moves, result.Score, result.HighestTile)
	final := result.Episode.Steps[len(result.Episode.Steps)-1].Board
	fmt.Print(selfplay.FormatBoard(final, nil))

	parquetPath := filepath.Join(*outDir, fmt.Sprintf("debug_%s.parquet", result.GameID))
	if err := store.WriteEpisodeParquet(parquetPath, result.Rows); err != nil {
		log.Fatalf("Failed to write debug game: %v", err)
	}
	log.Printf("Debug game written to: %s", parquetPath)

	logPath := filepath.Join(*outDir, fmt.Sprintf("debug_%s.log", result.GameID))
	if err := os.WriteFile(logPath, []byte(result.Episode.LogData(cfg.Gamma)), 0o644); err != nil {
		log.Fatalf("Failed to write training log: %v", err)
	}
	log.Printf("Training log written to: %s", logPath)
}
