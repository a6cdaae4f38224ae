package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brensch/threes/search"
	"github.com/brensch/threes/selfplay"
	"github.com/brensch/threes/store"
	"github.com/brensch/threes/trainer"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

var totalMoves atomic.Int64
var totalGames atomic.Int64

type runConfig struct {
	outDir        string
	workers       int
	gamesPerRound int
	rounds        int
	mode          search.Mode
	usePolicy     bool
	epsilon       float64
	maxMoves      int
	train         bool
	seed          int64
	results       *store.ResultsDB
}

func main() {
	modelPath := flag.String("model", getEnvOrDefault("THREES_MODEL", "models/threes.bin"), "Value network file")
	policyPath := flag.String("policy", getEnvOrDefault("THREES_POLICY", "models/threes_policy.bin"), "Policy network file (empty disables)")
	outDir := flag.String("out-dir", getEnvOrDefault("OUT_DIR", "data/selfplay"), "Directory for episode parquet batches (empty disables)")
	workers := flag.Int("workers", getEnvIntOrDefault("WORKERS", runtime.NumCPU()), "Games played in parallel")
	gamesPerRound := flag.Int("games-per-round", getEnvIntOrDefault("GAMES_PER_ROUND", 64), "Games per round before training")
	rounds := flag.Int("rounds", getEnvIntOrDefault("ROUNDS", 0), "Rounds to play (0 = until interrupted)")
	mode := flag.String("mode", getEnvOrDefault("SEARCH_MODE", "expectimax"), "Search mode: expectimax or safe")
	usePolicy := flag.Bool("use-policy", getEnvBoolOrDefault("USE_POLICY", false), "Pick moves with the policy network")
	epsilon := flag.Float64("epsilon", getEnvFloatOrDefault("EPSILON", 0.02), "Probability of a random legal move")
	maxMoves := flag.Int("max-moves", getEnvIntOrDefault("MAX_MOVES", 0), "Stop games after this many moves (0 = no limit)")
	train := flag.Bool("train", getEnvBoolOrDefault("TRAIN", true), "Train the value network after each round")
	useTUI := flag.Bool("tui", getEnvBoolOrDefault("TUI", false), "Show the live stats view")
	resultsPath := flag.String("results-db", getEnvOrDefault("RESULTS_DB", "data/results.db"), "SQLite ledger of finished games (empty disables)")
	seed := flag.Int64("seed", 0, "Base RNG seed (0 = time based)")
	flag.Parse()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	models := &store.ModelStore{ValuePath: *modelPath, PolicyPath: *policyPath}
	value, err := models.LoadValue()
	if err != nil {
		log.Fatalf("Failed to load value network: %v", err)
	}
	searcher := search.New(value, search.ParseMode(*mode))
	if *usePolicy {
		policy, err := models.LoadPolicy()
		if err != nil {
			log.Fatalf("Failed to load policy network: %v", err)
		}
		searcher.Policy = policy
		searcher.UsePolicy = true
	}
	tr := trainer.New(value, nil, nil)

	cfg := runConfig{
		outDir:        *outDir,
		workers:       *workers,
		gamesPerRound: *gamesPerRound,
		rounds:        *rounds,
		mode:          searcher.Mode,
		usePolicy:     *usePolicy,
		epsilon:       *epsilon,
		maxMoves:      *maxMoves,
		train:         *train,
		seed:          *seed,
	}
	if *resultsPath != "" {
		results, err := store.OpenResultsDB(*resultsPath)
		if err != nil {
			log.Fatalf("Failed to open results db: %v", err)
		}
		defer results.Close()
		cfg.results = results
		if n, avg, err := results.Count(ctx); err == nil && n > 0 {
			log.Printf("  Results: %d games recorded, avg score %.1f", n, avg)
		}
	}

	log.Printf("Starting self-play")
	log.Printf("  Model: %s (episodes=%d)", *modelPath, value.Stats.TotalEpisodes)
	log.Printf("  Out Dir: %s", cfg.outDir)
	log.Printf("  Workers: %d, Games/Round: %d, Rounds: %d", cfg.workers, cfg.gamesPerRound, cfg.rounds)
	log.Printf("  Mode: %s, Policy: %v, Epsilon: %.3f, Train: %v", cfg.mode, cfg.usePolicy, cfg.epsilon, cfg.train)

	updates := make(chan roundUpdate, 16)
	done := make(chan error, 1)
	go func() {
		done <- runRounds(ctx, cfg, searcher, tr, models, updates)
		close(updates)
	}()

	if *useTUI {
		f, err := os.OpenFile("selfplay.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)

		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
		cancel()
	} else {
		for u := range updates {
			log.Print(u.String())
		}
	}

	if err := <-done; err != nil && ctx.Err() == nil {
		log.Fatalf("Self-play failed: %v", err)
	}
	log.Printf("Shutdown complete (games=%d moves=%d)", totalGames.Load(), totalMoves.Load())
}

type roundUpdate struct {
	Round    int
	Summary  selfplay.Summary
	Improved bool
	Trained  int
	Batch    string
	Elapsed  time.Duration
}

func (u roundUpdate) String() string {
	s := fmt.Sprintf("Round %d: games=%d avg=%.1f top=%.0f bot10=%.1f maxTile=%d trainedSteps=%d (%s)",
		u.Round, u.Summary.Games, u.Summary.Overall, u.Summary.Top1, u.Summary.Bottom10, u.Summary.MaxTile, u.Trained, u.Elapsed.Round(time.Millisecond))
	if u.Improved {
		s += " new best"
	}
	if u.Batch != "" {
		s += " -> " + u.Batch
	}
	return s
}

// runRounds plays rounds of parallel games. Games only read the network, so
// training waits until every game of the round has finished.
func runRounds(ctx context.Context, cfg runConfig, searcher *search.Searcher, tr *trainer.Trainer, models *store.ModelStore, updates chan<- roundUpdate) error {
	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if cfg.gamesPerRound <= 0 {
		cfg.gamesPerRound = cfg.workers
	}

	for round := 1; cfg.rounds == 0 || round <= cfg.rounds; round++ {
		round := round // per-iteration copy (go.mod targets go1.21)
		if ctx.Err() != nil {
			return nil
		}
		start := time.Now()

		outcomes := make([]selfplay.Outcome, cfg.gamesPerRound)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.workers)
		for i := 0; i < cfg.gamesPerRound; i++ {
			i := i // per-iteration copy (go.mod targets go1.21)
			g.Go(func() error {
				rng := rand.New(rand.NewSource(cfg.seed + int64(round)*1000003 + int64(i)))
				pcfg := selfplay.Config{
					WorkerID: i,
					MaxMoves: cfg.maxMoves,
					Epsilon:  cfg.epsilon,
					Gamma:    tr.Gamma,
				}
				outcomes[i] = selfplay.PlayGame(gctx, pcfg, searcher, rng, func(selfplay.StepInfo) {
					totalMoves.Add(1)
				})
				totalGames.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		u := roundUpdate{Round: round, Summary: selfplay.Summarize(outcomes)}

		if cfg.outDir != "" {
			path, err := writeRound(cfg.outDir, outcomes)
			if err != nil {
				log.Printf("Parquet flush failed (round=%d): %v", round, err)
			}
			u.Batch = path
		}

		if cfg.results != nil {
			recordResults(ctx, cfg.results, cfg.mode, outcomes)
		}

		if cfg.train {
			for _, o := range outcomes {
				if !o.Completed {
					continue
				}
				n, err := tr.TrainEpisode(o.Episode)
				if err != nil {
					return err
				}
				u.Trained += n
			}
			u.Improved = u.Summary.Apply(&tr.Value.Stats)
			if err := models.SaveValue(tr.Value); err != nil {
				return fmt.Errorf("save value network: %w", err)
			}
		}

		u.Elapsed = time.Since(start)
		select {
		case updates <- u:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func writeRound(outDir string, outcomes []selfplay.Outcome) (string, error) {
	w, err := store.NewBatchWriter(outDir)
	if err != nil {
		return "", err
	}
	for _, o := range outcomes {
		if !o.Completed {
			continue
		}
		if err := w.WriteGame(o.Rows); err != nil {
			_, _, _, _ = w.Finalize()
			return "", err
		}
	}
	path, _, _, err := w.Finalize()
	return path, err
}

func recordResults(ctx context.Context, db *store.ResultsDB, mode search.Mode, outcomes []selfplay.Outcome) {
	for _, o := range outcomes {
		if !o.Completed {
			continue
		}
		err := db.Record(ctx, store.GameResult{
			GameID:      o.GameID,
			Source:      "selfplay",
			Mode:        mode.String(),
			Score:       o.Score,
			Moves:       o.Moves,
			HighestTile: o.HighestTile,
		})
		if err != nil {
			log.Printf("Failed to record result: %v", err)
			return
		}
	}
}
