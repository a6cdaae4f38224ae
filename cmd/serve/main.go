package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/threes/logging"
	"github.com/brensch/threes/search"
	"github.com/brensch/threes/store"
	"github.com/brensch/threes/trainer"
)

func main() {
	addr := flag.String("addr", getEnvOrDefault("ADDR", ":8080"), "Listen address")
	modelPath := flag.String("model", getEnvOrDefault("THREES_MODEL", "models/threes.bin"), "Value network file")
	policyPath := flag.String("policy", getEnvOrDefault("THREES_POLICY", "models/threes_policy.bin"), "Policy network file")
	mode := flag.String("mode", getEnvOrDefault("SEARCH_MODE", "expectimax"), "Search mode: expectimax or safe")
	usePolicy := flag.Bool("use-policy", getEnvBoolOrDefault("USE_POLICY", false), "Pick moves with the policy network")
	autoTrain := flag.Bool("auto-train", getEnvBoolOrDefault("AUTO_TRAIN", true), "Train on every finished autoplay game")
	resultsPath := flag.String("results-db", getEnvOrDefault("RESULTS_DB", "data/results.db"), "SQLite ledger of finished games (empty disables)")
	logLevel := flag.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "debug, info, warn or error")
	shutdownTimeout := flag.Duration("shutdown-timeout", getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 5*time.Second), "Graceful shutdown timeout")
	flag.Parse()

	logger := logging.Setup(*logLevel, false)

	models := &store.ModelStore{ValuePath: *modelPath, PolicyPath: *policyPath, Logger: logger}
	value, err := models.LoadValue()
	if err != nil {
		logger.Error("failed to load value network", "error", err)
		os.Exit(1)
	}
	policy, err := models.LoadPolicy()
	if err != nil {
		logger.Error("failed to load policy network", "error", err)
		os.Exit(1)
	}

	searcher := search.New(value, search.ParseMode(*mode))
	searcher.Policy = policy
	searcher.UsePolicy = *usePolicy

	tr := trainer.New(value, policy, models)
	tr.Logger = logger

	srv := newServer(searcher, tr, *autoTrain, logger)
	if *resultsPath != "" {
		results, err := store.OpenResultsDB(*resultsPath)
		if err != nil {
			logger.Error("failed to open results db", "error", err)
			os.Exit(1)
		}
		defer results.Close()
		srv.results = results
	}
	httpSrv := &http.Server{Addr: *addr, Handler: httpHandler(srv)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
	}()

	logger.Info("server starting", "addr", *addr, "mode", searcher.Mode.String(), "policy", *usePolicy, "autoTrain", *autoTrain)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func httpHandler(srv *server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.serveWs)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
