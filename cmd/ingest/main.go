package main

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brensch/threes/logging"
	"github.com/brensch/threes/store"
	"github.com/brensch/threes/trainer"
)

func main() {
	modelPath := flag.String("model", getEnvOrDefault("THREES_MODEL", "models/threes.bin"), "Value network file")
	policyPath := flag.String("policy", getEnvOrDefault("THREES_POLICY", "models/threes_policy.bin"), "Policy network file")
	logFile := flag.String("log", getEnvOrDefault("TRAIN_LOG", ""), "Text training log (board|return[|action] per line, - for stdin)")
	dataDir := flag.String("data-dir", getEnvOrDefault("DATA_DIR", ""), "Directory of self-play parquet batches")
	ingestedLog := flag.String("ingested-log", getEnvOrDefault("INGESTED_LOG", "data/ingested.log"), "Append-only log of parquet files already trained on")
	valueLR := flag.Float64("value-lr", getEnvFloatOrDefault("VALUE_LR", trainer.DefaultValueLR), "Value network learning rate")
	policyLR := flag.Float64("policy-lr", getEnvFloatOrDefault("POLICY_LR", trainer.DefaultPolicyLR), "Policy network learning rate")
	logLevel := flag.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "debug, info, warn or error")
	pretty := flag.Bool("pretty", false, "Indent JSON logs")
	flag.Parse()

	logger := logging.Setup(*logLevel, *pretty)

	if *logFile == "" && *dataDir == "" {
		logger.Error("nothing to ingest: set -log or -data-dir")
		os.Exit(2)
	}

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

	tr := trainer.New(value, policy, nil)
	tr.Logger = logger
	tr.ValueLR = *valueLR
	tr.PolicyLR = *policyLR

	total := 0
	if *logFile != "" {
		n, err := ingestText(tr, *logFile)
		if err != nil {
			logger.Error("failed to read training log", "path", *logFile, "error", err)
			os.Exit(1)
		}
		logger.Info("ingested text log", "path", *logFile, "records", n)
		total += n
	}

	var done []string
	var ingested *store.IngestLog
	if *dataDir != "" {
		ingested, err = store.OpenIngestLog(*ingestedLog)
		if err != nil {
			logger.Error("failed to open ingest log", "error", err)
			os.Exit(1)
		}
		defer ingested.Close()

		var n int
		n, done = ingestParquetDir(logger, tr, ingested, *dataDir)
		total += n
	}

	if total == 0 {
		logger.Info("no records trained, models unchanged")
		return
	}
	if err := models.SaveValue(value); err != nil {
		logger.Error("failed to save value network", "error", err)
		os.Exit(1)
	}
	if err := models.SavePolicy(policy); err != nil {
		logger.Error("failed to save policy network", "error", err)
		os.Exit(1)
	}
	for _, key := range done {
		if err := ingested.Add(key); err != nil {
			logger.Warn("failed to record ingested file", "file", key, "error", err)
		}
	}
	logger.Info("ingestion complete", "records", total, "files", len(done), "model", *modelPath, "policy", *policyPath)
}

func ingestText(tr *trainer.Trainer, path string) (int, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return 0, err
	}
	return tr.TrainFromLogData(string(data)), nil
}

// ingestParquetDir trains on every parquet file in dir not yet in the ingest
// log, oldest name first, and returns the files it consumed.
func ingestParquetDir(logger *slog.Logger, tr *trainer.Trainer, ingested *store.IngestLog, dir string) (int, []string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("failed to list data dir", "dir", dir, "error", err)
		return 0, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	total := 0
	var done []string
	for _, name := range names {
		if ingested.Has(name) {
			logger.Debug("skipping ingested file", "file", name)
			continue
		}
		n, err := tr.TrainFromParquet(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("failed to ingest parquet file", "file", name, "rows", n, "error", err)
			continue
		}
		logger.Info("ingested parquet file", "file", name, "rows", n)
		total += n
		done = append(done, name)
	}
	return total, done
}
