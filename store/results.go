package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// GameResult is the summary of one finished game.
type GameResult struct {
	GameID      string    `json:"gameId"`
	Source      string    `json:"source"`
	Mode        string    `json:"mode"`
	Score       int       `json:"score"`
	Moves       int       `json:"moves"`
	HighestTile int       `json:"highestTile"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// ResultsDB is a SQLite ledger of finished games, used for high scores and
// progress tracking across runs.
type ResultsDB struct {
	db *sql.DB
}

const createResultsSQL = `
CREATE TABLE IF NOT EXISTS results (
	game_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	mode TEXT NOT NULL,
	score INTEGER NOT NULL,
	moves INTEGER NOT NULL,
	highest_tile INTEGER NOT NULL,
	finished_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS results_score ON results(score DESC);
`

func OpenResultsDB(path string) (*ResultsDB, error) {
	if path == "" {
		return nil, fmt.Errorf("results db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createResultsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &ResultsDB{db: db}, nil
}

func (r *ResultsDB) Close() error { return r.db.Close() }

// Record inserts res; a game ID that is already present is left unchanged.
func (r *ResultsDB) Record(ctx context.Context, res GameResult) error {
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO results (game_id, source, mode, score, moves, highest_tile, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.GameID, res.Source, res.Mode, res.Score, res.Moves, res.HighestTile, res.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert result %s: %w", res.GameID, err)
	}
	return nil
}

// Top returns the n highest-scoring games, ties broken by fewer moves.
func (r *ResultsDB) Top(ctx context.Context, n int) ([]GameResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT game_id, source, mode, score, moves, highest_tile, finished_at
		FROM results ORDER BY score DESC, moves ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query top results: %w", err)
	}
	defer rows.Close()

	var out []GameResult
	for rows.Next() {
		var g GameResult
		if err := rows.Scan(&g.GameID, &g.Source, &g.Mode, &g.Score, &g.Moves, &g.HighestTile, &g.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Count returns how many games are recorded and their mean score.
func (r *ResultsDB) Count(ctx context.Context) (int, float64, error) {
	var (
		n   int
		avg sql.NullFloat64
	)
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(score) FROM results`).Scan(&n, &avg); err != nil {
		return 0, 0, fmt.Errorf("count results: %w", err)
	}
	return n, avg.Float64, nil
}
