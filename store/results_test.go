package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestResultsDB(t *testing.T) {
	ctx := context.Background()
	db, err := OpenResultsDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	games := []GameResult{
		{GameID: "a", Source: "selfplay", Mode: "expectimax", Score: 300, Moves: 90, HighestTile: 96, FinishedAt: when},
		{GameID: "b", Source: "selfplay", Mode: "safe", Score: 900, Moves: 200, HighestTile: 192, FinishedAt: when},
		{GameID: "c", Source: "serve", Mode: "expectimax", Score: 900, Moves: 150, HighestTile: 192, FinishedAt: when},
	}
	for _, g := range games {
		if err := db.Record(ctx, g); err != nil {
			t.Fatal(err)
		}
	}
	dup := games[0]
	dup.Score = 1
	if err := db.Record(ctx, dup); err != nil {
		t.Fatal(err)
	}

	top, err := db.Top(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].GameID != "c" || top[1].GameID != "b" {
		t.Fatalf("top=%+v", top)
	}
	if !top[0].FinishedAt.Equal(when) {
		t.Fatalf("finished_at=%v want %v", top[0].FinishedAt, when)
	}

	n, avg, err := db.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || avg != 700 {
		t.Fatalf("count=%d avg=%v", n, avg)
	}
}
