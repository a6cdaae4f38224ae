package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("not json: %v\n%s", err, buf.String())
	}
	return m
}

func TestHandlerWritesAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewJSONHandler(&buf, nil)).With("game", "abc").WithGroup("search")
	logger.Info("move chosen", "dir", "left", "q", [4]float64{1, math.Inf(-1), 2.5, 0})

	m := decodeLine(t, &buf)
	if m["msg"] != "move chosen" || m["game"] != "abc" {
		t.Fatalf("payload %v", m)
	}
	group, ok := m["search"].(map[string]any)
	if !ok {
		t.Fatalf("missing group: %v", m)
	}
	q, ok := group["q"].([]any)
	if !ok || len(q) != 4 {
		t.Fatalf("q=%v", group["q"])
	}
	if q[1] != "-Inf" {
		t.Fatalf("q[1]=%v want -Inf string", q[1])
	}
}

func TestHandlerLevelAndErrors(t *testing.T) {
	var buf bytes.Buffer
	h := NewJSONHandler(&buf, &Options{HandlerOptions: slog.HandlerOptions{Level: slog.LevelWarn}, Pretty: true})
	logger := slog.New(h)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered: %s", buf.String())
	}
	logger.Warn("save failed", "error", errors.New("disk full"))
	if !strings.Contains(buf.String(), "\n  ") {
		t.Fatal("pretty output should be indented")
	}
	if m := decodeLine(t, &buf); m["error"] != "disk full" {
		t.Fatalf("error=%v", m["error"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
