package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// IngestLog records which dataset files have already been trained on.
// It is an append-only file with one key per line, loaded into memory on open.
// A partial final line left by a crash is read back as an unknown key and the
// file is simply ingested again.
type IngestLog struct {
	mu   sync.RWMutex
	path string
	file *os.File
	seen map[string]struct{}
}

func OpenIngestLog(path string) (*IngestLog, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}

	seen := make(map[string]struct{})
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			key := strings.TrimSpace(scanner.Text())
			if key == "" {
				continue
			}
			seen[key] = struct{}{}
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &IngestLog{path: path, file: file, seen: seen}, nil
}

func (l *IngestLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *IngestLog) Has(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[key]
	return ok
}

func (l *IngestLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

// Add appends key and fsyncs. Keys already present are ignored.
func (l *IngestLog) Add(key string) error {
	if key == "" {
		return fmt.Errorf("key is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[key]; ok {
		return nil
	}
	if l.file == nil {
		return fmt.Errorf("log file is closed")
	}
	if _, err := l.file.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}
	l.seen[key] = struct{}{}
	return nil
}
