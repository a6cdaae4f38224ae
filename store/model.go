package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brensch/threes/ntuple"
)

// ModelStore is the single local model file (and its policy companion).
type ModelStore struct {
	ValuePath  string
	PolicyPath string
	Logger     *slog.Logger
}

func (s *ModelStore) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// LoadValue returns the value network at ValuePath. A missing file yields a
// fresh network. A file that neither format accepts also yields a fresh
// network; the decode error is logged rather than returned.
func (s *ModelStore) LoadValue() (*ntuple.Network, error) {
	n := ntuple.New()
	data, err := os.ReadFile(s.ValuePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger().Info("no value model on disk, starting fresh", "path", s.ValuePath)
			return n, nil
		}
		return nil, fmt.Errorf("read value model: %w", err)
	}
	format, err := n.LoadFromBinary(bytes.NewReader(data))
	if err != nil {
		s.logger().Warn("value model unreadable, starting fresh", "path", s.ValuePath, "error", err)
		return n, nil
	}
	s.logger().Info("loaded value model", "path", s.ValuePath, "format", format.String(), "episodes", n.Stats.TotalEpisodes)
	return n, nil
}

// LoadPolicy is LoadValue for the policy file.
func (s *ModelStore) LoadPolicy() (*ntuple.Policy, error) {
	p := ntuple.NewPolicy()
	if s.PolicyPath == "" {
		return p, nil
	}
	data, err := os.ReadFile(s.PolicyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read policy model: %w", err)
	}
	if err := p.LoadFromBinary(bytes.NewReader(data)); err != nil {
		s.logger().Warn("policy model unreadable, starting fresh", "path", s.PolicyPath, "error", err)
	}
	return p, nil
}

func (s *ModelStore) SaveValue(n *ntuple.Network) error {
	var buf bytes.Buffer
	if err := n.ExportToBinary(&buf); err != nil {
		return err
	}
	return writeAtomic(s.ValuePath, buf.Bytes())
}

func (s *ModelStore) SavePolicy(p *ntuple.Policy) error {
	if s.PolicyPath == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := p.ExportToBinary(&buf); err != nil {
		return err
	}
	return writeAtomic(s.PolicyPath, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("model path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename model: %w", err)
	}
	return nil
}
