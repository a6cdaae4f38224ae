// Package trainer updates the value and policy networks from played episodes
// and from offline datasets.
package trainer

import (
	"log/slog"
	"strings"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/ntuple"
)

const (
	DefaultEpisodeLR = 0.0025
	DefaultValueLR   = 0.001
	DefaultPolicyLR  = 0.01
)

// NoAction marks a step with no recorded follow-up move.
const NoAction = -1

// Persister saves trained networks. store.ModelStore satisfies it.
type Persister interface {
	SaveValue(*ntuple.Network) error
	SavePolicy(*ntuple.Policy) error
}

// Step is one recorded position: the board reached, the score gained by
// reaching it, and the move then taken from it (NoAction if none).
type Step struct {
	Board  game.Board
	Reward float64
	Action int
}

// Episode is the move history of a single game.
type Episode struct {
	Steps []Step
}

// Record appends a position with no move yet taken from it.
func (e *Episode) Record(b game.Board, reward float64) {
	e.Steps = append(e.Steps, Step{Board: b, Reward: reward, Action: NoAction})
}

// RecordMove notes that dir was played from the last position and appends the
// resulting board.
func (e *Episode) RecordMove(dir game.Direction, after game.Board, reward float64) {
	if n := len(e.Steps); n > 0 {
		e.Steps[n-1].Action = int(dir)
	}
	e.Record(after, reward)
}

func (e *Episode) Len() int { return len(e.Steps) }

func (e *Episode) Reset() { e.Steps = e.Steps[:0] }

// Returns walks the episode backwards computing G_i = r_i + γ·G_{i+1}.
func (e *Episode) Returns(gamma float64) []float64 {
	out := make([]float64, len(e.Steps))
	g := 0.0
	for i := len(e.Steps) - 1; i >= 0; i-- {
		g = e.Steps[i].Reward + gamma*g
		out[i] = g
	}
	return out
}

// LogData renders the episode in the offline log format, one line per step.
func (e *Episode) LogData(gamma float64) string {
	var sb strings.Builder
	for i, g := range e.Returns(gamma) {
		sb.WriteString(FormatLogLine(e.Steps[i].Board, g, e.Steps[i].Action))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Trainer owns the learning-rate schedule for both networks. Policy and
// Store may be nil.
type Trainer struct {
	Value  *ntuple.Network
	Policy *ntuple.Policy
	Store  Persister
	Logger *slog.Logger

	Gamma     float64
	EpisodeLR float64
	ValueLR   float64
	PolicyLR  float64
}

func New(value *ntuple.Network, policy *ntuple.Policy, store Persister) *Trainer {
	gamma := ntuple.DefaultGamma
	if value != nil && value.Gamma > 0 {
		gamma = value.Gamma
	}
	return &Trainer{
		Value:     value,
		Policy:    policy,
		Store:     store,
		Gamma:     gamma,
		EpisodeLR: DefaultEpisodeLR,
		ValueLR:   DefaultValueLR,
		PolicyLR:  DefaultPolicyLR,
	}
}

func (t *Trainer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// TrainEpisode runs the backward Monte-Carlo pass over ep, trains the value
// network on every step, persists it and clears the episode. It returns the
// number of steps trained.
func (t *Trainer) TrainEpisode(ep *Episode) (int, error) {
	if ep == nil || ep.Len() == 0 {
		return 0, nil
	}
	returns := ep.Returns(t.Gamma)
	for i := len(ep.Steps) - 1; i >= 0; i-- {
		t.Value.Train(ep.Steps[i].Board, returns[i], t.EpisodeLR)
	}
	n := ep.Len()
	t.Value.Stats.TotalEpisodes++
	ep.Reset()

	if t.Store != nil {
		if err := t.Store.SaveValue(t.Value); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (t *Trainer) persistAll() error {
	if t.Store == nil {
		return nil
	}
	if err := t.Store.SaveValue(t.Value); err != nil {
		return err
	}
	if t.Policy != nil {
		if err := t.Store.SavePolicy(t.Policy); err != nil {
			return err
		}
	}
	return nil
}
