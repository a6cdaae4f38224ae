package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type model struct {
	rounds    int
	games     int64
	moves     int64
	bestAvg   float64
	startTime time.Time
	recent    []string
	updates   <-chan roundUpdate
	finished  bool
}

func initialModel(updates <-chan roundUpdate) model {
	return model{startTime: time.Now(), updates: updates}
}

type TickMsg time.Time

type finishedMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForUpdate(updates <-chan roundUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return finishedMsg{}
		}
		return u
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.games = totalGames.Load()
		m.moves = totalMoves.Load()
		return m, tickCmd()
	case roundUpdate:
		m.rounds++
		if msg.Summary.Overall > m.bestAvg {
			m.bestAvg = msg.Summary.Overall
		}
		m.recent = append([]string{msg.String()}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates)
	case finishedMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec, movesPerSec := 0.0, 0.0
	if duration.Seconds() >= 1 {
		gamesPerSec = float64(m.games) / duration.Seconds()
		movesPerSec = float64(m.moves) / duration.Seconds()
	}

	s := fmt.Sprintf("Rounds:      %d\n", m.rounds)
	s += fmt.Sprintf("Games:       %d\n", m.games)
	s += fmt.Sprintf("Moves:       %d\n", m.moves)
	s += fmt.Sprintf("Best Avg:    %.1f\n", m.bestAvg)
	s += fmt.Sprintf("Duration:    %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Games/Sec:   %.2f\n", gamesPerSec)
	s += fmt.Sprintf("Moves/Sec:   %.2f\n\n", movesPerSec)

	s += "Recent Rounds:\n"
	for _, r := range m.recent {
		s += r + "\n"
	}
	s += "\nPress q to quit.\n"
	return s
}
