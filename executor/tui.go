package main

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brensch/settlers/executor/inference"
	"github.com/brensch/settlers/executor/training"
	tea "github.com/charmbracelet/bubbletea"
)

// counters are read by the status view on every tick.
type counters struct {
	evaluations atomic.Int64
	reloads     atomic.Int64

	// at most one of these is set, depending on the evaluator backend
	runtime interface{ Stats() inference.RuntimeStats }
	weights interface{ LoadedAt() time.Time }
}

type model struct {
	stats     *training.Stats
	counters  *counters
	events    chan training.Event
	startTime time.Time

	games       int64
	examples    int64
	trainings   int64
	failures    int64
	evaluations int64
	reloads     int64
	runtime     *inference.RuntimeStats
	loadedAt    time.Time
	stored      int
	lastLoss    float64
	recent      []string
}

func initialModel(stats *training.Stats, c *counters, events chan training.Event) model {
	return model{stats: stats, counters: c, events: events, startTime: time.Now()}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForEvent(events chan training.Event) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.games = m.stats.Games.Load()
		m.examples = m.stats.Examples.Load()
		m.trainings = m.stats.Trainings.Load()
		m.failures = m.stats.Failures.Load()
		m.evaluations = m.counters.evaluations.Load()
		m.reloads = m.counters.reloads.Load()
		if m.counters.runtime != nil {
			rs := m.counters.runtime.Stats()
			m.runtime = &rs
		}
		if m.counters.weights != nil {
			m.loadedAt = m.counters.weights.LoadedAt()
		}
		return m, tickCmd()
	case training.Event:
		m = m.record(msg)
		return m, waitForEvent(m.events)
	}
	return m, nil
}

func (m model) record(e training.Event) model {
	var line string
	switch e.Kind {
	case training.GamePlayed:
		m.stored = e.Total
		status := "complete"
		if !e.Game.Completed {
			status = "aborted"
		}
		line = fmt.Sprintf("game %s %s: %d examples, outcome %v", shortID(e.Game.GameID), status, len(e.Game.Examples), e.Game.Outcome)
	case training.Trained:
		m.stored = 0
		if n := len(e.Training.EpochLoss); n > 0 {
			m.lastLoss = e.Training.EpochLoss[n-1]
		}
		line = fmt.Sprintf("trained on %d samples in %s, loss %.4f", e.Training.Samples, e.Training.Duration.Round(time.Millisecond), m.lastLoss)
	case training.IterationFailed:
		line = fmt.Sprintf("iteration failed: %v", e.Err)
	}
	m.recent = append([]string{line}, m.recent...)
	if len(m.recent) > 10 {
		m.recent = m.recent[:10]
	}
	return m
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec, evalsPerSec := 0.0, 0.0
	if duration.Seconds() >= 1 {
		gamesPerSec = float64(m.games) / duration.Seconds()
		evalsPerSec = float64(m.evaluations) / duration.Seconds()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Games Played:    %d\n", m.games)
	fmt.Fprintf(&sb, "Total Examples:  %d\n", m.examples)
	fmt.Fprintf(&sb, "Stored Examples: %d\n", m.stored)
	fmt.Fprintf(&sb, "Trainings:       %d (last loss %.4f)\n", m.trainings, m.lastLoss)
	fmt.Fprintf(&sb, "Weight Reloads:  %d\n", m.reloads)
	if m.counters.weights != nil {
		if m.loadedAt.IsZero() {
			sb.WriteString("Weights:         none, using pip heuristic\n")
		} else {
			fmt.Fprintf(&sb, "Weights:         loaded %s\n", m.loadedAt.Format(time.TimeOnly))
		}
	}
	if m.runtime != nil {
		fmt.Fprintf(&sb, "ONNX Batches:    %d (avg %.1f, queue %d)\n", m.runtime.TotalBatches, m.runtime.AvgBatchSize, m.runtime.QueueLen)
	}
	fmt.Fprintf(&sb, "Failures:        %d\n", m.failures)
	fmt.Fprintf(&sb, "Duration:        %s\n", duration.Round(time.Second))
	fmt.Fprintf(&sb, "Games/Sec:       %.2f\n", gamesPerSec)
	fmt.Fprintf(&sb, "Evals/Sec:       %.2f\n\n", evalsPerSec)

	sb.WriteString("Recent:\n")
	for _, l := range m.recent {
		sb.WriteString(l + "\n")
	}
	sb.WriteString("\nPress q to quit.\n")
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
