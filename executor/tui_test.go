package main

import (
	"errors"
	"testing"
	"time"

	"github.com/brensch/settlers/config"
	"github.com/brensch/settlers/executor/inference"
	"github.com/brensch/settlers/executor/selfplay"
	"github.com/brensch/settlers/executor/train"
	"github.com/brensch/settlers/executor/training"
	"github.com/brensch/settlers/game"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestModelTracksEvents(t *testing.T) {
	stats := &training.Stats{}
	c := &counters{}
	m := initialModel(stats, c, make(chan training.Event))

	next, _ := m.Update(training.Event{
		Kind:  training.GamePlayed,
		Game:  &selfplay.Game{GameID: "0123456789abcdef", Completed: true},
		Total: 12,
	})
	m = next.(model)
	require.Equal(t, 12, m.stored)

	next, _ = m.Update(training.Event{
		Kind:     training.Trained,
		Training: &train.Result{Samples: 3, EpochLoss: []float64{0.9, 0.5}, Duration: time.Second},
	})
	m = next.(model)
	require.Zero(t, m.stored)
	require.Equal(t, 0.5, m.lastLoss)

	next, _ = m.Update(training.Event{Kind: training.IterationFailed, Err: errors.New("disk full")})
	m = next.(model)

	require.Len(t, m.recent, 3)
	require.Contains(t, m.recent[0], "disk full")
	require.Contains(t, m.recent[2], "01234567")

	stats.Games.Add(4)
	c.reloads.Add(2)
	next, _ = m.Update(TickMsg(time.Now()))
	m = next.(model)
	view := m.View()
	require.Contains(t, view, "Games Played:    4")
	require.Contains(t, view, "Weight Reloads:  2")
	require.Contains(t, view, "Press q to quit.")
}

func TestRecentIsBounded(t *testing.T) {
	m := initialModel(&training.Stats{}, &counters{}, make(chan training.Event))
	for range 15 {
		m = m.record(training.Event{Kind: training.IterationFailed, Err: errors.New("x")})
	}
	require.Len(t, m.recent, 10)
}

type fakeRuntime struct{ st inference.RuntimeStats }

func (f fakeRuntime) Stats() inference.RuntimeStats { return f.st }

type fakeWeights struct{ at time.Time }

func (f fakeWeights) LoadedAt() time.Time { return f.at }

func TestViewShowsBackendStatus(t *testing.T) {
	c := &counters{runtime: fakeRuntime{st: inference.RuntimeStats{TotalBatches: 5, TotalItems: 20, AvgBatchSize: 4, QueueLen: 1}}}
	m := initialModel(&training.Stats{}, c, make(chan training.Event))
	next, _ := m.Update(TickMsg(time.Now()))
	view := next.(model).View()
	require.Contains(t, view, "ONNX Batches:    5 (avg 4.0, queue 1)")
	require.NotContains(t, view, "Weights:")

	c = &counters{weights: fakeWeights{}}
	m = initialModel(&training.Stats{}, c, make(chan training.Event))
	next, _ = m.Update(TickMsg(time.Now()))
	require.Contains(t, next.(model).View(), "none, using pip heuristic")

	loaded := time.Date(2026, 1, 2, 13, 4, 5, 0, time.Local)
	c.weights = fakeWeights{at: loaded}
	next, _ = next.(model).Update(TickMsg(time.Now()))
	require.Contains(t, next.(model).View(), "loaded 13:04:05")
}

func TestNewTrainerDisabledForOnnx(t *testing.T) {
	s := config.Default()
	board := game.NewBoard()

	tr := newTrainer(s, board, zerolog.Nop())
	require.NotNil(t, tr)
	require.Equal(t, s.WeightsPath, tr.WeightsPath)
	require.Equal(t, s.Epochs, tr.Epochs)

	s.OnnxModel = "models/settlers.onnx"
	require.Nil(t, newTrainer(s, board, zerolog.Nop()))
}
