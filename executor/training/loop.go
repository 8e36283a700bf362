// Package training runs the continuous self-play and training cycle.
package training

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brensch/settlers/executor/inference"
	"github.com/brensch/settlers/executor/selfplay"
	"github.com/brensch/settlers/executor/train"
	"github.com/brensch/settlers/game"
	"github.com/rs/zerolog"
)

// Examples is the persistence the loop needs from the Training-Data Store.
type Examples interface {
	AppendAndPersist([]game.Example) ([]game.Example, error)
	Clear() error
}

type EventKind int

const (
	GamePlayed EventKind = iota
	Trained
	IterationFailed
)

// Event reports the outcome of one iteration to an observer such as the TUI.
type Event struct {
	Kind     EventKind
	Game     *selfplay.Game
	Total    int
	Training *train.Result
	Err      error
}

type Stats struct {
	Games     atomic.Int64
	Aborted   atomic.Int64
	Examples  atomic.Int64
	Trainings atomic.Int64
	Failures  atomic.Int64
}

type Loop struct {
	Driver *selfplay.Driver
	Store  Examples

	// Trainer is optional. Without it the loop only collects examples.
	Trainer   *train.Trainer
	Threshold int
	Interval  time.Duration
	Logger    zerolog.Logger

	// Network, when set, receives freshly trained weights immediately
	// instead of waiting for the watcher.
	Network *inference.NetworkEvaluator
	OnEvent func(Event)

	Stats Stats

	// set when examples were trained on but the store could not be cleared
	pendingClear bool
}

// Run plays games until ctx is cancelled. Iteration errors are logged and
// the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.Stats.Failures.Add(1)
			l.Logger.Error().Err(err).Msg("training iteration failed")
			l.emit(Event{Kind: IterationFailed, Err: err})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.Interval):
		}
	}
}

// RunOnce plays one game, persists its examples and trains if the store has
// reached the threshold.
func (l *Loop) RunOnce(ctx context.Context) error {
	if l.pendingClear {
		if err := l.Store.Clear(); err != nil {
			return fmt.Errorf("clear consumed examples: %w", err)
		}
		l.pendingClear = false
		l.Logger.Info().Msg("cleared examples consumed by the previous training")
	}

	g := l.Driver.PlayGame(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	l.Stats.Games.Add(1)
	if !g.Completed {
		l.Stats.Aborted.Add(1)
	}

	all, err := l.Store.AppendAndPersist(g.Examples)
	if err != nil {
		return fmt.Errorf("persist examples: %w", err)
	}
	l.Stats.Examples.Add(int64(len(g.Examples)))
	l.Logger.Info().Str("game_id", g.GameID).Int("examples", len(g.Examples)).Int("total", len(all)).Msg("stored game")
	l.emit(Event{Kind: GamePlayed, Game: g, Total: len(all)})

	if l.Trainer == nil || len(all) < l.Threshold {
		return nil
	}

	var start *inference.Network
	if l.Network != nil {
		start = l.Network.Snapshot()
	}
	res, err := l.Trainer.Train(ctx, all, start)
	if err != nil {
		return fmt.Errorf("train on %d examples: %w", len(all), err)
	}
	if l.Network != nil {
		l.Network.Set(res.Network)
	}

	l.Stats.Trainings.Add(1)
	l.Logger.Info().Int("samples", res.Samples).Dur("took", res.Duration).Msg("trained")
	l.emit(Event{Kind: Trained, Total: len(all), Training: res})

	// The weights are already saved, so the examples are consumed even if
	// the clear fails. Retry it before the next game instead of training on
	// them twice.
	if err := l.Store.Clear(); err != nil {
		l.pendingClear = true
		return fmt.Errorf("clear store after training on %d examples: %w", len(all), err)
	}
	return nil
}

func (l *Loop) emit(e Event) {
	if l.OnEvent != nil {
		l.OnEvent(e)
	}
}
