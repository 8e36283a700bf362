package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/settlers/config"
	"github.com/brensch/settlers/executor/inference"
	"github.com/brensch/settlers/executor/mcts"
	"github.com/brensch/settlers/executor/selfplay"
	"github.com/brensch/settlers/executor/train"
	"github.com/brensch/settlers/executor/training"
	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/logging"
	"github.com/brensch/settlers/store"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type instrumentedEvaluator struct {
	mcts.Evaluator
	c *counters
}

func (e *instrumentedEvaluator) Evaluate(mt game.MoveType, m game.Move, coords game.CoordinateMap, last string) (float64, float64, error) {
	e.c.evaluations.Add(1)
	return e.Evaluator.Evaluate(mt, m, coords, last)
}

type countingReloader struct {
	inference.Reloader
	c *counters
}

func (r *countingReloader) ReloadIfUpdated() (bool, error) {
	ok, err := r.Reloader.ReloadIfUpdated()
	if ok {
		r.c.reloads.Add(1)
	}
	return ok, err
}

// newTrainer returns nil when the evaluator runs an ONNX model: training
// writes parquet weights, which never reach an exported model, so that mode
// only collects examples.
func newTrainer(s config.Settings, board *game.Board, logger zerolog.Logger) *train.Trainer {
	if s.OnnxModel != "" {
		return nil
	}
	return &train.Trainer{
		Board:        board,
		Epochs:       s.Epochs,
		BatchSize:    s.BatchSize,
		LearningRate: float32(s.LearningRate),
		HiddenSize:   s.HiddenSize,
		WeightsPath:  s.WeightsPath,
		Logger:       logging.Component(logger, "train"),
	}
}

func main() {
	var s config.Settings
	s.RegisterFlags(flag.CommandLine, config.Default())
	tui := flag.Bool("tui", false, "Show a live status view; logs go to -log-file")
	logFile := flag.String("log-file", "executor.log", "Log destination while the TUI is active")
	flag.Parse()

	var logOut io.Writer = os.Stderr
	if *tui {
		// Redirect logs to file to avoid messing up TUI
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			errLogger := logging.New(os.Stderr, "info", false)
			errLogger.Fatal().Err(err).Msg("open log file")
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.New(logOut, s.LogLevel, s.LogJSON)

	if err := s.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	board := game.NewBoard()
	c := &counters{}

	var (
		evaluator mcts.Evaluator
		reloader  inference.Reloader
		network   *inference.NetworkEvaluator
	)
	if s.OnnxModel != "" {
		pool, err := inference.NewOnnxPool(board, s.OnnxModel, s.OnnxSessions, inference.OnnxClientConfig{})
		if err != nil {
			logger.Fatal().Err(err).Str("path", s.OnnxModel).Msg("create onnx pool")
		}
		defer pool.Close()
		evaluator, reloader = pool, pool
		c.runtime = pool
		logger.Warn().Str("onnx_model", s.OnnxModel).Msg("training disabled: trained weights cannot update an onnx model, collecting examples only")
	} else {
		var err error
		network, err = inference.NewNetworkEvaluator(board, s.WeightsPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", s.WeightsPath).Msg("load weights")
		}
		evaluator, reloader = network, network
		c.weights = network
	}

	events := make(chan training.Event, 64)
	loop := &training.Loop{
		Driver: &selfplay.Driver{
			Board:     board,
			Config:    s.MCTS(),
			Evaluator: &instrumentedEvaluator{Evaluator: evaluator, c: c},
			Logger:    logging.Component(logger, "selfplay"),
		},
		Store:     store.New(s.DataPath),
		Trainer:   newTrainer(s, board, logger),
		Threshold: s.TrainingThreshold,
		Interval:  s.GameInterval,
		Logger:    logging.Component(logger, "loop"),
		Network:   network,
		OnEvent: func(e training.Event) {
			select {
			case events <- e:
			default:
			}
		},
	}
	watcher := &inference.Watcher{
		Target:   &countingReloader{Reloader: reloader, c: c},
		Interval: s.ReloadInterval,
		Logger:   logging.Component(logger, "watcher"),
	}

	logger.Info().
		Int("simulations", s.Simulations).
		Int("threshold", s.TrainingThreshold).
		Str("data", s.DataPath).
		Str("weights", s.WeightsPath).
		Msg("starting self-play")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	if *tui {
		g.Go(func() error {
			p := tea.NewProgram(initialModel(&loop.Stats, c, events), tea.WithAltScreen(), tea.WithContext(gctx))
			_, err := p.Run()
			stop()
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	} else {
		g.Go(func() error { return statsLoop(gctx, logger, &loop.Stats, c) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("executor stopped")
		os.Exit(1)
	}
	logger.Info().Int64("games", loop.Stats.Games.Load()).Msg("shutdown complete")
}

func statsLoop(ctx context.Context, logger zerolog.Logger, stats *training.Stats, c *counters) error {
	startTime := time.Now()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			secs := time.Since(startTime).Seconds()
			ev := logger.Info().
				Int64("games", stats.Games.Load()).
				Int64("trainings", stats.Trainings.Load()).
				Int64("failures", stats.Failures.Load()).
				Int64("reloads", c.reloads.Load()).
				Float64("evals_per_sec", float64(c.evaluations.Load())/secs)
			if c.runtime != nil {
				rs := c.runtime.Stats()
				ev = ev.Int64("batches", rs.TotalBatches).
					Float64("avg_batch", rs.AvgBatchSize).
					Int("queue", rs.QueueLen)
			}
			if c.weights != nil {
				if at := c.weights.LoadedAt(); !at.IsZero() {
					ev = ev.Time("weights_loaded_at", at)
				}
			}
			ev.Msg("stats")
		}
	}
}
