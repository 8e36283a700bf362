package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brensch/settlers/config"
	"github.com/brensch/settlers/executor/inference"
	"github.com/brensch/settlers/executor/mcts"
	"github.com/brensch/settlers/executor/selfplay"
	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/logging"
	"github.com/brensch/settlers/store"
)

func main() {
	var s config.Settings
	s.RegisterFlags(flag.CommandLine, config.Default())
	heuristic := flag.Bool("heuristic", false, "Evaluate with pip counts instead of the network")
	save := flag.Bool("save", false, "Append the game's examples to the data file")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	flag.Parse()

	logger := logging.New(os.Stderr, s.LogLevel, s.LogJSON)
	if err := s.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	board := game.NewBoard()
	var eval mcts.Evaluator = inference.Heuristic{Board: board}
	switch {
	case *heuristic:
	case s.OnnxModel != "":
		pool, err := inference.NewOnnxPool(board, s.OnnxModel, 1, inference.OnnxClientConfig{})
		if err != nil {
			logger.Fatal().Err(err).Str("path", s.OnnxModel).Msg("load onnx model")
		}
		defer pool.Close()
		eval = pool
	default:
		network, err := inference.NewNetworkEvaluator(board, s.WeightsPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", s.WeightsPath).Msg("load weights")
		}
		if network.Snapshot() == nil {
			logger.Warn().Str("path", s.WeightsPath).Msg("no weights yet, using pip heuristic")
		}
		eval = network
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger.Info().Int("simulations", s.Simulations).Float64("cpuct", s.Cpuct).Msg("playing debug game")
	d := &selfplay.Driver{
		Board:     board,
		Config:    s.MCTS(),
		Evaluator: eval,
		Logger:    logger,
		Verbose:   true,
		Out:       os.Stdout,
	}
	g := d.PlayGame(ctx)

	if *save {
		all, err := store.New(s.DataPath).AppendAndPersist(g.Examples)
		if err != nil {
			logger.Fatal().Err(err).Str("path", s.DataPath).Msg("save examples")
		}
		logger.Info().Int("examples", len(g.Examples)).Int("total", len(all)).Str("path", s.DataPath).Msg("saved")
	}

	fmt.Printf("\nGame %s took %s\n", g.GameID, g.Duration.Round(time.Millisecond))
	if !g.Completed {
		os.Exit(1)
	}
}
