// Command train runs one training pass over the stored examples and writes
// the resulting weights.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/brensch/settlers/config"
	"github.com/brensch/settlers/executor/train"
	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/logging"
	"github.com/brensch/settlers/store"
)

func main() {
	var s config.Settings
	s.RegisterFlags(flag.CommandLine, config.Default())
	clearAfter := flag.Bool("clear", false, "Empty the data file after a successful pass")
	flag.Parse()

	logger := logging.New(os.Stderr, s.LogLevel, s.LogJSON)
	if err := s.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(s.DataPath)
	examples, err := st.LoadAll()
	if err != nil {
		logger.Fatal().Err(err).Str("path", s.DataPath).Msg("load examples")
	}
	logger.Info().Int("examples", len(examples)).Str("path", s.DataPath).Msg("loaded")

	t := &train.Trainer{
		Board:        game.NewBoard(),
		Epochs:       s.Epochs,
		BatchSize:    s.BatchSize,
		LearningRate: float32(s.LearningRate),
		HiddenSize:   s.HiddenSize,
		WeightsPath:  s.WeightsPath,
		Logger:       logger,
	}
	res, err := t.Train(ctx, examples, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("training failed")
	}
	logger.Info().Int("samples", res.Samples).Dur("took", res.Duration).Str("path", s.WeightsPath).Msg("weights saved")

	if *clearAfter {
		if err := st.Clear(); err != nil {
			logger.Fatal().Err(err).Msg("clear examples")
		}
	}
}
