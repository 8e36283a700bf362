package config

import (
	"flag"
	"testing"
	"time"

	"github.com/brensch/settlers/executor/mcts"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) Settings {
	t.Helper()
	var s Settings
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	s.RegisterFlags(fs, Default())
	require.NoError(t, fs.Parse(args))
	return s
}

func TestDefaults(t *testing.T) {
	s := parse(t)
	require.Equal(t, Default(), s)
	require.NoError(t, s.Validate())

	m := s.MCTS()
	require.Equal(t, mcts.DefaultConfig().Simulations, m.Simulations)
	require.Equal(t, 1.0, m.Cpuct)
	require.False(t, m.InjectRootNoise)
}

func TestEnvOverridesDefault(t *testing.T) {
	t.Setenv("SETTLERS_SIMULATIONS", "7")
	t.Setenv("SETTLERS_GAME_INTERVAL", "250ms")
	t.Setenv("SETTLERS_ROOT_NOISE", "yes")
	t.Setenv("SETTLERS_LEARNING_RATE", "0.01")
	t.Setenv("SETTLERS_EPOCHS", "not-a-number")

	s := parse(t)
	require.Equal(t, 7, s.Simulations)
	require.Equal(t, 250*time.Millisecond, s.GameInterval)
	require.True(t, s.RootNoise)
	require.Equal(t, 0.01, s.LearningRate)
	require.Equal(t, 10, s.Epochs, "unparseable values fall back to the default")
}

func TestFlagOverridesEnv(t *testing.T) {
	t.Setenv("SETTLERS_SIMULATIONS", "7")
	s := parse(t, "-simulations", "3", "-weights", "w.parquet")
	require.Equal(t, 3, s.Simulations)
	require.Equal(t, "w.parquet", s.WeightsPath)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Settings){
		"zero simulations": func(s *Settings) { s.Simulations = 0 },
		"zero threshold":   func(s *Settings) { s.TrainingThreshold = 0 },
		"zero epochs":      func(s *Settings) { s.Epochs = 0 },
		"zero batch":       func(s *Settings) { s.BatchSize = 0 },
		"negative lr":      func(s *Settings) { s.LearningRate = -1 },
		"epsilon above 1":  func(s *Settings) { s.DirichletEpsilon = 1.5 },
		"zero alpha":       func(s *Settings) { s.DirichletAlpha = 0 },
		"negative tol":     func(s *Settings) { s.Tolerance = -1e-3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := Default()
			mutate(&s)
			require.ErrorIs(t, s.Validate(), mcts.ErrInvalidConfiguration)
		})
	}
}
