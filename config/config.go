// Package config holds the tunables shared by the daemon and the tools.
// Every flag takes its default from an environment variable so containers
// can be configured without arguments.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brensch/settlers/executor/mcts"
)

type Settings struct {
	// Search
	Simulations      int
	Cpuct            float64
	Tolerance        float64
	RootNoise        bool
	DirichletEpsilon float64
	DirichletAlpha   float64

	// Loop
	GameInterval      time.Duration
	TrainingThreshold int

	// Trainer
	Epochs       int
	BatchSize    int
	LearningRate float64
	HiddenSize   int

	// Files
	DataPath       string
	WeightsPath    string
	ReloadInterval time.Duration
	OnnxModel      string
	OnnxSessions   int

	LogLevel string
	LogJSON  bool
}

func Default() Settings {
	return Settings{
		Simulations:       50,
		Cpuct:             1.0,
		Tolerance:         1e-6,
		RootNoise:         false,
		DirichletEpsilon:  0.25,
		DirichletAlpha:    0.3,
		GameInterval:      time.Second,
		TrainingThreshold: 500,
		Epochs:            10,
		BatchSize:         32,
		LearningRate:      1e-3,
		HiddenSize:        128,
		DataPath:          "data/training_data.parquet",
		WeightsPath:       "models/weights.parquet",
		ReloadInterval:    10 * time.Second,
		OnnxSessions:      1,
		LogLevel:          "info",
	}
}

// RegisterFlags binds every setting to fs. Defaults come from d, overridden
// by SETTLERS_* environment variables.
func (s *Settings) RegisterFlags(fs *flag.FlagSet, d Settings) {
	fs.IntVar(&s.Simulations, "simulations", getEnvIntOrDefault("SETTLERS_SIMULATIONS", d.Simulations), "MCTS simulations per move")
	fs.Float64Var(&s.Cpuct, "cpuct", getEnvFloatOrDefault("SETTLERS_CPUCT", d.Cpuct), "PUCT exploration constant")
	fs.Float64Var(&s.Tolerance, "selection-tolerance", getEnvFloatOrDefault("SETTLERS_SELECTION_TOLERANCE", d.Tolerance), "Scores within this of the best are tied during selection")
	fs.BoolVar(&s.RootNoise, "root-noise", getEnvBoolOrDefault("SETTLERS_ROOT_NOISE", d.RootNoise), "Mix Dirichlet noise into root priors")
	fs.Float64Var(&s.DirichletEpsilon, "dirichlet-epsilon", getEnvFloatOrDefault("SETTLERS_DIRICHLET_EPSILON", d.DirichletEpsilon), "Weight of root noise")
	fs.Float64Var(&s.DirichletAlpha, "dirichlet-alpha", getEnvFloatOrDefault("SETTLERS_DIRICHLET_ALPHA", d.DirichletAlpha), "Dirichlet concentration")
	fs.DurationVar(&s.GameInterval, "game-interval", getEnvDurationOrDefault("SETTLERS_GAME_INTERVAL", d.GameInterval), "Pause between self-play games")
	fs.IntVar(&s.TrainingThreshold, "training-threshold", getEnvIntOrDefault("SETTLERS_TRAINING_THRESHOLD", d.TrainingThreshold), "Stored examples needed before training")
	fs.IntVar(&s.Epochs, "epochs", getEnvIntOrDefault("SETTLERS_EPOCHS", d.Epochs), "Training epochs")
	fs.IntVar(&s.BatchSize, "batch-size", getEnvIntOrDefault("SETTLERS_BATCH_SIZE", d.BatchSize), "Training mini-batch size")
	fs.Float64Var(&s.LearningRate, "learning-rate", getEnvFloatOrDefault("SETTLERS_LEARNING_RATE", d.LearningRate), "Adam learning rate")
	fs.IntVar(&s.HiddenSize, "hidden-size", getEnvIntOrDefault("SETTLERS_HIDDEN_SIZE", d.HiddenSize), "Hidden layer width for new networks")
	fs.StringVar(&s.DataPath, "data", getEnvOrDefault("SETTLERS_DATA", d.DataPath), "Training example parquet file")
	fs.StringVar(&s.WeightsPath, "weights", getEnvOrDefault("SETTLERS_WEIGHTS", d.WeightsPath), "Network weights parquet file")
	fs.DurationVar(&s.ReloadInterval, "reload-interval", getEnvDurationOrDefault("SETTLERS_RELOAD_INTERVAL", d.ReloadInterval), "How often to check for new weights")
	fs.StringVar(&s.OnnxModel, "onnx-model", getEnvOrDefault("SETTLERS_ONNX_MODEL", d.OnnxModel), "Evaluate with this ONNX model instead of the built-in network")
	fs.IntVar(&s.OnnxSessions, "onnx-sessions", getEnvIntOrDefault("SETTLERS_ONNX_SESSIONS", d.OnnxSessions), "ONNX Runtime sessions")
	fs.StringVar(&s.LogLevel, "log-level", getEnvOrDefault("SETTLERS_LOG_LEVEL", d.LogLevel), "debug, info, warn or error")
	fs.BoolVar(&s.LogJSON, "log-json", getEnvBoolOrDefault("SETTLERS_LOG_JSON", d.LogJSON), "Log JSON lines instead of console output")
}

func (s Settings) Validate() error {
	var errs []error
	if s.Simulations < 1 {
		errs = append(errs, fmt.Errorf("simulations must be at least 1, got %d", s.Simulations))
	}
	if s.TrainingThreshold < 1 {
		errs = append(errs, fmt.Errorf("training threshold must be at least 1, got %d", s.TrainingThreshold))
	}
	if s.Epochs < 1 {
		errs = append(errs, fmt.Errorf("epochs must be at least 1, got %d", s.Epochs))
	}
	if s.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1, got %d", s.BatchSize))
	}
	if s.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning rate must be positive, got %g", s.LearningRate))
	}
	if s.DirichletEpsilon < 0 || s.DirichletEpsilon > 1 {
		errs = append(errs, fmt.Errorf("dirichlet epsilon must be in [0,1], got %g", s.DirichletEpsilon))
	}
	if s.DirichletAlpha <= 0 {
		errs = append(errs, fmt.Errorf("dirichlet alpha must be positive, got %g", s.DirichletAlpha))
	}
	if s.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("selection tolerance must not be negative, got %g", s.Tolerance))
	}
	if s.GameInterval < 0 {
		errs = append(errs, fmt.Errorf("game interval must not be negative, got %s", s.GameInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", mcts.ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

// MCTS returns the search configuration.
func (s Settings) MCTS() mcts.Config {
	return mcts.Config{
		Cpuct:            s.Cpuct,
		Tolerance:        s.Tolerance,
		Simulations:      s.Simulations,
		InjectRootNoise:  s.RootNoise,
		DirichletEpsilon: s.DirichletEpsilon,
		DirichletAlpha:   s.DirichletAlpha,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
