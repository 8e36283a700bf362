// Package train fits the policy/value network to self-play examples.
package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/brensch/settlers/executor/inference"
	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/rules"
	"github.com/rs/zerolog"
)

var ErrNoSamples = errors.New("no trainable examples")

// Sample is one supervised target built from a settlement decision.
type Sample struct {
	Features []float32
	Value    float32
	Policy   float32
}

// fallbackFeatures is used when the chosen vertex is not on the board.
var fallbackFeatures = []float32{0, 0, 0, 0, 1}

// BuildSamples keeps settlement examples only. Each one contributes the
// features of its most visited vertex, its outcome and that vertex's policy
// share.
func BuildSamples(b *game.Board, examples []game.Example) []Sample {
	out := make([]Sample, 0, len(examples))
	for _, ex := range examples {
		if ex.MoveType != game.Settlement {
			continue
		}
		label, p, ok := ex.BestMove()
		if !ok {
			continue
		}
		features, found := rules.VertexFeatures(b, label)
		if !found {
			features = fallbackFeatures
		}
		out = append(out, Sample{Features: features, Value: float32(ex.Value), Policy: float32(p)})
	}
	return out
}

type Trainer struct {
	Board        *game.Board
	Epochs       int
	BatchSize    int
	LearningRate float32
	HiddenSize   int
	// WeightsPath is written after every epoch. Empty disables saving.
	WeightsPath string
	Logger      zerolog.Logger
	Rand        *rand.Rand
}

type Result struct {
	Network   *inference.Network
	Samples   int
	EpochLoss []float64
	Duration  time.Duration
}

func (t *Trainer) rng() *rand.Rand {
	if t.Rand == nil {
		t.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return t.Rand
}

// initial returns start if given, else the network on disk, else a freshly
// initialised one.
func (t *Trainer) initial(start *inference.Network) (*inference.Network, error) {
	if start != nil {
		return start.Clone(), nil
	}
	if t.WeightsPath != "" {
		_, ok, err := inference.WeightsModTime(t.WeightsPath)
		if err != nil {
			return nil, err
		}
		if ok {
			n, _, err := inference.LoadWeights(t.WeightsPath)
			if err != nil {
				return nil, err
			}
			return n, nil
		}
	}
	hidden := t.HiddenSize
	if hidden <= 0 {
		hidden = inference.HiddenSize
	}
	return inference.NewNetwork(inference.InputSize, hidden, t.rng()), nil
}

// Train runs Epochs passes of shuffled mini-batch Adam over the examples.
func (t *Trainer) Train(ctx context.Context, examples []game.Example, start *inference.Network) (*Result, error) {
	if t.Epochs < 1 || t.BatchSize < 1 || t.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid trainer settings: epochs=%d batch=%d lr=%g", t.Epochs, t.BatchSize, t.LearningRate)
	}
	samples := BuildSamples(t.Board, examples)
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	net, err := t.initial(start)
	if err != nil {
		return nil, fmt.Errorf("initial weights: %w", err)
	}

	began := time.Now()
	grads := inference.NewGradients(net)
	params, gradParams := flatten(net), flatten(grads.Network)
	opt := NewAdam(t.LearningRate, params)
	rng := t.rng()
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	res := &Result{Samples: len(samples)}
	for epoch := 1; epoch <= t.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var total float64
		for lo := 0; lo < len(order); lo += t.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hi := min(lo+t.BatchSize, len(order))
			grads.Zero()
			for _, idx := range order[lo:hi] {
				s := samples[idx]
				total += float64(net.Accumulate(s.Features, s.Value, s.Policy, grads))
			}
			grads.Scale(1 / float32(hi-lo))
			opt.Step(params, gradParams)
		}

		loss := total / float64(len(samples))
		res.EpochLoss = append(res.EpochLoss, loss)
		t.Logger.Info().Int("epoch", epoch).Int("epochs", t.Epochs).Float64("loss", loss).Msg("epoch complete")

		if t.WeightsPath != "" {
			if err := inference.SaveWeights(t.WeightsPath, net); err != nil {
				return nil, err
			}
		}
	}

	res.Network = net
	res.Duration = time.Since(began)
	return res, nil
}

func flatten(n *inference.Network) [][]float32 {
	var out [][]float32
	for _, d := range n.Layers() {
		out = append(out, d.W.Data, d.B.Data)
	}
	return out
}
