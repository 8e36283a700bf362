// Package selfplay plays complete placement games with MCTS for every seat
// and records one Training Example per decision.
package selfplay

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brensch/settlers/executor/mcts"
	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/rules"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Step is one decision in the fixed placement order.
type Step struct {
	Player int
	Kind   game.MoveType
}

// Schedule is the placement order: each player places a settlement and a
// road, then in reverse order a city and a road.
func Schedule() []Step {
	steps := make([]Step, 0, 4*len(game.Players))
	for _, p := range game.Players {
		steps = append(steps, Step{p, game.Settlement}, Step{p, game.Road})
	}
	for i := len(game.Players) - 1; i >= 0; i-- {
		p := game.Players[i]
		steps = append(steps, Step{p, game.City}, Step{p, game.Road})
	}
	return steps
}

// Game is the result of one self-play game. Aborted games still carry their
// examples and a labelled outcome.
type Game struct {
	GameID      string
	Examples    []game.Example
	Final       *game.GameState
	Strengths   map[int]int
	Outcome     map[int]float64
	Completed   bool
	AbortReason error
	Duration    time.Duration
}

type Driver struct {
	Board     *game.Board
	Config    mcts.Config
	Evaluator mcts.Evaluator
	Logger    zerolog.Logger

	// Verbose prints the board and per-move statistics to Out.
	Verbose bool
	Out     io.Writer

	// Candidates generates legal moves; nil means rules.CandidateMoves.
	Candidates func(b *game.Board, s *game.GameState) []game.Move
	// Noise overrides the root noise source of every search.
	Noise func(n int, alpha float64) []float64
}

func (d *Driver) candidates(s *game.GameState) []game.Move {
	if d.Candidates != nil {
		return d.Candidates(d.Board, s)
	}
	return rules.CandidateMoves(d.Board, s)
}

// PlayGame runs the full schedule. It never returns nil; failures end the
// game early and are reported in AbortReason.
func (d *Driver) PlayGame(ctx context.Context) *Game {
	began := time.Now()
	g := &Game{GameID: uuid.NewString()}
	log := d.Logger.With().Str("game_id", g.GameID).Logger()

	search := &mcts.MCTS{Config: d.Config, Evaluator: d.Evaluator, Noise: d.Noise}
	coords := d.Board.Coordinates()
	state := game.NewGameState()

	g.Completed = true
	for seq, step := range Schedule() {
		state.CurrentPlayer = step.Player
		state.Phase = step.Kind

		candidates := d.candidates(state)
		if len(candidates) == 0 {
			g.abort(fmt.Errorf("%w: player %d %s", mcts.ErrNoCandidateMoves, step.Player, step.Kind))
			break
		}

		res, err := search.Search(ctx, state, step.Kind, candidates, coords)
		if err != nil {
			g.abort(fmt.Errorf("player %d %s: %w", step.Player, step.Kind, err))
			break
		}

		g.Examples = append(g.Examples, game.Example{
			GameID:   g.GameID,
			Seq:      seq,
			State:    *state.Clone(),
			MoveType: step.Kind,
			Policy:   res.Policy,
			Player:   step.Player,
		})

		if d.Verbose && d.Out != nil {
			PrintDecision(d.Out, step, candidates, res)
		}
		if err := state.Apply(res.Move); err != nil {
			g.abort(err)
			break
		}
		log.Debug().Int("player", step.Player).Stringer("move_type", step.Kind).Str("move", res.Move.Key()).Msg("placed")
	}

	g.Final = state
	g.Strengths = rules.PlayerStrengths(d.Board, state)
	g.Outcome = rules.Outcome(g.Strengths)
	BackfillValues(g.Examples, g.Outcome)
	g.Duration = time.Since(began)

	if d.Verbose && d.Out != nil {
		PrintBoard(d.Out, d.Board, state)
		PrintOutcome(d.Out, g)
	}
	if g.Completed {
		log.Info().Int("examples", len(g.Examples)).Dur("took", g.Duration).Msg("game complete")
	} else {
		log.Warn().Err(g.AbortReason).Int("examples", len(g.Examples)).Msg("game aborted")
	}
	return g
}

func (g *Game) abort(err error) {
	g.Completed = false
	g.AbortReason = err
}

// BackfillValues sets each example's Value to its player's outcome. Players
// without an outcome get 0.
func BackfillValues(examples []game.Example, outcome map[int]float64) {
	for i := range examples {
		examples[i].Value = outcome[examples[i].Player]
	}
}
