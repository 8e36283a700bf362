// visualize.go - Console output for debugging self-play games.
package selfplay

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/brensch/settlers/executor/mcts"
	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/rules"
)

// PrintBoard writes the hex rows with their number tokens followed by every
// player's buildings and roads.
func PrintBoard(w io.Writer, b *game.Board, s *game.GameState) {
	var sb strings.Builder
	sb.WriteString("\n=== Board ===\n")
	for _, row := range game.Layout {
		indent := strings.Repeat("   ", 5-len(row))
		sb.WriteString(indent)
		for _, id := range row {
			if token, ok := game.Tokens[id]; ok {
				fmt.Fprintf(&sb, "%s:%-2d ", id, token)
			} else {
				fmt.Fprintf(&sb, "%s:-- ", id)
			}
		}
		sb.WriteString("\n")
	}

	for _, p := range game.Players {
		fmt.Fprintf(&sb, "Player %d:", p)
		for _, v := range s.Settlements[p] {
			pips, _, _ := rules.PipStrength(b, v)
			fmt.Fprintf(&sb, " S@%s(%d)", v, pips)
		}
		for _, v := range s.Cities[p] {
			pips, _, _ := rules.PipStrength(b, v)
			fmt.Fprintf(&sb, " C@%s(%d)", v, pips)
		}
		if n := len(s.Roads[p]); n > 0 {
			fmt.Fprintf(&sb, " roads=%d", n)
		}
		sb.WriteString("\n")
	}
	io.WriteString(w, sb.String())
}

// PrintDecision writes the root statistics of one search, most visited first.
func PrintDecision(w io.Writer, step Step, candidates []game.Move, res *mcts.Result) {
	children := slices.Clone(res.Children)
	slices.SortStableFunc(children, func(a, b mcts.ChildStats) int { return b.VisitCount - a.VisitCount })

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- player %d %s: %d candidates, chose %s ---\n", step.Player, step.Kind, len(candidates), res.Move.Key())
	for i, c := range children {
		if i == 5 {
			fmt.Fprintf(&sb, "  ... %d more\n", len(children)-i)
			break
		}
		fmt.Fprintf(&sb, "  %-24s N=%-4d Q=%+.3f P=%.3f pi=%.3f\n", c.Key, c.VisitCount, c.MeanValue, c.PriorProb, res.Policy[c.Key])
	}
	io.WriteString(w, sb.String())
}

func PrintOutcome(w io.Writer, g *Game) {
	var sb strings.Builder
	status := "complete"
	if !g.Completed {
		status = fmt.Sprintf("aborted: %v", g.AbortReason)
	}
	fmt.Fprintf(&sb, "=== Game %s %s ===\n", g.GameID, status)
	for _, p := range game.Players {
		fmt.Fprintf(&sb, "Player %d: strength=%d outcome=%+.0f\n", p, g.Strengths[p], g.Outcome[p])
	}
	io.WriteString(w, sb.String())
}
