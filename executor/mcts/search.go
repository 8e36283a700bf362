package mcts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/brensch/settlers/game"
	"gonum.org/v1/gonum/stat/distmv"
)

var (
	ErrNoCandidateMoves     = errors.New("no candidate moves")
	ErrEvaluation           = errors.New("evaluation failed")
	ErrInvalidConfiguration = errors.New("invalid search configuration")
)

// ChildStats summarizes one root child after search.
type ChildStats struct {
	Key        string
	Move       game.Move
	VisitCount int
	MeanValue  float64
	PriorProb  float64
}

// Result is the outcome of one search: the most visited move and the
// visit-count policy over all root children.
type Result struct {
	Move     game.Move
	Policy   map[string]float64
	Children []ChildStats
}

func (c Config) Validate() error {
	if c.Simulations < 1 {
		return fmt.Errorf("%w: simulations must be >= 1, got %d", ErrInvalidConfiguration, c.Simulations)
	}
	if c.Cpuct < 0 || math.IsNaN(c.Cpuct) {
		return fmt.Errorf("%w: cpuct must be >= 0, got %v", ErrInvalidConfiguration, c.Cpuct)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must be >= 0, got %v", ErrInvalidConfiguration, c.Tolerance)
	}
	if c.InjectRootNoise {
		if c.DirichletEpsilon < 0 || c.DirichletEpsilon > 1 {
			return fmt.Errorf("%w: dirichlet epsilon must be in [0,1], got %v", ErrInvalidConfiguration, c.DirichletEpsilon)
		}
		if c.DirichletAlpha <= 0 {
			return fmt.Errorf("%w: dirichlet alpha must be > 0, got %v", ErrInvalidConfiguration, c.DirichletAlpha)
		}
	}
	return nil
}

// Search runs the MCTS simulations for one decision and returns the chosen
// move with its policy. The tree is discarded afterwards.
func (m *MCTS) Search(ctx context.Context, state *game.GameState, moveType game.MoveType, candidates []game.Move, coords game.CoordinateMap) (*Result, error) {
	tree, root, err := m.run(ctx, state, moveType, candidates, coords)
	if err != nil {
		return nil, err
	}
	return summarize(tree, root), nil
}

func (m *MCTS) run(ctx context.Context, state *game.GameState, moveType game.MoveType, candidates []game.Move, coords game.CoordinateMap) (*Tree, NodeID, error) {
	if err := m.Config.Validate(); err != nil {
		return nil, NoParent, err
	}
	if m.Evaluator == nil {
		return nil, NoParent, fmt.Errorf("%w: no evaluator", ErrInvalidConfiguration)
	}
	if len(candidates) == 0 {
		return nil, NoParent, ErrNoCandidateMoves
	}

	tree := newTree()
	root := tree.newNode(state, nil, NoParent, moveType)
	if err := m.expand(tree, root, candidates, coords); err != nil {
		return nil, NoParent, err
	}
	if m.Config.InjectRootNoise {
		m.injectNoise(tree, root)
	}

	for i := 0; i < m.Config.Simulations; i++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, NoParent, ctx.Err()
			default:
			}
		}

		// Selection
		node := root
		for !tree.IsLeaf(node) {
			node = selectChild(tree, node, m.Config.Cpuct, m.Config.Tolerance)
		}

		// Expansion
		if tree.Node(node).VisitCount > 0 {
			if err := m.expand(tree, node, candidates, coords); err != nil {
				return nil, NoParent, err
			}
		}

		// Evaluation
		value, err := m.rollout(tree, node, coords)
		if err != nil {
			return nil, NoParent, err
		}

		backpropagate(tree, node, value)
	}
	return tree, root, nil
}

// expand adds a child for every candidate not already present. The
// evaluator's value is ignored here; only the prior is kept.
func (m *MCTS) expand(tree *Tree, id NodeID, candidates []game.Move, coords game.CoordinateMap) error {
	for _, mv := range candidates {
		key := mv.Key()
		if _, ok := tree.Child(id, key); ok {
			continue
		}
		n := tree.Node(id)
		state, moveType := n.State, n.MoveType
		_, prior, err := m.Evaluator.Evaluate(moveType, mv, coords, lastBuilding(state))
		if err != nil {
			return fmt.Errorf("%w: expand %s %s: %w", ErrEvaluation, moveType, key, err)
		}
		move := mv
		child := tree.newNode(state, &move, id, moveType)
		tree.Node(child).PriorProb = prior
		tree.addChild(id, key, child)
	}
	return nil
}

// DirichletNoise samples Dir(alpha, ..., alpha) of dimension n.
func DirichletNoise(n int, alpha float64) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = alpha
	}
	return distmv.NewDirichlet(a, nil).Rand(nil)
}

// injectNoise mixes a single Dirichlet draw into the priors of the root's
// children: P' = (1-eps)*P + eps*noise.
func (m *MCTS) injectNoise(tree *Tree, root NodeID) {
	children := tree.Children(root)
	if len(children) == 0 {
		return
	}
	draw := m.Noise
	if draw == nil {
		draw = DirichletNoise
	}
	noise := draw(len(children), m.Config.DirichletAlpha)

	eps := m.Config.DirichletEpsilon
	for i, c := range children {
		n := tree.Node(c)
		n.PriorProb = (1-eps)*n.PriorProb + eps*noise[i]
	}
}

// selectChild picks the child with the highest PUCT score.
// Scores within tol of the best are treated as ties and resolved by fewest
// visits, then highest prior.
func selectChild(tree *Tree, id NodeID, cpuct, tol float64) NodeID {
	parent := tree.Node(id)
	sqrtN := math.Sqrt(float64(parent.VisitCount))

	bestScore := math.Inf(-1)
	var best []NodeID
	for _, c := range tree.Children(id) {
		child := tree.Node(c)
		// U(s,a) = C_puct * P(s,a) * sqrt(N(s)) / (1 + N(s,a))
		u := cpuct * child.PriorProb * sqrtN / (1 + float64(child.VisitCount))
		score := child.MeanValue + u
		if score > bestScore+tol {
			bestScore = score
			best = append(best[:0], c)
		} else if math.Abs(score-bestScore) <= tol {
			best = append(best, c)
		}
	}
	if len(best) == 1 {
		return best[0]
	}
	slices.SortStableFunc(best, func(a, b NodeID) int {
		na, nb := tree.Node(a), tree.Node(b)
		if na.VisitCount != nb.VisitCount {
			return na.VisitCount - nb.VisitCount
		}
		switch {
		case na.PriorProb > nb.PriorProb:
			return -1
		case na.PriorProb < nb.PriorProb:
			return 1
		}
		return 0
	})
	return best[0]
}

// rollout is a one-ply evaluation of the leaf's own move. Road moves are
// scored through the vertex they lead to, which the evaluator resolves from
// the last building.
func (m *MCTS) rollout(tree *Tree, id NodeID, coords game.CoordinateMap) (float64, error) {
	n := tree.Node(id)
	if n.Move == nil {
		return 0, nil
	}
	value, _, err := m.Evaluator.Evaluate(n.MoveType, *n.Move, coords, lastBuilding(n.State))
	if err != nil {
		return 0, fmt.Errorf("%w: rollout %s %s: %w", ErrEvaluation, n.MoveType, n.Move.Key(), err)
	}
	return value, nil
}

// backpropagate adds value to every node from id up to the root. The value
// is not negated between levels.
func backpropagate(tree *Tree, id NodeID, value float64) {
	for id != NoParent {
		n := tree.Node(id)
		n.VisitCount++
		n.ValueSum += value
		n.MeanValue = n.ValueSum / float64(n.VisitCount)
		id = n.Parent
	}
}

func summarize(tree *Tree, root NodeID) *Result {
	children := tree.Children(root)
	total := 0
	for _, c := range children {
		total += tree.Node(c).VisitCount
	}

	res := &Result{
		Policy:   make(map[string]float64, len(children)),
		Children: make([]ChildStats, 0, len(children)),
	}
	bestN := -1
	for _, c := range children {
		n := tree.Node(c)
		key := n.Move.Key()
		res.Policy[key] = float64(n.VisitCount) / float64(total)
		res.Children = append(res.Children, ChildStats{
			Key:        key,
			Move:       *n.Move,
			VisitCount: n.VisitCount,
			MeanValue:  n.MeanValue,
			PriorProb:  n.PriorProb,
		})
		if n.VisitCount > bestN {
			bestN = n.VisitCount
			res.Move = *n.Move
		}
	}
	return res
}

func lastBuilding(s *game.GameState) string {
	if s == nil {
		return ""
	}
	return s.LastBuilding
}
