package mcts

import (
	"github.com/brensch/settlers/game"
)

// NodeID indexes a node inside its Tree.
type NodeID int

// NoParent marks the root.
const NoParent NodeID = -1

// Node represents a candidate move in the search tree
type Node struct {
	State    *game.GameState
	MoveType game.MoveType
	Move     *game.Move
	Parent   NodeID

	VisitCount int
	ValueSum   float64
	MeanValue  float64
	PriorProb  float64

	children map[string]NodeID
	order    []string
}

// Tree is an arena holding every node of one search. It is discarded after
// the search returns.
type Tree struct {
	nodes []Node
}

func newTree() *Tree {
	return &Tree{nodes: make([]Node, 0, 64)}
}

// newNode appends a node with zeroed statistics.
func (t *Tree) newNode(state *game.GameState, move *game.Move, parent NodeID, moveType game.MoveType) NodeID {
	t.nodes = append(t.nodes, Node{
		State:    state,
		MoveType: moveType,
		Move:     move,
		Parent:   parent,
	})
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

func (t *Tree) Len() int { return len(t.nodes) }

func (t *Tree) IsLeaf(id NodeID) bool {
	return len(t.nodes[id].children) == 0
}

// Children returns child ids in insertion order.
func (t *Tree) Children(id NodeID) []NodeID {
	n := &t.nodes[id]
	out := make([]NodeID, len(n.order))
	for i, k := range n.order {
		out[i] = n.children[k]
	}
	return out
}

func (t *Tree) Child(id NodeID, key string) (NodeID, bool) {
	c, ok := t.nodes[id].children[key]
	return c, ok
}

func (t *Tree) addChild(parent NodeID, key string, child NodeID) {
	n := &t.nodes[parent]
	if n.children == nil {
		n.children = make(map[string]NodeID)
	}
	n.children[key] = child
	n.order = append(n.order, key)
}

// Config holds MCTS configuration
type Config struct {
	Cpuct       float64
	Tolerance   float64
	Simulations int

	// InjectRootNoise mixes Dirichlet noise into the root priors once, right
	// after the root is expanded.
	InjectRootNoise  bool
	DirichletEpsilon float64
	DirichletAlpha   float64
}

func DefaultConfig() Config {
	return Config{
		Cpuct:            1.0,
		Tolerance:        1e-6,
		Simulations:      50,
		DirichletEpsilon: 0.25,
		DirichletAlpha:   0.3,
	}
}

// Evaluator scores a candidate move. Value is in [-1,1], prior in [0,1].
// lastBuilding is the vertex label that road moves are anchored to.
type Evaluator interface {
	Evaluate(moveType game.MoveType, move game.Move, coords game.CoordinateMap, lastBuilding string) (value, prior float64, err error)
}

// MCTS holds the search context
type MCTS struct {
	Config    Config
	Evaluator Evaluator
	// Noise draws one sample of length n from a symmetric Dirichlet
	// distribution. Nil uses DirichletNoise.
	Noise func(n int, alpha float64) []float64
}
