// Package inference provides the evaluators used by search: a pip heuristic,
// a learned policy/value network behind a hot-reloadable handle, and an ONNX
// Runtime backend.
package inference

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/rules"
)

// ErrFeatureExtraction is returned when a move cannot be resolved to a known
// vertex.
var ErrFeatureExtraction = errors.New("feature extraction failed")

// ResolveVertex returns the vertex a move is scored through. Building moves
// score their own vertex; road moves score the endpoint away from
// lastBuilding.
func ResolveVertex(moveType game.MoveType, move game.Move, coords game.CoordinateMap, lastBuilding string) (string, error) {
	if moveType.IsBuilding() {
		if move.Vertex == "" {
			return "", fmt.Errorf("%w: %s move without vertex", ErrFeatureExtraction, moveType)
		}
		return move.Vertex, nil
	}

	anchor, ok := coords[lastBuilding]
	if lastBuilding == "" || !ok {
		return "", fmt.Errorf("%w: last building %q is not a known vertex", ErrFeatureExtraction, lastBuilding)
	}
	other := move.Edge.A
	if other.Near(anchor) {
		other = move.Edge.B
	}

	labels := make([]string, 0, len(coords))
	for l := range coords {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		if coords[l].Near(other) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: no vertex at road endpoint (%.2f, %.2f)", ErrFeatureExtraction, other.X, other.Y)
}

// Heuristic scores a vertex by the pips of its neighbouring hexes. It needs
// no weights and is used until a trained network exists.
type Heuristic struct {
	Board *game.Board
}

// maxPips is three hexes showing a 6 or 8.
const maxPips = 15.0

func (h Heuristic) Evaluate(moveType game.MoveType, move game.Move, coords game.CoordinateMap, lastBuilding string) (float64, float64, error) {
	label, err := ResolveVertex(moveType, move, coords, lastBuilding)
	if err != nil {
		return 0, 0, err
	}
	pips, _, ok := rules.PipStrength(h.Board, label)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown vertex %s", ErrFeatureExtraction, label)
	}
	strength := float64(pips) / maxPips
	return 2*strength - 1, strength, nil
}

// Reloader is implemented by evaluators whose parameters can be refreshed
// from disk.
type Reloader interface {
	ReloadIfUpdated() (bool, error)
}

// NetworkEvaluator is a shared handle around a Network. Searches read through
// it concurrently while the watcher swaps in new weights.
type NetworkEvaluator struct {
	board       *game.Board
	weightsPath string
	fallback    Heuristic

	mu       sync.RWMutex
	net      *Network
	loadedAt time.Time
}

// NewNetworkEvaluator loads weights from weightsPath if the file exists.
// Without weights it falls back to the heuristic.
func NewNetworkEvaluator(board *game.Board, weightsPath string) (*NetworkEvaluator, error) {
	e := &NetworkEvaluator{
		board:       board,
		weightsPath: weightsPath,
		fallback:    Heuristic{Board: board},
	}
	if _, err := e.ReloadIfUpdated(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *NetworkEvaluator) Evaluate(moveType game.MoveType, move game.Move, coords game.CoordinateMap, lastBuilding string) (float64, float64, error) {
	label, err := ResolveVertex(moveType, move, coords, lastBuilding)
	if err != nil {
		return 0, 0, err
	}
	features, ok := rules.VertexFeatures(e.board, label)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown vertex %s", ErrFeatureExtraction, label)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.net == nil {
		return e.fallback.Evaluate(game.Settlement, game.Move{Vertex: label}, coords, lastBuilding)
	}
	v, p, err := e.net.Predict(features)
	if err != nil {
		return 0, 0, err
	}
	return float64(v), float64(p), nil
}

// ReloadIfUpdated loads the weights file when its modification time is newer
// than the last load. A missing file is not an error.
func (e *NetworkEvaluator) ReloadIfUpdated() (bool, error) {
	mod, ok, err := WeightsModTime(e.weightsPath)
	if err != nil || !ok {
		return false, err
	}

	e.mu.RLock()
	fresh := e.net != nil && !mod.After(e.loadedAt)
	e.mu.RUnlock()
	if fresh {
		return false, nil
	}

	net, loadedAt, err := LoadWeights(e.weightsPath)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	e.net = net
	e.loadedAt = loadedAt
	e.mu.Unlock()
	return true, nil
}

// Set replaces the network in place.
func (e *NetworkEvaluator) Set(net *Network) {
	e.mu.Lock()
	e.net = net
	e.loadedAt = time.Now()
	e.mu.Unlock()
}

// Snapshot returns a copy of the current network, or nil if none is loaded.
func (e *NetworkEvaluator) Snapshot() *Network {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.net == nil {
		return nil
	}
	return e.net.Clone()
}

func (e *NetworkEvaluator) LoadedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadedAt
}
