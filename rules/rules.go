// Package rules implements placement legality and board scoring for the
// initial-placement draft.
//
// Only the rules needed for self-play are modeled: the distance rule for
// buildings, road adjacency to the last building, and pip strength.
package rules

import (
	"fmt"
	"slices"

	"github.com/brensch/settlers/game"
)

// FeatureLength is the size of the vertex feature vector.
const FeatureLength = 5

// EdgeKey returns the direction-independent key of the edge between a and b.
func EdgeKey(a, b game.Point) string {
	if a.X < b.X || (a.X == b.X && a.Y <= b.Y) {
		return fmt.Sprintf("%.2f-%.2f_%.2f-%.2f", a.X, a.Y, b.X, b.Y)
	}
	return fmt.Sprintf("%.2f-%.2f_%.2f-%.2f", b.X, b.Y, a.X, a.Y)
}

// AvailableBuildingMoves returns the labels of vertices that are free and at
// least one side length (plus margin) away from every occupied vertex.
// Unknown labels in occupied are ignored.
func AvailableBuildingMoves(b *game.Board, occupied []string) []string {
	taken := make([]game.Point, 0, len(occupied))
	for _, label := range occupied {
		if v, ok := b.Vertex(label); ok {
			taken = append(taken, v.Point)
		}
	}

	out := make([]string, 0, len(b.Vertices))
	for _, v := range b.Vertices {
		if slices.Contains(occupied, v.Label) {
			continue
		}
		tooClose := false
		for _, p := range taken {
			if v.Point.Dist(p) < game.SideLength+game.MarginOfError {
				tooClose = true
				break
			}
		}
		if !tooClose {
			out = append(out, v.Label)
		}
	}
	return out
}

// AvailableRoadMoves returns the edges touching lastBuilding whose keys are
// not in used. An unknown lastBuilding yields no moves.
func AvailableRoadMoves(b *game.Board, lastBuilding string, used []string) []game.Move {
	v, ok := b.Vertex(lastBuilding)
	if !ok {
		return nil
	}
	var out []game.Move
	for _, e := range b.Edges {
		if !e.Touches(v.Point) {
			continue
		}
		key := EdgeKey(e.A, e.B)
		if slices.Contains(used, key) {
			continue
		}
		out = append(out, game.Move{Edge: e, EdgeKey: key})
	}
	return out
}

// CandidateMoves returns the legal moves for the state's current phase.
func CandidateMoves(b *game.Board, s *game.GameState) []game.Move {
	if s.Phase == game.Road {
		return AvailableRoadMoves(b, s.LastBuilding, s.UsedEdges())
	}
	labels := AvailableBuildingMoves(b, s.OccupiedVertices())
	out := make([]game.Move, len(labels))
	for i, l := range labels {
		out[i] = game.Move{Vertex: l}
	}
	return out
}

// HexPips returns the pip count of a hex, 0 for the desert.
func HexPips(hexID string) int {
	token, ok := game.Tokens[hexID]
	if !ok {
		return 0
	}
	return game.Pips[token]
}

// PipStrength sums the pips of every producing hex touching the vertex and
// returns how many producing hexes there are.
func PipStrength(b *game.Board, label string) (pips, hexes int, ok bool) {
	v, ok := b.Vertex(label)
	if !ok {
		return 0, 0, false
	}
	for _, h := range v.Hexes {
		if _, producing := game.Tokens[h]; !producing {
			continue
		}
		pips += HexPips(h)
		hexes++
	}
	return pips, hexes, true
}

// VertexFeatures returns the network input for a vertex:
// normalized pips, x, y, normalized hex count and a bias term.
func VertexFeatures(b *game.Board, label string) ([]float32, bool) {
	v, found := b.Vertex(label)
	if !found {
		return nil, false
	}
	pips, hexes, _ := PipStrength(b, label)
	norm := 0.0
	if hexes > 0 {
		norm = float64(pips) / float64(hexes*5)
	}
	return []float32{
		float32(norm),
		float32(v.X / game.BoardWidth),
		float32(v.Y / 100.0),
		float32(float64(hexes) / 3.0),
		1,
	}, true
}

// PlayerStrengths sums pip strength over every settlement and city of each
// player. Players without buildings are absent from the result.
func PlayerStrengths(b *game.Board, s *game.GameState) map[int]int {
	out := make(map[int]int)
	for _, p := range game.Players {
		buildings := s.Buildings(p)
		if len(buildings) == 0 {
			continue
		}
		total := 0
		for _, label := range buildings {
			pips, _, _ := PipStrength(b, label)
			total += pips
		}
		out[p] = total
	}
	return out
}

// Outcome labels every player at the maximum strength +1 and everyone else -1.
// Ties at the top produce several winners.
func Outcome(strengths map[int]int) map[int]float64 {
	if len(strengths) == 0 {
		return map[int]float64{}
	}
	best := 0
	first := true
	for _, v := range strengths {
		if first || v > best {
			best = v
			first = false
		}
	}
	out := make(map[int]float64, len(strengths))
	for p, v := range strengths {
		if v == best {
			out[p] = 1
		} else {
			out[p] = -1
		}
	}
	return out
}
