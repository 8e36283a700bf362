// Package game defines the core types for the initial-placement game.
//
// These types represent the minimal state needed for move generation and
// evaluation. The state is designed to be cheaply clonable so every search
// node and training example can hold its own snapshot.
package game

import (
	"fmt"
	"slices"
)

// MoveType tags a placement phase.
type MoveType int8

const (
	Settlement MoveType = iota
	City
	Road
)

func (t MoveType) String() string {
	switch t {
	case Settlement:
		return "settlement"
	case City:
		return "city"
	case Road:
		return "road"
	default:
		return fmt.Sprintf("MoveType(%d)", int8(t))
	}
}

// IsBuilding reports whether the move places a building on a vertex.
func (t MoveType) IsBuilding() bool {
	return t == Settlement || t == City
}

func ParseMoveType(s string) (MoveType, error) {
	switch s {
	case "settlement":
		return Settlement, nil
	case "city":
		return City, nil
	case "road":
		return Road, nil
	}
	return 0, fmt.Errorf("unknown move type %q", s)
}

// Move is a candidate placement. Building moves carry a vertex label,
// road moves carry the edge and its canonical key.
type Move struct {
	Vertex  string
	Edge    Edge
	EdgeKey string
}

// Key returns the canonical key used for child lookup and policies.
func (m Move) Key() string {
	if m.EdgeKey != "" {
		return m.EdgeKey
	}
	return m.Vertex
}

func (m Move) IsRoad() bool { return m.EdgeKey != "" }

// Players in seating order.
var Players = []int{1, 2, 3}

// GameState is the authoritative placement state. Phase tags which kind of
// move is being decided; LastBuilding is the anchor for road moves.
type GameState struct {
	CurrentPlayer  int
	Phase          MoveType
	Settlements    map[int][]string
	Cities         map[int][]string
	Roads          map[int][]string
	LastSettlement string
	LastCity       string
	LastBuilding   string
}

func NewGameState() *GameState {
	s := &GameState{
		CurrentPlayer: 1,
		Phase:         Settlement,
		Settlements:   make(map[int][]string, len(Players)),
		Cities:        make(map[int][]string, len(Players)),
		Roads:         make(map[int][]string, len(Players)),
	}
	return s
}

func (s *GameState) PlaceSettlement(player int, vertex string) {
	s.Settlements[player] = append(s.Settlements[player], vertex)
	s.LastSettlement = vertex
	s.LastBuilding = vertex
}

func (s *GameState) PlaceCity(player int, vertex string) {
	s.Cities[player] = append(s.Cities[player], vertex)
	s.LastCity = vertex
	s.LastBuilding = vertex
}

func (s *GameState) PlaceRoad(player int, edgeKey string) {
	s.Roads[player] = append(s.Roads[player], edgeKey)
}

// Apply places m for the current player according to the current phase.
func (s *GameState) Apply(m Move) error {
	switch s.Phase {
	case Settlement:
		s.PlaceSettlement(s.CurrentPlayer, m.Vertex)
	case City:
		s.PlaceCity(s.CurrentPlayer, m.Vertex)
	case Road:
		if m.EdgeKey == "" {
			return fmt.Errorf("road move without edge key")
		}
		s.PlaceRoad(s.CurrentPlayer, m.EdgeKey)
	default:
		return fmt.Errorf("apply: unknown phase %v", s.Phase)
	}
	return nil
}

// OccupiedVertices returns every vertex holding a settlement or city, in
// player order.
func (s *GameState) OccupiedVertices() []string {
	var out []string
	for _, p := range s.players() {
		out = append(out, s.Settlements[p]...)
	}
	for _, p := range s.players() {
		out = append(out, s.Cities[p]...)
	}
	return out
}

func (s *GameState) UsedEdges() []string {
	var out []string
	for _, p := range s.players() {
		out = append(out, s.Roads[p]...)
	}
	return out
}

// Buildings returns the settlements and cities of one player.
func (s *GameState) Buildings(player int) []string {
	out := make([]string, 0, len(s.Settlements[player])+len(s.Cities[player]))
	out = append(out, s.Settlements[player]...)
	return append(out, s.Cities[player]...)
}

// players returns every player id present in the state, sorted.
func (s *GameState) players() []int {
	seen := make(map[int]struct{}, len(Players))
	ids := make([]int, 0, len(Players))
	for _, m := range []map[int][]string{s.Settlements, s.Cities, s.Roads} {
		for p := range m {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			ids = append(ids, p)
		}
	}
	slices.Sort(ids)
	return ids
}

// Clone performs a deep copy of the game state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	return &GameState{
		CurrentPlayer:  s.CurrentPlayer,
		Phase:          s.Phase,
		Settlements:    cloneLists(s.Settlements),
		Cities:         cloneLists(s.Cities),
		Roads:          cloneLists(s.Roads),
		LastSettlement: s.LastSettlement,
		LastCity:       s.LastCity,
		LastBuilding:   s.LastBuilding,
	}
}

func cloneLists(in map[int][]string) map[int][]string {
	out := make(map[int][]string, len(in))
	for p, l := range in {
		out[p] = slices.Clone(l)
	}
	return out
}
