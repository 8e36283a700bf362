package store

import (
	"fmt"
	"maps"
	"slices"

	"github.com/brensch/settlers/game"
)

const exampleSchema = "settlers_example_v1"

// ExampleRow is one Training Example as stored on disk. The state snapshot is
// flattened into Pieces; the policy into parallel key/probability lists.
type ExampleRow struct {
	GameID   string  `parquet:"game_id,dict"`
	Seq      int32   `parquet:"seq"`
	MoveType string  `parquet:"move_type,dict"`
	Player   int32   `parquet:"player"`
	Value    float64 `parquet:"value"`

	CurrentPlayer  int32      `parquet:"current_player"`
	Phase          string     `parquet:"phase,dict"`
	LastSettlement string     `parquet:"last_settlement,dict"`
	LastCity       string     `parquet:"last_city,dict"`
	LastBuilding   string     `parquet:"last_building,dict"`
	Pieces         []PieceRow `parquet:"pieces"`

	PolicyKeys  []string  `parquet:"policy_keys"`
	PolicyProbs []float64 `parquet:"policy_probs"`
}

type PieceRow struct {
	Player int32  `parquet:"player"`
	Kind   string `parquet:"kind,dict"`
	Key    string `parquet:"key"`
}

func toRow(ex game.Example) ExampleRow {
	s := ex.State
	row := ExampleRow{
		GameID:         ex.GameID,
		Seq:            int32(ex.Seq),
		MoveType:       ex.MoveType.String(),
		Player:         int32(ex.Player),
		Value:          ex.Value,
		CurrentPlayer:  int32(s.CurrentPlayer),
		Phase:          s.Phase.String(),
		LastSettlement: s.LastSettlement,
		LastCity:       s.LastCity,
		LastBuilding:   s.LastBuilding,
	}
	for _, kind := range []game.MoveType{game.Settlement, game.City, game.Road} {
		lists := pieceLists(&s, kind)
		for _, p := range slices.Sorted(maps.Keys(lists)) {
			for _, key := range lists[p] {
				row.Pieces = append(row.Pieces, PieceRow{Player: int32(p), Kind: kind.String(), Key: key})
			}
		}
	}
	row.PolicyKeys = slices.Sorted(maps.Keys(ex.Policy))
	row.PolicyProbs = make([]float64, len(row.PolicyKeys))
	for i, k := range row.PolicyKeys {
		row.PolicyProbs[i] = ex.Policy[k]
	}
	return row
}

func fromRow(row ExampleRow) (game.Example, error) {
	mt, err := game.ParseMoveType(row.MoveType)
	if err != nil {
		return game.Example{}, err
	}
	phase, err := game.ParseMoveType(row.Phase)
	if err != nil {
		return game.Example{}, err
	}
	if len(row.PolicyKeys) != len(row.PolicyProbs) {
		return game.Example{}, fmt.Errorf("policy has %d keys and %d probabilities", len(row.PolicyKeys), len(row.PolicyProbs))
	}

	s := game.NewGameState()
	s.CurrentPlayer = int(row.CurrentPlayer)
	s.Phase = phase
	for _, p := range row.Pieces {
		kind, err := game.ParseMoveType(p.Kind)
		if err != nil {
			return game.Example{}, err
		}
		lists := pieceLists(s, kind)
		lists[int(p.Player)] = append(lists[int(p.Player)], p.Key)
	}
	s.LastSettlement = row.LastSettlement
	s.LastCity = row.LastCity
	s.LastBuilding = row.LastBuilding

	policy := make(map[string]float64, len(row.PolicyKeys))
	for i, k := range row.PolicyKeys {
		policy[k] = row.PolicyProbs[i]
	}
	return game.Example{
		GameID:   row.GameID,
		Seq:      int(row.Seq),
		State:    *s,
		MoveType: mt,
		Policy:   policy,
		Player:   int(row.Player),
		Value:    row.Value,
	}, nil
}

func pieceLists(s *game.GameState, kind game.MoveType) map[int][]string {
	switch kind {
	case game.City:
		return s.Cities
	case game.Road:
		return s.Roads
	default:
		return s.Settlements
	}
}
