package rules

import (
	"testing"

	"github.com/brensch/settlers/game"
	"github.com/stretchr/testify/require"
)

func TestEdgeKeyIsDirectionless(t *testing.T) {
	a := game.Point{X: 33.3333, Y: 11.5}
	b := game.Point{X: 25, Y: 16.3}
	require.Equal(t, EdgeKey(a, b), EdgeKey(b, a))
	require.Equal(t, "25.00-16.30_33.33-11.50", EdgeKey(a, b))
}

func TestAvailableBuildingMoves(t *testing.T) {
	b := game.NewBoard()

	t.Run("empty board", func(t *testing.T) {
		require.Len(t, AvailableBuildingMoves(b, nil), 54)
	})

	t.Run("coastal vertex blocks two neighbours", func(t *testing.T) {
		got := AvailableBuildingMoves(b, []string{"V01"})
		require.Len(t, got, 51)
		require.NotContains(t, got, "V01")
		require.NotContains(t, got, "V02")
		require.NotContains(t, got, "V06")
		require.Contains(t, got, "V03")
	})

	t.Run("inland vertex blocks three neighbours", func(t *testing.T) {
		got := AvailableBuildingMoves(b, []string{"V04"})
		require.Len(t, got, 50)
	})

	t.Run("unknown labels are ignored", func(t *testing.T) {
		require.Len(t, AvailableBuildingMoves(b, []string{"nope"}), 54)
	})

	t.Run("deterministic", func(t *testing.T) {
		occ := []string{"V04", "V20", "V41"}
		require.Equal(t, AvailableBuildingMoves(b, occ), AvailableBuildingMoves(b, occ))
	})
}

func TestAvailableRoadMoves(t *testing.T) {
	b := game.NewBoard()

	moves := AvailableRoadMoves(b, "V04", nil)
	require.Len(t, moves, 3)
	v, _ := b.Vertex("V04")
	for _, m := range moves {
		require.True(t, m.IsRoad())
		require.True(t, m.Edge.Touches(v.Point))
		require.Equal(t, EdgeKey(m.Edge.A, m.Edge.B), m.Key())
	}

	used := []string{moves[0].EdgeKey}
	require.Len(t, AvailableRoadMoves(b, "V04", used), 2)

	require.Len(t, AvailableRoadMoves(b, "V01", nil), 2)
	require.Empty(t, AvailableRoadMoves(b, "", nil))
	require.Empty(t, AvailableRoadMoves(b, "V99", nil))
}

func TestCandidateMovesFollowPhase(t *testing.T) {
	b := game.NewBoard()
	s := game.NewGameState()
	s.PlaceSettlement(1, "V04")

	s.Phase = game.Road
	require.Len(t, CandidateMoves(b, s), 3)

	s.Phase = game.City
	moves := CandidateMoves(b, s)
	require.Len(t, moves, 50)
	require.False(t, moves[0].IsRoad())
}

func TestVertexFeatures(t *testing.T) {
	b := game.NewBoard()

	f, ok := VertexFeatures(b, "V04")
	require.True(t, ok)
	require.Len(t, f, FeatureLength)
	// H01 (10) + H04 (12) + H05 (6) = 3 + 1 + 5 pips over three hexes.
	require.InDelta(t, 9.0/15.0, f[0], 1e-6)
	require.InDelta(t, 1.0, f[3], 1e-6)
	require.Equal(t, float32(1), f[4])

	f, ok = VertexFeatures(b, "V01")
	require.True(t, ok)
	require.InDelta(t, 0.6, f[0], 1e-6)
	require.InDelta(t, 1.0/3.0, f[3], 1e-6)
	require.InDelta(t, 1.0/3.0, f[1], 1e-6, "x of the top of H01 is 33.3")

	_, ok = VertexFeatures(b, "V99")
	require.False(t, ok)
}

func TestDesertHasNoPips(t *testing.T) {
	b := game.NewBoard()
	require.Equal(t, 0, HexPips("H10"))
	for _, v := range b.Vertices {
		pips, hexes, ok := PipStrength(b, v.Label)
		require.True(t, ok)
		if hexes == 0 {
			require.Zero(t, pips)
		}
	}
}

func TestPlayerStrengthsCountsCities(t *testing.T) {
	b := game.NewBoard()
	s := game.NewGameState()
	s.PlaceSettlement(1, "V04")
	s.PlaceCity(1, "V01")
	s.PlaceSettlement(2, "V01")

	got := PlayerStrengths(b, s)
	require.Equal(t, map[int]int{1: 12, 2: 3}, got)
	_, ok := got[3]
	require.False(t, ok, "players without buildings have no strength")
}

func TestOutcome(t *testing.T) {
	t.Run("tie at the top yields several winners", func(t *testing.T) {
		got := Outcome(map[int]int{1: 7, 2: 7, 3: 4})
		require.Equal(t, map[int]float64{1: 1, 2: 1, 3: -1}, got)
	})
	t.Run("single winner", func(t *testing.T) {
		got := Outcome(map[int]int{1: 3, 2: 9, 3: 4})
		require.Equal(t, map[int]float64{1: -1, 2: 1, 3: -1}, got)
	})
	t.Run("empty", func(t *testing.T) {
		require.Empty(t, Outcome(nil))
	})
}
