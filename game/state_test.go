package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyAndClone(t *testing.T) {
	s := NewGameState()
	s.CurrentPlayer = 2
	s.Phase = Settlement
	require.NoError(t, s.Apply(Move{Vertex: "V04"}))
	s.Phase = Road
	require.NoError(t, s.Apply(Move{EdgeKey: "a_b"}))
	s.Phase = City
	require.NoError(t, s.Apply(Move{Vertex: "V20"}))

	require.Equal(t, []string{"V04"}, s.Settlements[2])
	require.Equal(t, []string{"V20"}, s.Cities[2])
	require.Equal(t, []string{"a_b"}, s.Roads[2])
	require.Equal(t, "V20", s.LastBuilding)
	require.Equal(t, "V04", s.LastSettlement)
	require.Equal(t, []string{"V04", "V20"}, s.OccupiedVertices())

	c := s.Clone()
	c.PlaceSettlement(2, "V30")
	c.PlaceRoad(1, "c_d")
	require.Equal(t, []string{"V04"}, s.Settlements[2], "clone must not share slices")
	require.Empty(t, s.Roads[1])
}

func TestApplyRoadNeedsKey(t *testing.T) {
	s := NewGameState()
	s.Phase = Road
	require.Error(t, s.Apply(Move{Vertex: "V01"}))
}

func TestMoveTypeRoundTrip(t *testing.T) {
	for _, mt := range []MoveType{Settlement, City, Road} {
		got, err := ParseMoveType(mt.String())
		require.NoError(t, err)
		require.Equal(t, mt, got)
	}
	_, err := ParseMoveType("robber")
	require.Error(t, err)
	require.True(t, City.IsBuilding())
	require.False(t, Road.IsBuilding())
}

func TestExampleBestMove(t *testing.T) {
	e := Example{Policy: map[string]float64{"V02": 0.25, "V01": 0.5, "V03": 0.25}}
	key, p, ok := e.BestMove()
	require.True(t, ok)
	require.Equal(t, "V01", key)
	require.Equal(t, 0.5, p)

	_, _, ok = Example{}.BestMove()
	require.False(t, ok)
}
