package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/brensch/settlers/game"
	"github.com/brensch/settlers/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func ex(gameID string, seq, player int, mt game.MoveType, policy map[string]float64, value float64) game.Example {
	return game.Example{GameID: gameID, Seq: seq, State: *game.NewGameState(), MoveType: mt, Policy: policy, Player: player, Value: value}
}

func writeStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "examples.parquet")
	_, err := store.New(path).AppendAndPersist([]game.Example{
		ex("g1", 0, 1, game.Settlement, map[string]float64{"V04": 0.7, "V01": 0.3}, 1),
		ex("g1", 1, 1, game.Road, map[string]float64{"r": 1}, 1),
		ex("g1", 2, 2, game.Settlement, map[string]float64{"V04": 0.1, "V20": 0.9}, -1),
		ex("g2", 0, 1, game.Settlement, map[string]float64{"V04": 1}, -1),
		ex("g2", 1, 2, game.Settlement, map[string]float64{"V30": 1}, 1),
	})
	require.NoError(t, err)
	return path
}

func TestQuerySummary(t *testing.T) {
	db, err := openDuckDB(writeStore(t))
	require.NoError(t, err)
	defer db.Close()

	s, err := querySummary(context.Background(), db, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, s.Examples)
	require.EqualValues(t, 2, s.Games)
	require.InDelta(t, 0.2, s.MeanValue, 1e-9)

	require.Equal(t, []MoveTypeStats{
		{MoveType: "road", Examples: 1, MeanValue: 1},
		{MoveType: "settlement", Examples: 4, MeanValue: 0},
	}, s.MoveTypes)
	require.Equal(t, []PlayerStats{
		{Player: 1, Games: 2, Wins: 1},
		{Player: 2, Games: 2, Wins: 1},
	}, s.Players)

	require.Len(t, s.TopSettlements, 2)
	require.Equal(t, VertexStats{Vertex: "V04", Chosen: 2, MeanValue: 0}, s.TopSettlements[0])
	require.Equal(t, "V20", s.TopSettlements[1].Vertex)
}

func TestQueryGames(t *testing.T) {
	db, err := openDuckDB(writeStore(t))
	require.NoError(t, err)
	defer db.Close()

	games, total, err := queryGames(context.Background(), db, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, []GameSummary{
		{GameID: "g1", Examples: 3, Winners: "1"},
		{GameID: "g2", Examples: 2, Winners: "2"},
	}, games)

	decisions, err := queryGame(context.Background(), db, "g1")
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	require.Equal(t, "V20", decisions[2].Best)
	require.InDelta(t, 0.9, decisions[2].BestShare, 1e-12)

	_, err = queryGame(context.Background(), db, "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMissingFileIsEmpty(t *testing.T) {
	db, err := openDuckDB(filepath.Join(t.TempDir(), "none.parquet"))
	require.NoError(t, err)
	defer db.Close()

	s, err := querySummary(context.Background(), db, 5)
	require.NoError(t, err)
	require.Zero(t, s.Examples)
	require.Empty(t, s.TopSettlements)
}

func TestHandlers(t *testing.T) {
	mux := http.NewServeMux()
	NewServer(writeStore(t), 5, zerolog.Nop()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/games?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var games GamesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&games))
	require.EqualValues(t, 2, games.Total)
	require.Len(t, games.Games, 1)

	resp2, err := http.Get(srv.URL + "/api/games/nope")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Post(srv.URL+"/api/summary", "application/json", nil)
	require.NoError(t, err)
	resp3.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)
}

func TestReplyLogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	s := NewServer("", 5, zerolog.New(&logs))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	s.reply(rec, req, map[string]any{"bad": make(chan int)})

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Contains(t, logs.String(), "write response")
	require.Contains(t, logs.String(), "/api/summary")

	logs.Reset()
	rec = httptest.NewRecorder()
	s.reply(rec, req, GamesResponse{Total: 1})
	require.Empty(t, logs.String())
	require.Contains(t, rec.Body.String(), `"total":1`)
}
