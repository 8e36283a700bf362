package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// bestKey is the policy key with the highest share.
const bestKey = `coalesce(policy_keys[list_position(policy_probs, list_max(policy_probs))], '')`

// openDuckDB returns an in-memory DuckDB connection with an "examples" view
// over the store file. A missing file yields an empty view.
func openDuckDB(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	var view string
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		view = `CREATE OR REPLACE VIEW examples AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS game_id,
					NULL::INTEGER AS seq,
					NULL::VARCHAR AS move_type,
					NULL::INTEGER AS player,
					NULL::DOUBLE AS value,
					NULL::VARCHAR[] AS policy_keys,
					NULL::DOUBLE[] AS policy_probs,
					NULL::BIGINT AS file_row_number
			) WHERE 1=0`
	} else {
		view = fmt.Sprintf(`CREATE OR REPLACE VIEW examples AS
			SELECT * FROM read_parquet('%s', file_row_number=true)`, escapeSQLString(path))
	}
	if _, err := db.Exec(view); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create examples view: %w", err)
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func querySummary(ctx context.Context, db *sql.DB, top int) (*Summary, error) {
	s := &Summary{}
	err := db.QueryRowContext(ctx, `
		SELECT count(*), count(DISTINCT game_id), coalesce(avg(value), 0)
		FROM examples`).Scan(&s.Examples, &s.Games, &s.MeanValue)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT move_type, count(*), avg(value)
		FROM examples
		GROUP BY move_type
		ORDER BY move_type`)
	if err != nil {
		return nil, fmt.Errorf("query move types: %w", err)
	}
	for rows.Next() {
		var m MoveTypeStats
		if err := rows.Scan(&m.MoveType, &m.Examples, &m.MeanValue); err != nil {
			rows.Close()
			return nil, err
		}
		s.MoveTypes = append(s.MoveTypes, m)
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `
		SELECT player, count(DISTINCT game_id), count(DISTINCT game_id) FILTER (WHERE value = 1)
		FROM examples
		GROUP BY player
		ORDER BY player`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	for rows.Next() {
		var p PlayerStats
		if err := rows.Scan(&p.Player, &p.Games, &p.Wins); err != nil {
			rows.Close()
			return nil, err
		}
		s.Players = append(s.Players, p)
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `
		SELECT `+bestKey+` AS vertex, count(*) AS n, avg(value)
		FROM examples
		WHERE move_type = 'settlement'
		GROUP BY vertex
		ORDER BY n DESC, vertex
		LIMIT ?`, top)
	if err != nil {
		return nil, fmt.Errorf("query top vertices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v VertexStats
		if err := rows.Scan(&v.Vertex, &v.Chosen, &v.MeanValue); err != nil {
			return nil, err
		}
		s.TopSettlements = append(s.TopSettlements, v)
	}
	return s, rows.Err()
}

func queryGames(ctx context.Context, db *sql.DB, limit, offset int) ([]GameSummary, int64, error) {
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT count(DISTINCT game_id) FROM examples`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count games: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT
			game_id,
			count(*),
			coalesce(array_to_string(list_sort(list(DISTINCT player) FILTER (WHERE value = 1)), ','), '')
		FROM examples
		GROUP BY game_id
		ORDER BY min(file_row_number)
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var out []GameSummary
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.GameID, &g.Examples, &g.Winners); err != nil {
			return nil, 0, err
		}
		out = append(out, g)
	}
	return out, total, rows.Err()
}

func queryGame(ctx context.Context, db *sql.DB, gameID string) ([]Decision, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, player, move_type, value, `+bestKey+`, coalesce(list_max(policy_probs), 0)
		FROM examples
		WHERE game_id = ?
		ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query game: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.Seq, &d.Player, &d.MoveType, &d.Value, &d.Best, &d.BestShare); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out, nil
}
