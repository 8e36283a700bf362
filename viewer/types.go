package main

type Summary struct {
	Examples       int64           `json:"examples"`
	Games          int64           `json:"games"`
	MeanValue      float64         `json:"mean_value"`
	MoveTypes      []MoveTypeStats `json:"move_types"`
	Players        []PlayerStats   `json:"players"`
	TopSettlements []VertexStats   `json:"top_settlements"`
}

type MoveTypeStats struct {
	MoveType  string  `json:"move_type"`
	Examples  int64   `json:"examples"`
	MeanValue float64 `json:"mean_value"`
}

type PlayerStats struct {
	Player int   `json:"player"`
	Games  int64 `json:"games"`
	Wins   int64 `json:"wins"`
}

// VertexStats counts how often a vertex was the most visited settlement.
type VertexStats struct {
	Vertex    string  `json:"vertex"`
	Chosen    int64   `json:"chosen"`
	MeanValue float64 `json:"mean_value"`
}

type GameSummary struct {
	GameID   string `json:"game_id"`
	Examples int64  `json:"examples"`
	// Winners is a comma separated list of players with outcome +1.
	Winners string `json:"winners"`
}

type GamesResponse struct {
	Total int64         `json:"total"`
	Games []GameSummary `json:"games"`
}

type Decision struct {
	Seq       int     `json:"seq"`
	Player    int     `json:"player"`
	MoveType  string  `json:"move_type"`
	Value     float64 `json:"value"`
	Best      string  `json:"best"`
	BestShare float64 `json:"best_share"`
}
