package main

import (
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Server answers read-only queries over the example store. Every request
// opens a fresh view so it sees the latest file written by the loop.
type Server struct {
	dataPath string
	top      int
	logger   zerolog.Logger
}

func NewServer(dataPath string, top int, logger zerolog.Logger) *Server {
	return &Server{dataPath: dataPath, top: top, logger: logger}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/games", s.handleGames)
	mux.HandleFunc("/api/games/", s.handleGame)
}

// begin handles CORS and method checks and opens the database.
func (s *Server) begin(w http.ResponseWriter, r *http.Request) (*sql.DB, bool) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return nil, false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	db, err := openDuckDB(s.dataPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return db, true
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, v any) {
	if err := writeJSON(w, v); err != nil {
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("write response")
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	db, ok := s.begin(w, r)
	if !ok {
		return
	}
	defer db.Close()

	summary, err := querySummary(r.Context(), db, parseIntQuery(r, "top", s.top))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.reply(w, r, summary)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	db, ok := s.begin(w, r)
	if !ok {
		return
	}
	defer db.Close()

	games, total, err := queryGames(r.Context(), db, parseIntQuery(r, "limit", 100), parseIntQuery(r, "offset", 0))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.reply(w, r, GamesResponse{Total: total, Games: games})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	// /api/games/{id}
	rest := strings.TrimPrefix(r.URL.Path, "/api/games/")
	if rest == "" || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	gameID, err := url.PathUnescape(rest)
	if err != nil {
		http.Error(w, "bad game id", http.StatusBadRequest)
		return
	}

	db, ok := s.begin(w, r)
	if !ok {
		return
	}
	defer db.Close()

	decisions, err := queryGame(r.Context(), db, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.reply(w, r, decisions)
}
