// Command viewer inspects the self-play example store with DuckDB, either
// once on the command line or as a small JSON API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/brensch/settlers/config"
	"github.com/brensch/settlers/logging"
)

func main() {
	dataPath := flag.String("data", os.Getenv("SETTLERS_DATA"), "Training example parquet file")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	top := flag.Int("top", 10, "Number of settlement vertices to rank")
	once := flag.Bool("once", false, "Print the summary as JSON and exit")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	if *dataPath == "" {
		*dataPath = config.Default().DataPath
	}
	logger := logging.New(os.Stderr, *logLevel, false)

	if *once {
		db, err := openDuckDB(*dataPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *dataPath).Msg("open duckdb")
		}
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		summary, err := querySummary(ctx, db, *top)
		if err != nil {
			logger.Fatal().Err(err).Msg("summary")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return
	}

	mux := http.NewServeMux()
	NewServer(*dataPath, *top, logging.Component(logger, "viewer")).RegisterRoutes(mux)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info().Str("addr", *addr).Str("path", *dataPath).Msg("viewer listening")
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("serve")
	}
}
