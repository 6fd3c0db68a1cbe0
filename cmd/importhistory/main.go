// Command importhistory loads a historical appointment CSV into the appointment_history table
// that the server trains its wait-time model from.
package main

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patientflow/backend/internal/config"
	"github.com/patientflow/backend/internal/db"
	"github.com/patientflow/backend/internal/history"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "patientflow-importhistory").Logger()

	path := cfg.HistoryCSV
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" || cfg.DatabaseURL == "" {
		logger.Fatal().Msg("usage: importhistory <file.csv> (DATABASE_URL required, HISTORY_CSV used when no file is given)")
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("failed to open history")
	}
	defer f.Close()

	res, err := history.Parse(f, validator.New())
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("failed to parse history")
	}
	for _, msg := range res.Errors {
		logger.Warn().Str("path", path).Msg(msg)
	}
	if len(res.Records) == 0 {
		logger.Fatal().Str("path", path).Msg("no usable rows, nothing imported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create history table")
	}
	inserted, err := store.ReplaceHistory(ctx, res.Records)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to import history")
	}
	logger.Info().
		Str("path", path).
		Int64("inserted", inserted).
		Int("rejected", len(res.Errors)).
		Msg("history imported")
}
