package estimator

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/patientflow/backend/internal/models"
)

// HistorySource yields the historical training dataset.
type HistorySource interface {
	Name() string
	LoadHistory(ctx context.Context) ([]models.HistoricalRecord, error)
}

type SetupOptions struct {
	// ModelPath is read before training and written after a successful one. Empty disables both.
	ModelPath string
	Sources   []HistorySource
}

// LoadOrTrain returns the learned strategy, or nil when no model could be loaded or trained.
// Failures are logged and never returned: callers then run on the fallback alone.
func LoadOrTrain(ctx context.Context, opts SetupOptions, logger zerolog.Logger) Strategy {
	if opts.ModelPath != "" {
		m, err := LoadModel(opts.ModelPath)
		if err == nil {
			logger.Info().Str("path", opts.ModelPath).Float64("mae", m.Metrics().MAE).Msg("wait-time model loaded")
			return m
		}
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", opts.ModelPath).Msg("model artifact unusable, retraining")
		}
	}

	for _, src := range opts.Sources {
		if src == nil {
			continue
		}
		records, err := src.LoadHistory(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("source", src.Name()).Msg("historical dataset unavailable")
			continue
		}
		m, err := Train(records)
		if err != nil {
			logger.Warn().Err(err).Str("source", src.Name()).Int("records", len(records)).Msg("model training failed")
			continue
		}
		metrics := m.Metrics()
		logger.Info().
			Str("source", src.Name()).
			Float64("mae", metrics.MAE).
			Float64("rmse", metrics.RMSE).
			Int("train_samples", metrics.TrainSamples).
			Int("test_samples", metrics.TestSamples).
			Msg("wait-time model trained")
		if opts.ModelPath != "" {
			if err := m.Save(opts.ModelPath); err != nil {
				logger.Warn().Err(err).Str("path", opts.ModelPath).Msg("failed to save model artifact")
			}
		}
		return m
	}

	logger.Warn().Msg("no wait-time model available, using fallback estimates")
	return nil
}
