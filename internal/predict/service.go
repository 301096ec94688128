package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stock-prediction-api/internal/features"
	"stock-prediction-api/internal/marketdata"
)

// Service runs the full prediction pipeline: history fetch, normalisation,
// feature building, model forecast.
type Service struct {
	source         marketdata.PriceSource
	registry       *Registry
	maxTestWindows int
	logger         zerolog.Logger
}

// NewService creates a prediction service. maxTestWindows caps how many
// walk-forward windows the envelope surfaces; zero or negative keeps the
// evaluator's own cap.
func NewService(source marketdata.PriceSource, registry *Registry, maxTestWindows int, logger zerolog.Logger) *Service {
	if maxTestWindows <= 0 || maxTestWindows > maxAuditWindows {
		maxTestWindows = maxAuditWindows
	}
	return &Service{
		source:         source,
		registry:       registry,
		maxTestWindows: maxTestWindows,
		logger:         logger.With().Str("component", "predict").Logger(),
	}
}

// Registry exposes the model registry for surface-level validation
func (s *Service) Registry() *Registry { return s.registry }

// Predict fetches history for symbol/period and runs the named model
func (s *Service) Predict(ctx context.Context, symbol, period, model string, horizon int) (*Forecast, error) {
	adapter, err := s.registry.Get(model)
	if err != nil {
		return nil, err
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	raw, err := s.source.History(ctx, symbol, period)
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", symbol, err)
	}
	bars, err := marketdata.Normalize(raw)
	if err != nil {
		return nil, err
	}
	table, err := features.Build(bars)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	forecast, err := adapter.Forecast(ctx, table, horizon)
	if err != nil {
		return nil, err
	}
	forecast.TestResults = forecast.TestResults.Tail(s.maxTestWindows)
	s.logger.Info().
		Str("symbol", symbol).
		Str("model", adapter.Name()).
		Int("rows", table.Len()).
		Int("horizon", horizon).
		Dur("took", time.Since(start)).
		Msg("forecast complete")
	return forecast, nil
}
