package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"stock-prediction-api/internal/features"
	"stock-prediction-api/internal/marketdata"
)

// ErrUnknownStrategy is returned for names outside the registry
var ErrUnknownStrategy = errors.New("unknown strategy")

// Registry maps API strategy names onto implementations
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry returns a registry with the production strategies
func NewRegistry() *Registry {
	r := &Registry{strategies: map[string]Strategy{}}
	for _, s := range []Strategy{
		emaCrossover{},
		rsiStrategy{},
		macdStrategy{},
		bollingerScalping{},
		supertrendStrategy{},
		adxDMIStrategy{},
		vwapStrategy{},
		breakoutStrategy{},
		ichimokuStrategy{},
		mlLSTMStrategy{},
	} {
		r.strategies[s.Name()] = s
	}
	return r
}

// Get looks up a strategy by name
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names lists registered strategy names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service runs a named strategy over fetched history and annotates its
// events with the confidence calculator.
type Service struct {
	source   marketdata.PriceSource
	registry *Registry
	logger   zerolog.Logger
}

// NewService creates a strategy service
func NewService(source marketdata.PriceSource, registry *Registry, logger zerolog.Logger) *Service {
	return &Service{source: source, registry: registry, logger: logger.With().Str("component", "strategy").Logger()}
}

// Registry exposes the strategy registry for surface-level validation
func (s *Service) Registry() *Registry { return s.registry }

// Run fetches history for symbol/period and evaluates the named strategy
func (s *Service) Run(ctx context.Context, name, symbol, period string) (*Result, error) {
	strat, err := s.registry.Get(name)
	if err != nil {
		return nil, err
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
	buyIdx, sellIdx, err := strat.Signals(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", name, err)
	}

	calc := newConfidenceCalculator(table)
	result := &Result{
		Data:        pricePoints(table),
		BuySignals:  annotate(table, calc, buyIdx, SignalBuy),
		SellSignals: annotate(table, calc, sellIdx, SignalSell),
		Metadata: Metadata{
			Name:        strat.Name(),
			Description: strat.Description(),
			Parameters: map[string]interface{}{
				"symbol": symbol,
				"period": period,
				"rows":   table.Len(),
			},
		},
	}

	s.logger.Info().
		Str("symbol", symbol).
		Str("strategy", name).
		Int("buys", len(result.BuySignals)).
		Int("sells", len(result.SellSignals)).
		Dur("took", time.Since(start)).
		Msg("strategy complete")
	return result, nil
}

func annotate(t *features.Table, calc *confidenceCalculator, indices []int, kind SignalKind) []SignalEvent {
	events := make([]SignalEvent, 0, len(indices))
	for _, i := range indices {
		score, factors := calc.score(i, kind)
		events = append(events, SignalEvent{
			Date:       t.Dates[i],
			Close:      t.Close[i],
			Kind:       kind,
			Confidence: score,
			Label:      ConfidenceLabel(score),
			Factors:    factors,
		})
	}
	return events
}

func pricePoints(t *features.Table) []PricePoint {
	points := make([]PricePoint, t.Len())
	for i := range points {
		points[i] = PricePoint{
			Date:   t.Dates[i],
			Open:   t.Open[i],
			High:   t.High[i],
			Low:    t.Low[i],
			Close:  t.Close[i],
			Volume: t.Volume[i],
		}
	}
	return points
}
