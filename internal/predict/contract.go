// Package predict implements the prediction orchestration core: the forecast
// contract, trend classification, confidence calibration, walk-forward
// evaluation and the model adapters behind /api/predict.
package predict

import (
	"context"
	"errors"
	"time"

	"stock-prediction-api/internal/features"
)

// DefaultHorizon is the number of days ahead a trajectory covers
const DefaultHorizon = 7

// Error kinds surfaced to the HTTP boundary. Client-origin problems map to
// 4xx there, core-origin problems to 5xx.
var (
	// ErrInsufficientData means an adapter's minimum-row precondition failed.
	ErrInsufficientData = errors.New("insufficient data for model")
	// ErrModelFit means the underlying optimiser signalled failure on the
	// final fit. Per-anchor failures during evaluation are skipped instead.
	ErrModelFit = errors.New("model fit failed")
	// ErrHorizonInconsistency means the evaluator could not assemble a single
	// complete (predicted, actual) trajectory pair.
	ErrHorizonInconsistency = errors.New("no complete forecast window could be evaluated")
	// ErrUnknownModel means the requested model name maps to no adapter.
	ErrUnknownModel = errors.New("unknown model")
)

// Model is the forecast contract: one operation over the augmented table.
// The four adapter families share nothing at implementation level; the
// envelope is the unifying abstraction.
type Model interface {
	Name() string
	Forecast(ctx context.Context, table *features.Table, horizon int) (*Forecast, error)
}

// Trend carries the classified direction with calibrated probabilities
type Trend struct {
	Direction     string        `json:"direction"` // Bearish, Sideways, Bullish
	Confidence    float64       `json:"confidence"`
	Probabilities Probabilities `json:"probabilities"`
}

// Probabilities is a three-class distribution in percent, summing to 100
type Probabilities struct {
	Bearish  float64 `json:"bearish"`
	Sideways float64 `json:"sideways"`
	Bullish  float64 `json:"bullish"`
}

// Metrics is the walk-forward evaluation bundle
type Metrics struct {
	MAE                 float64 `json:"mae"`
	RMSE                float64 `json:"rmse"`
	MAPE                float64 `json:"mape"`
	DirectionalAccuracy float64 `json:"directional_accuracy"`
	TrendAccuracy       float64 `json:"trend_accuracy"`
}

// TestResults surfaces the last walk-forward windows for external auditing
type TestResults struct {
	Predictions [][]float64   `json:"predictions"`
	Actual      [][]float64   `json:"actual"`
	Dates       [][]time.Time `json:"dates"`
}

// Tail keeps the most recent k windows
func (tr TestResults) Tail(k int) TestResults {
	n := len(tr.Predictions)
	if k <= 0 || n <= k {
		return tr
	}
	return TestResults{
		Predictions: tr.Predictions[n-k:],
		Actual:      tr.Actual[n-k:],
		Dates:       tr.Dates[n-k:],
	}
}

// Metadata identifies the algorithm and the hyper-parameters actually used
type Metadata struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Forecast is the uniform result envelope every adapter produces
type Forecast struct {
	Predictions   []float64   `json:"predictions"`
	ForecastDates []time.Time `json:"forecast_dates"`
	Trend         Trend       `json:"trend"`
	Metrics       Metrics     `json:"metrics"`
	TestResults   TestResults `json:"test_results"`
	Metadata      Metadata    `json:"metadata"`
}

// ForecastDates returns horizon strictly increasing calendar days starting
// the day after the last observed bar.
func ForecastDates(lastBar time.Time, horizon int) []time.Time {
	dates := make([]time.Time, horizon)
	for i := 0; i < horizon; i++ {
		dates[i] = lastBar.AddDate(0, 0, i+1)
	}
	return dates
}
