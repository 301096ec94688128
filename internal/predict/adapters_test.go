package predict

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-prediction-api/internal/features"
)

// tinyBoostParams keeps the gradient-boosting adapter fast enough for tests
func tinyBoostParams() BoostParams {
	return BoostParams{
		Window:       10,
		TopFeatures:  20,
		NumRounds:    10,
		MaxDepth:     2,
		LearningRate: 0.2,
		MinLeaf:      3,
		Lambda:       1.0,
		Patience:     3,
		MinExtraRows: 40,
		MaxAnchors:   5,
	}
}

// tinyLSTMParams keeps the recurrent adapter fast enough for tests
func tinyLSTMParams() LSTMParams {
	return LSTMParams{
		SeqLen:            10,
		Hidden:            []int{8},
		Dense:             []int{8},
		Dropout:           0.1,
		LearningRate:      1e-3,
		ClipNorm:          1.0,
		BatchSize:         8,
		MaxEpochs:         2,
		EarlyStopPatience: 2,
		PlateauPatience:   2,
		PlateauFactor:     0.5,
		MinLR:             1e-5,
		TrendLossWeight:   0.5,
		MinExtraRows:      40,
		MaxAnchors:        3,
		Seed:              7,
	}
}

// assertEnvelope checks the properties every adapter must satisfy
func assertEnvelope(t *testing.T, f *Forecast, table interface{ Len() int }, horizon int) {
	t.Helper()

	require.Len(t, f.Predictions, horizon)
	for i, v := range f.Predictions {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "prediction %d not finite", i)
		assert.Greater(t, v, 0.0, "prediction %d not positive", i)
	}

	require.Len(t, f.ForecastDates, horizon)
	for i := 1; i < len(f.ForecastDates); i++ {
		assert.True(t, f.ForecastDates[i].After(f.ForecastDates[i-1]), "dates must strictly increase")
	}

	assert.Contains(t, []string{TrendBearish, TrendSideways, TrendBullish}, f.Trend.Direction)
	assert.GreaterOrEqual(t, f.Trend.Confidence, MinConfidence)
	assert.LessOrEqual(t, f.Trend.Confidence, MaxConfidence)
	sum := f.Trend.Probabilities.Bearish + f.Trend.Probabilities.Sideways + f.Trend.Probabilities.Bullish
	assert.InDelta(t, 100, sum, 1e-6)

	for _, m := range []float64{f.Metrics.MAE, f.Metrics.RMSE, f.Metrics.MAPE, f.Metrics.DirectionalAccuracy, f.Metrics.TrendAccuracy} {
		assert.False(t, math.IsNaN(m) || math.IsInf(m, 0), "metric not finite")
	}

	assert.LessOrEqual(t, len(f.TestResults.Predictions), 10)
	assert.Equal(t, len(f.TestResults.Predictions), len(f.TestResults.Actual))
	assert.Equal(t, len(f.TestResults.Predictions), len(f.TestResults.Dates))

	assert.NotEmpty(t, f.Metadata.Name)
	assert.NotNil(t, f.Metadata.Parameters)
}

func TestARIMAForecast(t *testing.T) {
	table := testTable(t, 150)
	f, err := NewARIMA().Forecast(context.Background(), table, 7)
	require.NoError(t, err)
	assertEnvelope(t, f, table, 7)
	assert.Equal(t, "ARIMA", f.Metadata.Name)
}

func TestARIMAInsufficientData(t *testing.T) {
	table := testTable(t, 60).Slice(0, 20)
	_, err := NewARIMA().Forecast(context.Background(), table, 7)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestProphetForecast(t *testing.T) {
	table := testTable(t, 150)
	f, err := NewProphet().Forecast(context.Background(), table, 7)
	require.NoError(t, err)
	assertEnvelope(t, f, table, 7)
	assert.Equal(t, "Prophet", f.Metadata.Name)
	// Interval bounds are surfaced through metadata
	assert.Contains(t, f.Metadata.Parameters, "lower_bound")
	assert.Contains(t, f.Metadata.Parameters, "upper_bound")
}

func TestProphetInsufficientData(t *testing.T) {
	table := testTable(t, 60).Slice(0, 25)
	_, err := NewProphet().Forecast(context.Background(), table, 7)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestXGBoostForecast(t *testing.T) {
	table := testTable(t, 200)
	f, err := NewXGBoostWith(tinyBoostParams()).Forecast(context.Background(), table, 5)
	require.NoError(t, err)
	assertEnvelope(t, f, table, 5)
	assert.Equal(t, "XGBoost", f.Metadata.Name)
	// Feature importance accompanies the tree ensemble
	assert.Contains(t, f.Metadata.Parameters, "feature_importance")
}

func TestXGBoostInsufficientData(t *testing.T) {
	table := testTable(t, 60).Slice(0, 40)
	_, err := NewXGBoostWith(tinyBoostParams()).Forecast(context.Background(), table, 5)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestLSTMForecast(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network training in short mode")
	}
	table := testTable(t, 180)
	f, err := NewLSTMWith(tinyLSTMParams()).Forecast(context.Background(), table, 5)
	require.NoError(t, err)
	assertEnvelope(t, f, table, 5)
	assert.Equal(t, "LSTM", f.Metadata.Name)
}

func TestLSTMInsufficientData(t *testing.T) {
	table := testTable(t, 60).Slice(0, 30)
	_, err := NewLSTMWith(tinyLSTMParams()).Forecast(context.Background(), table, 5)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

// TestXGBoostTrainingIgnoresHeldOutRows corrupts every row past the
// validation split (plus the target horizon) with noise and refits: the
// selected features, per-step stopping rounds and booster outputs on the
// original held-out windows must all be unchanged, since nothing after the
// split boundary may reach training.
func TestXGBoostTrainingIgnoresHeldOutRows(t *testing.T) {
	table := testTable(t, 200)
	horizon := 5
	p := tinyBoostParams()
	m := NewXGBoostWith(p)

	cleanCols := table.Matrix(features.ColumnNames)
	cleanClose := append([]float64(nil), table.Close...)
	clean, err := m.fit(context.Background(), table, cleanCols, horizon)
	require.NoError(t, err)

	// First row no training sample's features or targets can touch
	boundary := clean.firstAnchor + clean.valEnd + horizon - 1
	require.Less(t, boundary, table.Len())

	rng := rand.New(rand.NewSource(42))
	for i := boundary; i < table.Len(); i++ {
		scale := 0.5 + rng.Float64()
		table.Open[i] *= scale
		table.High[i] *= scale
		table.Low[i] *= scale
		table.Close[i] *= scale
		table.Volume[i] *= scale
		for _, name := range features.ColumnNames {
			table.Col(name)[i] = rng.NormFloat64()
		}
	}

	refit, err := m.fit(context.Background(), table, table.Matrix(features.ColumnNames), horizon)
	require.NoError(t, err)

	assert.Equal(t, clean.keep, refit.keep, "feature selection saw held-out rows")
	assert.Equal(t, clean.bestRounds, refit.bestRounds, "early stopping saw held-out rows")

	for _, anchor := range []int{boundary + 1, table.Len() - horizon, table.Len()} {
		a := clean.predictAt(cleanCols, cleanClose, horizon, anchor)
		b := refit.predictAt(cleanCols, cleanClose, horizon, anchor)
		assert.Equal(t, a, b, "boosters diverge at anchor %d", anchor)
	}
}

func TestProphetUsesRawVolumeRegressor(t *testing.T) {
	table := testTable(t, 150)
	fit, err := fitProphet(table)
	require.NoError(t, err)

	require.Contains(t, fit.regressors, "volume")
	reg := regRow(table, fit, 3)
	assert.Equal(t, table.Volume[3], reg[0])
}

func TestLSTMDeterministicWithSeed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network training in short mode")
	}
	table := testTable(t, 150)
	params := tinyLSTMParams()

	a, err := NewLSTMWith(params).Forecast(context.Background(), table, 3)
	require.NoError(t, err)
	b, err := NewLSTMWith(params).Forecast(context.Background(), table, 3)
	require.NoError(t, err)

	for i := range a.Predictions {
		assert.InDelta(t, a.Predictions[i], b.Predictions[i], 1e-9, "seeded runs must match")
	}
}
