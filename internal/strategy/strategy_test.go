package strategy

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-prediction-api/internal/features"
	"stock-prediction-api/internal/marketdata"
)

func testTable(t *testing.T, rows int) *features.Table {
	t.Helper()
	src := marketdata.NewMockSource()
	raw, err := src.History(context.Background(), "TSLA", "5y")
	require.NoError(t, err)
	bars, err := marketdata.Normalize(raw)
	require.NoError(t, err)
	table, err := features.Build(bars)
	require.NoError(t, err)
	require.GreaterOrEqual(t, table.Len(), rows)
	return table.Slice(0, rows)
}

func TestCrossHelpers(t *testing.T) {
	a := []float64{1, 3, 3, 1}
	b := []float64{2, 2, 2, 2}

	assert.True(t, crossAbove(a, b, 1))
	assert.False(t, crossAbove(a, b, 2), "no event while condition merely holds")
	assert.True(t, crossBelow(a, b, 3))

	// Touching the reference then moving above still counts as a cross
	eq := []float64{2, 2.5}
	assert.True(t, crossAbove(eq, b, 1))
}

func TestConfidenceLabelBands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{95, LabelVeryStrong},
		{80, LabelVeryStrong},
		{79.9, LabelStrong},
		{65, LabelStrong},
		{64.9, LabelModerate},
		{50, LabelModerate},
		{49.9, LabelWeak},
		{35, LabelWeak},
		{34.9, LabelVeryWeak},
		{0, LabelVeryWeak},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceLabel(tt.score), "score %v", tt.score)
	}
}

func TestConfidenceScoreBounded(t *testing.T) {
	table := testTable(t, 200)
	calc := newConfidenceCalculator(table)

	for _, kind := range []SignalKind{SignalBuy, SignalSell} {
		for i := 0; i < table.Len(); i += 7 {
			score, factors := calc.score(i, kind)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 100.0)
			for _, f := range []float64{factors.Volume, factors.Momentum, factors.Volatility, factors.Trend} {
				assert.False(t, math.IsNaN(f), "factor NaN at row %d", i)
			}
		}
	}
}

func TestMomentumFactorPolarity(t *testing.T) {
	table := testTable(t, 200)
	calc := newConfidenceCalculator(table)

	// Find a row with clearly positive 5-day momentum
	mom := table.Col("momentum_5")
	row := -1
	for i := range mom {
		if mom[i] > 0.01 {
			row = i
			break
		}
	}
	require.GreaterOrEqual(t, row, 0, "no positive-momentum row in fixture")

	buy := calc.momentumFactor(row, SignalBuy)
	sell := calc.momentumFactor(row, SignalSell)
	assert.Greater(t, buy, 50.0)
	assert.Less(t, sell, 50.0)
}

func TestSupertrendWarmupAndFlips(t *testing.T) {
	table := testTable(t, 150)
	line, dir := Supertrend(table.High, table.Low, table.Close, 10, 3.0)

	require.Len(t, dir, table.Len())
	for i := 0; i < 10; i++ {
		assert.Equal(t, 0, dir[i], "warm-up rows carry no direction")
	}
	for i := 10; i < len(dir); i++ {
		assert.Contains(t, []int{-1, 1}, dir[i], "row %d", i)
		if dir[i] == 1 {
			assert.LessOrEqual(t, line[i], table.Close[i], "uptrend line sits below price")
		} else {
			assert.GreaterOrEqual(t, line[i], table.Close[i], "downtrend line sits above price")
		}
	}
}

func TestRollingVWAPFallback(t *testing.T) {
	high := []float64{12, 12, 12}
	low := []float64{10, 10, 10}
	close := []float64{11, 11, 11}
	volume := []float64{0, 0, 0}

	vwap := RollingVWAP(high, low, close, volume, 2)
	for i, v := range vwap {
		assert.InDelta(t, 11, v, 1e-9, "zero volume falls back to typical price at %d", i)
	}
}

func TestPriorHighExcludesCurrentRow(t *testing.T) {
	values := []float64{1, 2, 3, 10, 4}
	prior := PriorHigh(values, 3)
	// Row 4 sees the max of rows 1..3, not its own value
	assert.Equal(t, 10.0, prior[4])
	// Row 3's prior high excludes the 10 printed on row 3 itself
	assert.Equal(t, 3.0, prior[3])
}

func TestEMACrossoverTransitionsOnly(t *testing.T) {
	table := testTable(t, 250)
	buys, sells, err := emaCrossover{}.Signals(context.Background(), table)
	require.NoError(t, err)

	fast, slow := table.Col("ema_12"), table.Col("ema_26")
	seen := map[int]bool{}
	for _, i := range buys {
		assert.False(t, seen[i], "duplicate buy at %d", i)
		seen[i] = true
		assert.True(t, fast[i] > slow[i] && fast[i-1] <= slow[i-1], "buy at %d is not a transition", i)
	}
	for _, i := range sells {
		assert.False(t, seen[i], "index %d signalled both ways", i)
		assert.True(t, fast[i] < slow[i] && fast[i-1] >= slow[i-1], "sell at %d is not a transition", i)
	}
}

func TestRSIStrategyZoneExits(t *testing.T) {
	table := testTable(t, 250)
	buys, sells, err := rsiStrategy{}.Signals(context.Background(), table)
	require.NoError(t, err)

	rsi := table.Col("rsi")
	for _, i := range buys {
		assert.True(t, rsi[i-1] < 30 && rsi[i] >= 30, "buy at %d is not an oversold exit", i)
	}
	for _, i := range sells {
		assert.True(t, rsi[i-1] > 70 && rsi[i] <= 70, "sell at %d is not an overbought exit", i)
	}
}

func TestBreakoutSignalsBeyondPriorRange(t *testing.T) {
	table := testTable(t, 250)
	buys, sells, err := breakoutStrategy{}.Signals(context.Background(), table)
	require.NoError(t, err)

	highs := PriorHigh(table.High, breakoutPeriod)
	lows := PriorLow(table.Low, breakoutPeriod)
	for _, i := range buys {
		assert.Greater(t, table.Close[i], highs[i], "buy at %d not above prior high", i)
	}
	for _, i := range sells {
		assert.Less(t, table.Close[i], lows[i], "sell at %d not below prior low", i)
	}
}

func TestRegistryCoversAllStrategies(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	expected := []string{
		"adx_dmi", "bollinger_scalping", "breakout", "ema_crossover",
		"ichimoku", "macd", "ml_lstm", "rsi", "supertrend", "vwap",
	}
	assert.Equal(t, expected, names)

	_, err := r.Get("turtle")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestServiceRunProducesEnvelope(t *testing.T) {
	svc := NewService(marketdata.NewMockSource(), NewRegistry(), zerolog.Nop())
	result, err := svc.Run(context.Background(), "macd", "AAPL", "1y")
	require.NoError(t, err)

	assert.NotEmpty(t, result.Data)
	assert.Equal(t, "macd", result.Metadata.Name)
	assert.Equal(t, "AAPL", result.Metadata.Parameters["symbol"])

	for _, ev := range append(result.BuySignals, result.SellSignals...) {
		assert.False(t, ev.Date.IsZero())
		assert.GreaterOrEqual(t, ev.Confidence, 0.0)
		assert.LessOrEqual(t, ev.Confidence, 100.0)
		assert.NotEmpty(t, ev.Label)
	}

	// Price points mirror the augmented table rows, ascending
	for i := 1; i < len(result.Data); i++ {
		assert.True(t, result.Data[i].Date.After(result.Data[i-1].Date))
	}
}

func TestServiceRunUnknownStrategy(t *testing.T) {
	svc := NewService(marketdata.NewMockSource(), NewRegistry(), zerolog.Nop())
	_, err := svc.Run(context.Background(), "nope", "AAPL", "1y")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
