package strategy

import (
	"context"

	"github.com/markcheno/go-talib"

	"stock-prediction-api/internal/features"
	"stock-prediction-api/internal/predict"
)

// Strategy is a pure function of the augmented table producing buy and sell
// transition indices. Events fire only where the indicator state changes
// between adjacent rows, never on every row a condition holds.
type Strategy interface {
	Name() string
	Description() string
	Signals(ctx context.Context, table *features.Table) (buyIdx, sellIdx []int, err error)
}

// crossAbove reports a at row i crossing from at-or-below to above b
func crossAbove(a, b []float64, i int) bool {
	return a[i-1] <= b[i-1] && a[i] > b[i]
}

func crossBelow(a, b []float64, i int) bool {
	return a[i-1] >= b[i-1] && a[i] < b[i]
}

// ---- EMA crossover ----

type emaCrossover struct{}

func (emaCrossover) Name() string        { return "ema_crossover" }
func (emaCrossover) Description() string { return "EMA-12/EMA-26 crossover" }

func (emaCrossover) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	fast, slow := t.Col("ema_12"), t.Col("ema_26")
	var buys, sells []int
	for i := 1; i < t.Len(); i++ {
		if crossAbove(fast, slow, i) {
			buys = append(buys, i)
		} else if crossBelow(fast, slow, i) {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- RSI ----

type rsiStrategy struct{}

func (rsiStrategy) Name() string        { return "rsi" }
func (rsiStrategy) Description() string { return "RSI-14 leaving oversold/overbought zones" }

func (rsiStrategy) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	rsi := t.Col("rsi")
	var buys, sells []int
	for i := 1; i < t.Len(); i++ {
		if rsi[i-1] < 30 && rsi[i] >= 30 {
			buys = append(buys, i)
		} else if rsi[i-1] > 70 && rsi[i] <= 70 {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- MACD ----

type macdStrategy struct{}

func (macdStrategy) Name() string        { return "macd" }
func (macdStrategy) Description() string { return "MACD line crossing its signal line" }

func (macdStrategy) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	macd, signal := t.Col("macd"), t.Col("macd_signal")
	var buys, sells []int
	for i := 1; i < t.Len(); i++ {
		if crossAbove(macd, signal, i) {
			buys = append(buys, i)
		} else if crossBelow(macd, signal, i) {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- Bollinger scalping ----

type bollingerScalping struct{}

func (bollingerScalping) Name() string        { return "bollinger_scalping" }
func (bollingerScalping) Description() string { return "Close piercing the Bollinger bands" }

func (bollingerScalping) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	lower, upper := t.Col("bb_lower"), t.Col("bb_upper")
	var buys, sells []int
	for i := 1; i < t.Len(); i++ {
		if crossBelow(t.Close, lower, i) {
			buys = append(buys, i)
		} else if crossAbove(t.Close, upper, i) {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- Supertrend ----

const (
	supertrendPeriod     = 10
	supertrendMultiplier = 3.0
)

type supertrendStrategy struct{}

func (supertrendStrategy) Name() string        { return "supertrend" }
func (supertrendStrategy) Description() string { return "Supertrend direction flips" }

func (supertrendStrategy) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	_, dir := Supertrend(t.High, t.Low, t.Close, supertrendPeriod, supertrendMultiplier)
	var buys, sells []int
	for i := 1; i < t.Len(); i++ {
		if dir[i-1] == -1 && dir[i] == 1 {
			buys = append(buys, i)
		} else if dir[i-1] == 1 && dir[i] == -1 {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- ADX / DMI ----

const (
	dmiPeriod    = 14
	adxThreshold = 25.0
)

type adxDMIStrategy struct{}

func (adxDMIStrategy) Name() string        { return "adx_dmi" }
func (adxDMIStrategy) Description() string { return "DI crossovers filtered by ADX trend strength" }

func (adxDMIStrategy) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	plus := talib.PlusDI(t.High, t.Low, t.Close, dmiPeriod)
	minus := talib.MinusDI(t.High, t.Low, t.Close, dmiPeriod)
	adx := talib.Adx(t.High, t.Low, t.Close, dmiPeriod)

	var buys, sells []int
	for i := 2 * dmiPeriod; i < t.Len(); i++ {
		if adx[i] < adxThreshold {
			continue
		}
		if crossAbove(plus, minus, i) {
			buys = append(buys, i)
		} else if crossBelow(plus, minus, i) {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- VWAP ----

const vwapPeriod = 20

type vwapStrategy struct{}

func (vwapStrategy) Name() string        { return "vwap" }
func (vwapStrategy) Description() string { return "Close crossing the rolling VWAP" }

func (vwapStrategy) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	vwap := RollingVWAP(t.High, t.Low, t.Close, t.Volume, vwapPeriod)
	var buys, sells []int
	for i := 1; i < t.Len(); i++ {
		if crossAbove(t.Close, vwap, i) {
			buys = append(buys, i)
		} else if crossBelow(t.Close, vwap, i) {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- Breakout ----

const breakoutPeriod = 20

type breakoutStrategy struct{}

func (breakoutStrategy) Name() string        { return "breakout" }
func (breakoutStrategy) Description() string { return "Close breaking the prior 20-row range" }

func (breakoutStrategy) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	highs := PriorHigh(t.High, breakoutPeriod)
	lows := PriorLow(t.Low, breakoutPeriod)

	var buys, sells []int
	for i := breakoutPeriod + 1; i < t.Len(); i++ {
		if t.Close[i-1] <= highs[i-1] && t.Close[i] > highs[i] {
			buys = append(buys, i)
		} else if t.Close[i-1] >= lows[i-1] && t.Close[i] < lows[i] {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- Ichimoku ----

const (
	tenkanPeriod = 9
	kijunPeriod  = 26
)

type ichimokuStrategy struct{}

func (ichimokuStrategy) Name() string        { return "ichimoku" }
func (ichimokuStrategy) Description() string { return "Tenkan/kijun line crossovers" }

func (ichimokuStrategy) Signals(_ context.Context, t *features.Table) ([]int, []int, error) {
	tenkan := IchimokuLine(t.High, t.Low, tenkanPeriod)
	kijun := IchimokuLine(t.High, t.Low, kijunPeriod)

	var buys, sells []int
	for i := kijunPeriod; i < t.Len(); i++ {
		if crossAbove(tenkan, kijun, i) {
			buys = append(buys, i)
		} else if crossBelow(tenkan, kijun, i) {
			sells = append(sells, i)
		}
	}
	return buys, sells, nil
}

// ---- ML (LSTM-backed) ----

// mlLSTMStrategy runs the recurrent forecaster once and signals where the
// predicted trend flips between consecutive audited windows. A compact
// network keeps the per-request cost bounded; the forecast path exposes the
// full-size one.
type mlLSTMStrategy struct{}

func (mlLSTMStrategy) Name() string        { return "ml_lstm" }
func (mlLSTMStrategy) Description() string { return "Neural trend flips across walk-forward windows" }

func mlStrategyParams() predict.LSTMParams {
	p := predict.DefaultLSTMParams()
	p.Hidden = []int{32, 16}
	p.Dense = []int{32}
	p.MaxEpochs = 25
	p.EarlyStopPatience = 5
	return p
}

func (mlLSTMStrategy) Signals(ctx context.Context, t *features.Table) ([]int, []int, error) {
	model := predict.NewLSTMWith(mlStrategyParams())
	forecast, err := model.Forecast(ctx, t, predict.DefaultHorizon)
	if err != nil {
		return nil, nil, err
	}

	indexByDate := make(map[int64]int, t.Len())
	for i, d := range t.Dates {
		indexByDate[d.Unix()] = i
	}

	var buys, sells []int
	prev := predict.TrendSideways
	for w := range forecast.TestResults.Predictions {
		dates := forecast.TestResults.Dates[w]
		if len(dates) == 0 {
			continue
		}
		idx, ok := indexByDate[dates[0].Unix()]
		if !ok {
			continue
		}
		cur := predict.ClassifyTrend(forecast.TestResults.Predictions[w])
		if cur == predict.TrendBullish && prev != predict.TrendBullish {
			buys = append(buys, idx)
		} else if cur == predict.TrendBearish && prev != predict.TrendBearish {
			sells = append(sells, idx)
		}
		prev = cur
	}
	return buys, sells, nil
}
