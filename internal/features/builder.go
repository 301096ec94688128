// Package features derives the augmented indicator table from canonical
// OHLCV bars. Every derived value at row t is a function of rows <= t only.
package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	talib "github.com/markcheno/go-talib"

	"stock-prediction-api/internal/marketdata"
)

// ErrDegenerate signals non-finite feature values surviving the warm-up
// trim. Given past-only windows this is an invariant violation, not a data
// problem.
var ErrDegenerate = errors.New("feature table contains non-finite values")

// ErrTooShort is returned when no row survives the warm-up trim.
var ErrTooShort = errors.New("not enough bars for feature warm-up")

const (
	rsiPeriod    = 14
	atrPeriod    = 14
	bbPeriod     = 20
	bbStdDev     = 2.0
	volumePeriod = 20

	// Warmup is the number of leading rows dropped: the 20-period rolling
	// statistics are the widest window and leave 19 undefined rows.
	Warmup = bbPeriod - 1
)

// Build computes the full derived-column set over canonical bars and trims
// the warm-up rows. The first emitted row is the earliest one for which
// every derived feature is finite.
func Build(bars []marketdata.Bar) (*Table, error) {
	n := len(bars)
	if n <= Warmup {
		return nil, fmt.Errorf("%w: %d bars, need more than %d", ErrTooShort, n, Warmup)
	}

	closes := marketdata.Closes(bars)
	volumes := marketdata.Volumes(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}

	derived := make(map[string][]float64, len(ColumnNames))

	derived["returns"] = pctChange(closes, 1)
	derived["sma_5"] = talib.Sma(closes, 5)
	derived["sma_10"] = talib.Sma(closes, 10)
	derived["sma_20"] = talib.Sma(closes, 20)

	// Recursive EMAs are defined from the first row, so the 26-period span
	// does not extend the warm-up window.
	ema12 := ewma(closes, 12)
	ema26 := ewma(closes, 26)
	derived["ema_12"] = ema12
	derived["ema_26"] = ema26

	macd := make([]float64, n)
	for i := range macd {
		macd[i] = ema12[i] - ema26[i]
	}
	macdSignal := ewma(macd, 9)
	macdHist := make([]float64, n)
	for i := range macdHist {
		macdHist[i] = macd[i] - macdSignal[i]
	}
	derived["macd"] = macd
	derived["macd_signal"] = macdSignal
	derived["macd_hist"] = macdHist

	derived["rsi"] = markInvalid(talib.Rsi(closes, rsiPeriod), rsiPeriod)

	upper, middle, lower := talib.BBands(closes, bbPeriod, bbStdDev, bbStdDev, talib.SMA)
	width := make([]float64, n)
	for i := range width {
		if middle[i] != 0 {
			width[i] = (upper[i] - lower[i]) / middle[i]
		} else {
			width[i] = math.NaN()
		}
	}
	derived["bb_upper"] = markInvalid(upper, bbPeriod-1)
	derived["bb_middle"] = markInvalid(middle, bbPeriod-1)
	derived["bb_lower"] = markInvalid(lower, bbPeriod-1)
	derived["bb_width"] = markInvalid(width, bbPeriod-1)

	derived["atr"] = markInvalid(talib.Atr(highs, lows, closes, atrPeriod), atrPeriod)

	volMean := talib.Sma(volumes, volumePeriod)
	volRatio := make([]float64, n)
	for i := range volRatio {
		if volMean[i] > 0 {
			volRatio[i] = volumes[i] / volMean[i]
		} else {
			// Zero-volume histories still produce a defined ratio
			volRatio[i] = 1.0
		}
	}
	derived["volume_ratio"] = markInvalid(volRatio, volumePeriod-1)

	derived["momentum_5"] = pctChange(closes, 5)
	derived["momentum_10"] = pctChange(closes, 10)
	derived["close_lag_1"] = lag(closes, 1)
	derived["close_lag_3"] = lag(closes, 3)
	derived["close_lag_7"] = lag(closes, 7)

	// talib's rolling outputs carry zeros inside their own warm-up; mark
	// the SMA windows invalid explicitly so trimming sees NaN, not zero.
	derived["sma_5"] = markInvalid(derived["sma_5"], 4)
	derived["sma_10"] = markInvalid(derived["sma_10"], 9)
	derived["sma_20"] = markInvalid(derived["sma_20"], 19)

	start := firstFinite(derived, n)
	if start < 0 {
		return nil, ErrTooShort
	}

	out := &Table{
		Dates:   make([]time.Time, n-start),
		Open:    make([]float64, n-start),
		High:    highs[start:],
		Low:     lows[start:],
		Close:   closes[start:],
		Volume:  volumes[start:],
		derived: make(map[string][]float64, len(derived)),
	}
	for i := start; i < n; i++ {
		out.Dates[i-start] = bars[i].Date
		out.Open[i-start] = bars[i].Open
	}
	for name, col := range derived {
		out.derived[name] = col[start:]
	}

	// Invariant check: everything past the trim must be finite.
	for _, name := range ColumnNames {
		for i, v := range out.derived[name] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: column %s row %d", ErrDegenerate, name, i)
			}
		}
	}

	return out, nil
}

// firstFinite returns the first row index at which every derived column is
// finite, or -1 if none exists.
func firstFinite(derived map[string][]float64, n int) int {
	for i := 0; i < n; i++ {
		ok := true
		for _, name := range ColumnNames {
			v := derived[name][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

// ewma computes a recursive exponential moving average with
// alpha = 2/(span+1), seeded at the first observation.
func ewma(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// pctChange computes the k-step fractional change; undefined rows are NaN
func pctChange(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i < k || values[i-k] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (values[i] - values[i-k]) / values[i-k]
	}
	return out
}

// lag shifts the series forward by k rows; undefined rows are NaN
func lag(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-k]
	}
	return out
}

// markInvalid replaces the first warmup entries with NaN. talib fills its
// warm-up region with zeros, which would otherwise survive the trim.
func markInvalid(values []float64, warmup int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	for i := 0; i < warmup && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}
