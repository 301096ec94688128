package strategy

import (
	"github.com/markcheno/go-talib"
)

// ============================================================================
// SUPERTREND
// ============================================================================

// Supertrend computes the supertrend line and its direction per row:
// +1 uptrend, -1 downtrend, 0 during ATR warm-up.
func Supertrend(high, low, close []float64, period int, multiplier float64) ([]float64, []int) {
	n := len(close)
	line := make([]float64, n)
	dir := make([]int, n)
	if n == 0 {
		return line, dir
	}

	atr := talib.Atr(high, low, close, period)

	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)
	for i := period; i < n; i++ {
		mid := (high[i] + low[i]) / 2
		basicUpper := mid + multiplier*atr[i]
		basicLower := mid - multiplier*atr[i]

		if i == period {
			finalUpper[i] = basicUpper
			finalLower[i] = basicLower
			dir[i] = 1
			line[i] = basicLower
			continue
		}

		// Bands only ratchet toward price until a close breaks them
		if basicUpper < finalUpper[i-1] || close[i-1] > finalUpper[i-1] {
			finalUpper[i] = basicUpper
		} else {
			finalUpper[i] = finalUpper[i-1]
		}
		if basicLower > finalLower[i-1] || close[i-1] < finalLower[i-1] {
			finalLower[i] = basicLower
		} else {
			finalLower[i] = finalLower[i-1]
		}

		switch {
		case close[i] > finalUpper[i]:
			dir[i] = 1
		case close[i] < finalLower[i]:
			dir[i] = -1
		default:
			dir[i] = dir[i-1]
		}
		if dir[i] == 1 {
			line[i] = finalLower[i]
		} else {
			line[i] = finalUpper[i]
		}
	}
	return line, dir
}

// ============================================================================
// VWAP
// ============================================================================

// RollingVWAP computes a rolling volume-weighted average price over the
// typical price. Zero-volume windows fall back to the typical price itself.
func RollingVWAP(high, low, close, volume []float64, period int) []float64 {
	n := len(close)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		var pvSum, vSum float64
		for j := start; j <= i; j++ {
			typical := (high[j] + low[j] + close[j]) / 3
			pvSum += typical * volume[j]
			vSum += volume[j]
		}
		if vSum > 0 {
			out[i] = pvSum / vSum
		} else {
			out[i] = (high[i] + low[i] + close[i]) / 3
		}
	}
	return out
}

// ============================================================================
// ICHIMOKU
// ============================================================================

// IchimokuLine is the midpoint of the rolling high/low range; period 9 gives
// the conversion line (tenkan), 26 the base line (kijun).
func IchimokuLine(high, low []float64, period int) []float64 {
	highs := talib.Max(high, period)
	lows := talib.Min(low, period)
	out := make([]float64, len(high))
	for i := range out {
		out[i] = (highs[i] + lows[i]) / 2
	}
	return out
}

// ============================================================================
// ROLLING EXTREMES
// ============================================================================

// PriorHigh returns the rolling max of the preceding period rows, excluding
// the current row, for breakout detection.
func PriorHigh(values []float64, period int) []float64 {
	rolled := talib.Max(values, period)
	return shiftOne(rolled)
}

// PriorLow returns the rolling min of the preceding period rows, excluding
// the current row.
func PriorLow(values []float64, period int) []float64 {
	rolled := talib.Min(values, period)
	return shiftOne(rolled)
}

func shiftOne(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out[1:], values[:len(values)-1])
	return out
}
