package strategy

import (
	"math"

	"github.com/markcheno/go-talib"

	"stock-prediction-api/internal/features"
)

// Confidence factor weights; they sum to 1
const (
	weightVolume     = 0.30
	weightMomentum   = 0.25
	weightVolatility = 0.20
	weightTrend      = 0.25
)

// confidenceCalculator annotates signal events with the four-factor score.
// Series are computed once per table and indexed per event.
type confidenceCalculator struct {
	table     *features.Table
	sma50     []float64
	vol10     []float64 // rolling std of daily returns
	volMean20 []float64 // 20-mean of vol10
}

func newConfidenceCalculator(t *features.Table) *confidenceCalculator {
	returns := t.Col("returns")
	vol10 := talib.StdDev(returns, 10, 1.0)
	return &confidenceCalculator{
		table:     t,
		sma50:     talib.Sma(t.Close, 50),
		vol10:     vol10,
		volMean20: talib.Sma(vol10, 20),
	}
}

// score computes the weighted confidence and its factor breakdown at row i
func (c *confidenceCalculator) score(i int, kind SignalKind) (float64, FactorBreakdown) {
	f := FactorBreakdown{
		Volume:     c.volumeFactor(i),
		Momentum:   c.momentumFactor(i, kind),
		Volatility: c.volatilityFactor(i),
		Trend:      c.trendFactor(i, kind),
	}
	total := weightVolume*f.Volume + weightMomentum*f.Momentum + weightVolatility*f.Volatility + weightTrend*f.Trend
	return clip(total, 0, 100), f
}

// volumeFactor rewards volume above its 20-period mean
func (c *confidenceCalculator) volumeFactor(i int) float64 {
	ratio := c.table.Col("volume_ratio")[i]
	return math.Min(100, 50*ratio)
}

// momentumFactor maps the 5-day return onto [0,100]; sells invert polarity
func (c *confidenceCalculator) momentumFactor(i int, kind SignalKind) float64 {
	r := c.table.Col("momentum_5")[i]
	if kind == SignalSell {
		r = -r
	}
	return clip(50+1000*r, 0, 100)
}

// volatilityFactor scores lower-than-usual volatility higher
func (c *confidenceCalculator) volatilityFactor(i int) float64 {
	v, mean := c.vol10[i], c.volMean20[i]
	if mean <= 0 || v <= 0 {
		return 50
	}
	return clip(100-50*(v/mean-1), 0, 100)
}

// trendFactor scores the close's position relative to the 20- and 50-period
// means, polarity-aware: above both is strongest for buys, below both for
// sells. A zero mean (warm-up) contributes nothing.
func (c *confidenceCalculator) trendFactor(i int, kind SignalKind) float64 {
	score := 50.0
	close := c.table.Close[i]
	sma20 := c.table.Col("sma_20")[i]
	sma50 := c.sma50[i]

	score += trendTerm(close, sma20, kind)
	score += trendTerm(sma20, sma50, kind)
	return clip(score, 0, 100)
}

func trendTerm(value, reference float64, kind SignalKind) float64 {
	if reference <= 0 || math.IsNaN(reference) {
		return 0
	}
	above := value > reference
	if kind == SignalSell {
		above = !above
	}
	if above {
		return 25
	}
	return -25
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
