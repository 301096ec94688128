package predict

import (
	"gonum.org/v1/gonum/stat"
)

// Trend direction labels
const (
	TrendBearish  = "Bearish"
	TrendSideways = "Sideways"
	TrendBullish  = "Bullish"
)

// TrendThresholdPct is the dead-band: first-to-last changes within +-1% are
// Sideways. The boundary itself belongs to Sideways on both ends.
const TrendThresholdPct = 1.0

// Confidence bounds; every score is clipped into [MinConfidence, MaxConfidence]
const (
	MinConfidence = 50.0
	MaxConfidence = 95.0
)

// ClassifyTrend maps a forecast trajectory to a trend class using the
// percentage change from first to last point. Trajectories too short to
// express a direction are Sideways.
func ClassifyTrend(trajectory []float64) string {
	if len(trajectory) < 2 || trajectory[0] == 0 {
		return TrendSideways
	}
	delta := (trajectory[len(trajectory)-1] - trajectory[0]) / trajectory[0] * 100
	switch {
	case delta > TrendThresholdPct:
		return TrendBullish
	case delta < -TrendThresholdPct:
		return TrendBearish
	default:
		return TrendSideways
	}
}

// ConfidenceFromError calibrates confidence against walk-forward error:
// smaller MAE relative to the price level scores higher.
func ConfidenceFromError(mae, referencePrice float64) float64 {
	if referencePrice <= 0 {
		return MinConfidence
	}
	return clipConfidence(100 - 200*mae/referencePrice)
}

// ConfidenceFromStability scores a trajectory by its own dispersion; used
// when no actuals exist to calibrate against.
func ConfidenceFromStability(trajectory []float64) float64 {
	if len(trajectory) < 2 {
		return MinConfidence
	}
	mean, std := stat.MeanStdDev(trajectory, nil)
	if mean == 0 {
		return MinConfidence
	}
	return clipConfidence(100 - 300*std/mean)
}

// DeriveTrend classifies a trajectory and derives the probability vector
// consistent with it: the trend class takes the confidence mass; for a
// directional trend the remainder splits 0.7 to the adjacent Sideways class
// and 0.3 to the opposite extreme; Sideways splits it evenly.
func DeriveTrend(trajectory []float64, confidence float64) Trend {
	direction := ClassifyTrend(trajectory)
	return Trend{
		Direction:     direction,
		Confidence:    confidence,
		Probabilities: DeriveProbabilities(direction, confidence),
	}
}

// DeriveProbabilities builds the three-class distribution for a trend label
// and confidence score, normalised to sum 100.
func DeriveProbabilities(direction string, confidence float64) Probabilities {
	c := clipConfidence(confidence)
	rest := 100 - c

	var p Probabilities
	switch direction {
	case TrendBullish:
		p = Probabilities{Bullish: c, Sideways: 0.7 * rest, Bearish: 0.3 * rest}
	case TrendBearish:
		p = Probabilities{Bearish: c, Sideways: 0.7 * rest, Bullish: 0.3 * rest}
	default:
		p = Probabilities{Sideways: c, Bearish: 0.5 * rest, Bullish: 0.5 * rest}
	}
	return p.normalise()
}

// normalise rescales the vector to sum exactly 100
func (p Probabilities) normalise() Probabilities {
	total := p.Bearish + p.Sideways + p.Bullish
	if total <= 0 {
		return Probabilities{Bearish: 100.0 / 3, Sideways: 100.0 / 3, Bullish: 100.0 / 3}
	}
	return Probabilities{
		Bearish:  p.Bearish / total * 100,
		Sideways: p.Sideways / total * 100,
		Bullish:  p.Bullish / total * 100,
	}
}

func clipConfidence(c float64) float64 {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}
