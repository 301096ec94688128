package predict

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name       string
		trajectory []float64
		want       string
	}{
		{"rising beyond band", []float64{100, 101, 102}, TrendBullish},
		{"falling beyond band", []float64{100, 99, 98}, TrendBearish},
		{"flat", []float64{100, 100.2, 100.1}, TrendSideways},
		{"exactly +1pct is sideways", []float64{100, 101}, TrendSideways},
		{"exactly -1pct is sideways", []float64{100, 99}, TrendSideways},
		{"just past +1pct", []float64{100, 101.01}, TrendBullish},
		{"just past -1pct", []float64{100, 98.99}, TrendBearish},
		{"single point", []float64{100}, TrendSideways},
		{"empty", nil, TrendSideways},
		{"zero first point", []float64{0, 50}, TrendSideways},
		{"only endpoints matter", []float64{100, 300, 100.5}, TrendSideways},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTrend(tt.trajectory))
		})
	}
}

func TestConfidenceFromError(t *testing.T) {
	// Perfect model approaches the upper clip
	assert.Equal(t, MaxConfidence, ConfidenceFromError(0, 100))
	// Large relative error hits the floor
	assert.Equal(t, MinConfidence, ConfidenceFromError(50, 100))
	// Non-positive reference degrades to the floor
	assert.Equal(t, MinConfidence, ConfidenceFromError(1, 0))
	// Intermediate value stays inside the band
	c := ConfidenceFromError(5, 100) // 100 - 200*0.05 = 90
	assert.InDelta(t, 90, c, 1e-9)
}

func TestConfidenceFromStability(t *testing.T) {
	flat := ConfidenceFromStability([]float64{100, 100, 100})
	assert.Equal(t, MaxConfidence, flat)

	wild := ConfidenceFromStability([]float64{10, 200, 5, 180})
	assert.Equal(t, MinConfidence, wild)
}

func TestDeriveProbabilitiesInvariants(t *testing.T) {
	for _, direction := range []string{TrendBearish, TrendSideways, TrendBullish} {
		for _, conf := range []float64{0, 50, 65.5, 80, 95, 200} {
			p := DeriveProbabilities(direction, conf)

			sum := p.Bearish + p.Sideways + p.Bullish
			assert.InDelta(t, 100, sum, 1e-9, "direction %s conf %v", direction, conf)

			// The classified direction must carry the largest mass
			max := math.Max(p.Bearish, math.Max(p.Sideways, p.Bullish))
			switch direction {
			case TrendBearish:
				assert.Equal(t, max, p.Bearish)
			case TrendBullish:
				assert.Equal(t, max, p.Bullish)
			default:
				assert.Equal(t, max, p.Sideways)
			}
		}
	}
}

func TestDeriveTrendConsistency(t *testing.T) {
	tr := DeriveTrend([]float64{100, 103, 106}, 80)
	assert.Equal(t, TrendBullish, tr.Direction)
	assert.Equal(t, 80.0, tr.Confidence)
	assert.InDelta(t, 80, tr.Probabilities.Bullish, 1e-9)
}

func TestClipConfidenceBounds(t *testing.T) {
	assert.Equal(t, MinConfidence, clipConfidence(-10))
	assert.Equal(t, MaxConfidence, clipConfidence(120))
	assert.Equal(t, 72.5, clipConfidence(72.5))
}

func TestForecastDates(t *testing.T) {
	last := mustDate(t, "2024-06-14")
	dates := ForecastDates(last, 5)
	assert.Len(t, dates, 5)
	assert.Equal(t, mustDate(t, "2024-06-15"), dates[0])
	for i := 1; i < len(dates); i++ {
		assert.True(t, dates[i].After(dates[i-1]), "dates must be strictly increasing")
	}
}
