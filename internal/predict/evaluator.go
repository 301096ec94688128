package predict

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"stock-prediction-api/internal/features"
)

// maxAuditWindows caps how many walk-forward windows the envelope surfaces
const maxAuditWindows = 10

// PredictAtFunc produces the H-step trajectory anchored at row t: a forecast
// for rows [t, t+H) that may only depend on rows < t. Refit-style adapters
// refit on table.Slice(0, t); train-once adapters apply frozen models to the
// trailing window ending at t.
type PredictAtFunc func(ctx context.Context, t int) ([]float64, error)

// EvalWindow is one audited (predicted, actual) trajectory pair
type EvalWindow struct {
	Anchor      int
	Predictions []float64
	Actual      []float64
	Dates       []time.Time
}

// EvalResult aggregates walk-forward statistics across anchors
type EvalResult struct {
	Metrics Metrics
	Windows []EvalWindow // last min(10, n) anchors

	// MeanActual is the mean close over all evaluated actuals; reference
	// level for error-calibrated confidence.
	MeanActual float64
}

// TailAnchors returns up to maxAnchors anchor indices ending at the last
// position that still leaves a full actual trajectory, stepping backwards
// from the end. minTrain bounds the earliest anchor so every forecast has
// history to fit on.
func TailAnchors(n, horizon, minTrain, maxAnchors int) []int {
	last := n - horizon
	if last <= minTrain {
		return nil
	}
	first := minTrain
	if maxAnchors > 0 && last-first > maxAnchors {
		first = last - maxAnchors
	}
	anchors := make([]int, 0, last-first)
	for t := first; t < last; t++ {
		anchors = append(anchors, t)
	}
	return anchors
}

// RangeAnchors returns every anchor in [start, end) that leaves a full
// actual trajectory within the table.
func RangeAnchors(n, horizon, start, end int) []int {
	if end > n-horizon+1 {
		end = n - horizon + 1
	}
	anchors := make([]int, 0)
	for t := start; t < end; t++ {
		if t >= 0 && t+horizon <= n {
			anchors = append(anchors, t)
		}
	}
	return anchors
}

// Evaluate runs the walk-forward simulation: for each anchor it obtains the
// adapter's trajectory and pairs it with the actual closes at
// [anchor, anchor+horizon). Per-anchor failures skip the anchor; producing
// zero complete pairs is ErrHorizonInconsistency. Cancellation is honoured
// between anchors.
func Evaluate(ctx context.Context, table *features.Table, horizon int, anchors []int, predictAt PredictAtFunc) (*EvalResult, error) {
	windows := make([]EvalWindow, 0, len(anchors))

	for _, t := range anchors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t+horizon > table.Len() {
			continue
		}

		preds, err := predictAt(ctx, t)
		if err != nil || len(preds) != horizon {
			continue
		}
		finite := true
		for _, v := range preds {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				finite = false
				break
			}
		}
		if !finite {
			continue
		}

		windows = append(windows, EvalWindow{
			Anchor:      t,
			Predictions: preds,
			Actual:      append([]float64(nil), table.Close[t:t+horizon]...),
			Dates:       append([]time.Time(nil), table.Dates[t:t+horizon]...),
		})
	}

	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: %d anchors attempted", ErrHorizonInconsistency, len(anchors))
	}

	return &EvalResult{
		Metrics:    computeMetrics(windows),
		Windows:    lastWindows(windows, maxAuditWindows),
		MeanActual: meanActual(windows),
	}, nil
}

// computeMetrics derives the evaluation bundle from all window pairs
func computeMetrics(windows []EvalWindow) Metrics {
	var absErr, sqErr, pctErr float64
	var nPoints, nPctPoints int
	var dirSum, trendSum float64

	for _, w := range windows {
		for i := range w.Actual {
			diff := w.Actual[i] - w.Predictions[i]
			absErr += math.Abs(diff)
			sqErr += diff * diff
			nPoints++
			if w.Actual[i] != 0 {
				pct := math.Abs(diff / w.Actual[i]) * 100
				if !math.IsNaN(pct) && !math.IsInf(pct, 0) {
					pctErr += pct
					nPctPoints++
				}
			}
		}
		dirSum += directionalMatch(w.Predictions, w.Actual)
		if ClassifyTrend(w.Predictions) == ClassifyTrend(w.Actual) {
			trendSum++
		}
	}

	m := Metrics{}
	if nPoints > 0 {
		m.MAE = absErr / float64(nPoints)
		m.RMSE = math.Sqrt(sqErr / float64(nPoints))
	}
	if nPctPoints > 0 {
		m.MAPE = pctErr / float64(nPctPoints)
	}
	m.DirectionalAccuracy = dirSum / float64(len(windows)) * 100
	m.TrendAccuracy = trendSum / float64(len(windows)) * 100
	return m
}

// directionalMatch is the fraction of adjacent-day moves whose sign agrees
// between the predicted and actual trajectory.
func directionalMatch(pred, actual []float64) float64 {
	if len(pred) < 2 {
		return 0
	}
	matches := 0
	for i := 1; i < len(pred); i++ {
		predSign := sign(pred[i] - pred[i-1])
		actSign := sign(actual[i] - actual[i-1])
		if predSign == actSign {
			matches++
		}
	}
	return float64(matches) / float64(len(pred)-1)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func meanActual(windows []EvalWindow) float64 {
	var all []float64
	for _, w := range windows {
		all = append(all, w.Actual...)
	}
	if len(all) == 0 {
		return 0
	}
	return stat.Mean(all, nil)
}

func lastWindows(windows []EvalWindow, k int) []EvalWindow {
	if len(windows) <= k {
		return windows
	}
	return windows[len(windows)-k:]
}

// ToTestResults converts audited windows into the envelope shape
func (r *EvalResult) ToTestResults() TestResults {
	tr := TestResults{
		Predictions: make([][]float64, len(r.Windows)),
		Actual:      make([][]float64, len(r.Windows)),
		Dates:       make([][]time.Time, len(r.Windows)),
	}
	for i, w := range r.Windows {
		tr.Predictions[i] = w.Predictions
		tr.Actual[i] = w.Actual
		tr.Dates[i] = w.Dates
	}
	return tr
}
