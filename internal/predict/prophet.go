package predict

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"stock-prediction-api/internal/features"
)

const (
	prophetMinRows       = 30
	prophetMaxAnchors    = 50
	prophetMinTrain      = 25
	prophetChangepoints  = 25
	prophetChangeFrac    = 0.8 // changepoints live in the first 80% of history
	prophetWeeklyOrder   = 3
	prophetYearlyOrder   = 10
	prophetYearlyMinDays = 400.0 // yearly seasonality needs more than a year of data

	// Prior scales, Prophet-style: ridge penalty is the inverse scale, so
	// changepoint slopes are held stiff and seasonality stays loose.
	prophetChangepointScale = 0.08
	prophetSeasonalityScale = 15.0
	prophetRegressorScale   = 1.0
)

// prophetRegressors are the columns fed in as extra regressors, standardized
// against the training window. Raw volume is a canonical column; the rest
// are derived.
var prophetRegressors = []string{"volume", "macd", "rsi", "sma_20", "bb_width", "atr"}

// regressorColumn resolves a regressor name against the table
func regressorColumn(table *features.Table, name string) ([]float64, bool) {
	if name == "volume" {
		return table.Volume, true
	}
	if table.HasCol(name) {
		return table.Col(name), true
	}
	return nil, false
}

// ProphetModel is the decomposable trend adapter: piecewise-linear trend with
// changepoints, weekly and yearly Fourier seasonality and standardized
// feature regressors, estimated jointly by ridge regression.
type ProphetModel struct{}

// NewProphet creates the Prophet-style adapter
func NewProphet() *ProphetModel { return &ProphetModel{} }

func (m *ProphetModel) Name() string { return "prophet" }

// Forecast implements the forecast contract
func (m *ProphetModel) Forecast(ctx context.Context, table *features.Table, horizon int) (*Forecast, error) {
	n := table.Len()
	if n < prophetMinRows {
		return nil, fmt.Errorf("%w: prophet needs %d rows, got %d", ErrInsufficientData, prophetMinRows, n)
	}

	anchors := TailAnchors(n, horizon, prophetMinTrain, prophetMaxAnchors)
	eval, err := Evaluate(ctx, table, horizon, anchors, func(_ context.Context, t int) ([]float64, error) {
		sub := table.Slice(0, t)
		fit, err := fitProphet(sub)
		if err != nil {
			return nil, err
		}
		return fit.forecast(sub, horizon), nil
	})
	if err != nil {
		return nil, err
	}

	fit, err := fitProphet(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelFit, err)
	}
	preds := fit.forecast(table, horizon)

	errConf := ConfidenceFromError(eval.Metrics.MAE, eval.MeanActual)
	intConf := confidenceFromInterval(fit.sigma, eval.MeanActual)
	confidence := clipConfidence((errConf + intConf) / 2)

	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	for i, p := range preds {
		lower[i] = p - 1.96*fit.sigma
		upper[i] = p + 1.96*fit.sigma
	}

	return &Forecast{
		Predictions:   preds,
		ForecastDates: ForecastDates(table.Dates[n-1], horizon),
		Trend:         DeriveTrend(preds, confidence),
		Metrics:       eval.Metrics,
		TestResults:   eval.ToTestResults(),
		Metadata: Metadata{
			Name:        "Prophet",
			Description: "Piecewise-linear trend with Fourier seasonality and feature regressors",
			Parameters: map[string]interface{}{
				"changepoints": fit.nChangepoints,
				"weekly_order": prophetWeeklyOrder,
				"yearly_order": fit.yearlyOrder,
				"regressors":   fit.regressors,
				"lower_bound":  lower,
				"upper_bound":  upper,
			},
		},
	}, nil
}

// prophetFit is a fitted additive model
type prophetFit struct {
	t0            time.Time
	spanDays      float64 // training span, scales t into [0, 1]
	changepoints  []float64
	nChangepoints int
	yearlyOrder   int
	regressors    []string
	regMean       []float64
	regStd        []float64
	beta          []float64
	sigma         float64 // residual standard deviation
}

func fitProphet(table *features.Table) (*prophetFit, error) {
	n := table.Len()
	if n < prophetMinTrain {
		return nil, fmt.Errorf("history too short: %d", n)
	}

	t0 := table.Dates[0]
	span := table.Dates[n-1].Sub(t0).Hours() / 24
	if span <= 0 {
		span = 1
	}

	f := &prophetFit{t0: t0, spanDays: span}

	f.nChangepoints = prophetChangepoints
	if f.nChangepoints > n/4 {
		f.nChangepoints = n / 4
	}
	f.changepoints = make([]float64, f.nChangepoints)
	for j := range f.changepoints {
		f.changepoints[j] = prophetChangeFrac * float64(j+1) / float64(f.nChangepoints+1)
	}

	if span >= prophetYearlyMinDays {
		f.yearlyOrder = prophetYearlyOrder
	}

	// Only regressors the table actually carries
	for _, name := range prophetRegressors {
		if _, ok := regressorColumn(table, name); ok {
			f.regressors = append(f.regressors, name)
		}
	}
	f.regMean = make([]float64, len(f.regressors))
	f.regStd = make([]float64, len(f.regressors))
	for k, name := range f.regressors {
		col, _ := regressorColumn(table, name)
		mean, std := meanStd(col)
		if std <= 0 {
			std = 1
		}
		f.regMean[k] = mean
		f.regStd[k] = std
	}

	cols := f.numCols()
	// Ridge: augment the design with per-column sqrt(lambda) rows so the
	// system stays well posed even when rows < cols. The intercept and the
	// base slope are not penalised; each block's penalty is the inverse of
	// its prior scale.
	rows := n + cols - 2
	X := mat.NewDense(rows, cols, nil)
	y := make([]float64, rows)
	for i := 0; i < n; i++ {
		f.fillRow(X, i, table.Dates[i], regRow(table, f, i))
		y[i] = table.Close[i]
	}
	for j := 2; j < cols; j++ {
		X.Set(n+j-2, j, math.Sqrt(f.columnLambda(j)))
	}

	beta, err := olsSolve(X, y)
	if err != nil {
		return nil, err
	}
	f.beta = beta

	sse := 0.0
	for i := 0; i < n; i++ {
		e := table.Close[i] - f.predictRow(table.Dates[i], regRow(table, f, i))
		sse += e * e
	}
	f.sigma = math.Sqrt(sse / float64(n))
	return f, nil
}

func (f *prophetFit) numCols() int {
	return 2 + f.nChangepoints + 2*prophetWeeklyOrder + 2*f.yearlyOrder + len(f.regressors)
}

// columnLambda is the ridge penalty for design column j
func (f *prophetFit) columnLambda(j int) float64 {
	switch {
	case j < 2:
		return 0
	case j < 2+f.nChangepoints:
		return 1 / prophetChangepointScale
	case j < 2+f.nChangepoints+2*prophetWeeklyOrder+2*f.yearlyOrder:
		return 1 / prophetSeasonalityScale
	default:
		return 1 / prophetRegressorScale
	}
}

// fillRow writes one design-matrix row: intercept, scaled time, changepoint
// hinges, weekly and yearly Fourier terms, standardized regressors.
func (f *prophetFit) fillRow(X *mat.Dense, i int, date time.Time, reg []float64) {
	row := f.designRow(date, reg)
	for j, v := range row {
		X.Set(i, j, v)
	}
}

func (f *prophetFit) designRow(date time.Time, reg []float64) []float64 {
	days := date.Sub(f.t0).Hours() / 24
	t := days / f.spanDays

	row := make([]float64, 0, f.numCols())
	row = append(row, 1, t)
	for _, s := range f.changepoints {
		if t > s {
			row = append(row, t-s)
		} else {
			row = append(row, 0)
		}
	}
	for k := 1; k <= prophetWeeklyOrder; k++ {
		arg := 2 * math.Pi * float64(k) * days / 7
		row = append(row, math.Sin(arg), math.Cos(arg))
	}
	for k := 1; k <= f.yearlyOrder; k++ {
		arg := 2 * math.Pi * float64(k) * days / 365.25
		row = append(row, math.Sin(arg), math.Cos(arg))
	}
	for k, v := range reg {
		row = append(row, (v-f.regMean[k])/f.regStd[k])
	}
	return row
}

func (f *prophetFit) predictRow(date time.Time, reg []float64) float64 {
	row := f.designRow(date, reg)
	sum := 0.0
	for j, v := range row {
		sum += f.beta[j] * v
	}
	return sum
}

// forecast extrapolates horizon consecutive days past the end of the table.
// Regressors are not known for future rows and are held at their last
// observed values.
func (f *prophetFit) forecast(table *features.Table, horizon int) []float64 {
	n := table.Len()
	lastReg := regRow(table, f, n-1)
	last := table.Dates[n-1]

	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		out[h] = f.predictRow(last.AddDate(0, 0, h+1), lastReg)
	}
	return out
}

func regRow(table *features.Table, f *prophetFit, i int) []float64 {
	reg := make([]float64, len(f.regressors))
	for k, name := range f.regressors {
		col, _ := regressorColumn(table, name)
		reg[k] = col[i]
	}
	return reg
}

// confidenceFromInterval scores how tight the 95% band is relative to price
func confidenceFromInterval(sigma, referencePrice float64) float64 {
	if referencePrice <= 0 {
		return MinConfidence
	}
	relWidth := 2 * 1.96 * sigma / referencePrice
	return clipConfidence(95 - 250*relWidth)
}

func meanStd(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(len(x))
	ss := 0.0
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(x)))
}
