package predict

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"stock-prediction-api/internal/features"
)

// Order-search grid. d is fixed at 1: daily closes are integrated of order
// one and the legacy multi-step branch never searched beyond it.
var (
	arimaPGrid = []int{1, 2, 5}
	arimaQGrid = []int{0, 1}
)

const (
	arimaMinRows    = 30
	arimaSearchObs  = 200 // order search window
	arimaMaxAnchors = 30
	arimaMinTrain   = 20
)

// ARIMAModel is the autoregressive integrated adapter. It differences the
// close series once, grid-searches (p, q) by AIC and forecasts by recursive
// extrapolation of the fitted ARMA on differences.
type ARIMAModel struct{}

// NewARIMA creates the ARIMA adapter
func NewARIMA() *ARIMAModel { return &ARIMAModel{} }

func (m *ARIMAModel) Name() string { return "arima" }

// Forecast implements the forecast contract
func (m *ARIMAModel) Forecast(ctx context.Context, table *features.Table, horizon int) (*Forecast, error) {
	n := table.Len()
	if n < arimaMinRows {
		return nil, fmt.Errorf("%w: arima needs %d rows, got %d", ErrInsufficientData, arimaMinRows, n)
	}

	anchors := TailAnchors(n, horizon, arimaMinTrain, arimaMaxAnchors)
	eval, err := Evaluate(ctx, table, horizon, anchors, func(_ context.Context, t int) ([]float64, error) {
		return arimaFitForecast(table.Close[:t], horizon)
	})
	if err != nil {
		return nil, err
	}

	// Final forecast refits on the entire table
	preds, order, err := arimaFitForecastOrder(table.Close, horizon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelFit, err)
	}

	confidence := ConfidenceFromError(eval.Metrics.MAE, eval.MeanActual)

	return &Forecast{
		Predictions:   preds,
		ForecastDates: ForecastDates(table.Dates[n-1], horizon),
		Trend:         DeriveTrend(preds, confidence),
		Metrics:       eval.Metrics,
		TestResults:   eval.ToTestResults(),
		Metadata: Metadata{
			Name:        "ARIMA",
			Description: "Autoregressive integrated moving average with AIC order selection",
			Parameters: map[string]interface{}{
				"p": order.p, "d": 1, "q": order.q,
				"search_window": arimaSearchObs,
			},
		},
	}, nil
}

type arimaOrder struct{ p, q int }

// arimaFitForecast fits on the given history and forecasts horizon steps
func arimaFitForecast(closes []float64, horizon int) ([]float64, error) {
	preds, _, err := arimaFitForecastOrder(closes, horizon)
	return preds, err
}

func arimaFitForecastOrder(closes []float64, horizon int) ([]float64, arimaOrder, error) {
	if len(closes) < arimaMinTrain {
		return nil, arimaOrder{}, fmt.Errorf("history too short: %d", len(closes))
	}

	// Search on the recent window only; older regimes dominate the
	// criterion otherwise.
	window := closes
	if len(window) > arimaSearchObs {
		window = window[len(window)-arimaSearchObs:]
	}
	diffs := difference(window)

	best := arimaOrder{p: 1, q: 0}
	bestAIC := math.Inf(1)
	var bestFit *armaFit
	for _, p := range arimaPGrid {
		for _, q := range arimaQGrid {
			fit, err := fitARMA(diffs, p, q)
			if err != nil {
				continue
			}
			if fit.aic < bestAIC {
				bestAIC = fit.aic
				best = arimaOrder{p: p, q: q}
				bestFit = fit
			}
		}
	}
	if bestFit == nil {
		return nil, best, fmt.Errorf("no ARMA order converged")
	}

	diffPreds := bestFit.forecast(horizon)
	preds := make([]float64, horizon)
	level := closes[len(closes)-1]
	for i, d := range diffPreds {
		level += d
		preds[i] = level
	}
	return preds, best, nil
}

// armaFit holds the estimated ARMA(p, q) on a differenced series
type armaFit struct {
	p, q      int
	intercept float64
	arCoef    []float64
	maCoef    []float64
	series    []float64 // fitted series, for forecast lags
	resid     []float64 // in-sample residuals, aligned with series
	aic       float64
}

// fitARMA estimates ARMA coefficients by conditional least squares. Pure AR
// orders solve directly; mixed orders use the Hannan-Rissanen two stage:
// residuals from a long AR regression stand in for the unobserved shocks.
func fitARMA(x []float64, p, q int) (*armaFit, error) {
	n := len(x)
	minNeeded := p + q + 5
	if n < minNeeded+p+q {
		return nil, fmt.Errorf("series too short for ARMA(%d,%d)", p, q)
	}

	var resid []float64
	if q > 0 {
		longAR := p + q + 3
		if longAR > n/3 {
			longAR = n / 3
		}
		if longAR < 1 {
			return nil, fmt.Errorf("series too short for long AR stage")
		}
		longFit, err := fitAR(x, longAR)
		if err != nil {
			return nil, err
		}
		resid = longFit.residuals(x)
	}

	start := p
	if q > start {
		start = q
	}
	rows := n - start
	cols := 1 + p + q
	if rows <= cols {
		return nil, fmt.Errorf("not enough rows for ARMA(%d,%d)", p, q)
	}

	X := mat.NewDense(rows, cols, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		t := start + i
		y[i] = x[t]
		X.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			X.Set(i, 1+j, x[t-1-j])
		}
		for j := 0; j < q; j++ {
			X.Set(i, 1+p+j, resid[t-1-j])
		}
	}

	beta, err := olsSolve(X, y)
	if err != nil {
		return nil, err
	}

	fit := &armaFit{
		p:         p,
		q:         q,
		intercept: beta[0],
		arCoef:    beta[1 : 1+p],
		maCoef:    beta[1+p:],
		series:    x,
	}

	// In-sample residuals and AIC from the conditional sum of squares
	sse := 0.0
	fit.resid = make([]float64, n)
	if resid != nil {
		copy(fit.resid, resid)
	}
	for i := 0; i < rows; i++ {
		t := start + i
		pred := fit.intercept
		for j := 0; j < p; j++ {
			pred += fit.arCoef[j] * x[t-1-j]
		}
		for j := 0; j < q; j++ {
			pred += fit.maCoef[j] * fit.resid[t-1-j]
		}
		e := x[t] - pred
		fit.resid[t] = e
		sse += e * e
	}
	if sse <= 0 {
		sse = 1e-12
	}
	fit.aic = float64(rows)*math.Log(sse/float64(rows)) + 2*float64(cols)
	return fit, nil
}

// forecast iterates the recursion with future shocks at zero
func (f *armaFit) forecast(horizon int) []float64 {
	histLen := len(f.series)
	extended := append([]float64(nil), f.series...)
	resid := append([]float64(nil), f.resid...)

	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		t := histLen + h
		pred := f.intercept
		for j := 0; j < f.p; j++ {
			pred += f.arCoef[j] * extended[t-1-j]
		}
		for j := 0; j < f.q; j++ {
			idx := t - 1 - j
			if idx < len(resid) {
				pred += f.maCoef[j] * resid[idx]
			}
		}
		extended = append(extended, pred)
		resid = append(resid, 0)
		out[h] = pred
	}
	return out
}

// arFit is the long-AR stage of Hannan-Rissanen
type arFit struct {
	order     int
	intercept float64
	coef      []float64
}

func fitAR(x []float64, order int) (*arFit, error) {
	n := len(x)
	rows := n - order
	cols := 1 + order
	if rows <= cols {
		return nil, fmt.Errorf("series too short for AR(%d)", order)
	}
	X := mat.NewDense(rows, cols, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		t := order + i
		y[i] = x[t]
		X.Set(i, 0, 1)
		for j := 0; j < order; j++ {
			X.Set(i, 1+j, x[t-1-j])
		}
	}
	beta, err := olsSolve(X, y)
	if err != nil {
		return nil, err
	}
	return &arFit{order: order, intercept: beta[0], coef: beta[1:]}, nil
}

// residuals computes in-sample residuals, zero inside the warm-up
func (f *arFit) residuals(x []float64) []float64 {
	resid := make([]float64, len(x))
	for t := f.order; t < len(x); t++ {
		pred := f.intercept
		for j := 0; j < f.order; j++ {
			pred += f.coef[j] * x[t-1-j]
		}
		resid[t] = x[t] - pred
	}
	return resid
}

// difference returns the first difference of a series
func difference(x []float64) []float64 {
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// olsSolve solves the least-squares system X beta = y via QR
func olsSolve(X *mat.Dense, y []float64) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(X)

	b := mat.NewDense(len(y), 1, y)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return nil, fmt.Errorf("least squares solve failed: %w", err)
	}

	_, cols := X.Dims()
	beta := make([]float64, cols)
	for i := range beta {
		beta[i] = sol.At(i, 0)
	}
	return beta, nil
}
