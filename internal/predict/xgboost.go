package predict

import (
	"context"
	"fmt"
	"math"
	"sort"

	"stock-prediction-api/internal/features"
)

// BoostParams controls the gradient-boosted ensemble. Tests shrink the
// window and ensemble; production uses DefaultBoostParams.
type BoostParams struct {
	Window       int // lookback rows flattened into one sample
	TopFeatures  int // kept after the preliminary importance ranking
	NumRounds    int
	MaxDepth     int
	LearningRate float64
	MinLeaf      int
	Lambda       float64 // L2 on leaf weights
	Patience     int     // early-stopping rounds without val improvement
	MinExtraRows int     // rows required beyond Window+Horizon
	MaxAnchors   int
}

// DefaultBoostParams mirrors the tuned production ensemble
func DefaultBoostParams() BoostParams {
	return BoostParams{
		Window:       60,
		TopFeatures:  100,
		NumRounds:    100,
		MaxDepth:     3,
		LearningRate: 0.1,
		MinLeaf:      5,
		Lambda:       1.0,
		Patience:     10,
		MinExtraRows: 100,
		MaxAnchors:   30,
	}
}

// XGBoostModel is the gradient-boosted trees adapter. Each sample flattens
// the trailing Window rows of the feature table; a preliminary booster ranks
// the flattened features and only the top slice feeds the per-step boosters
// (direct multi-step, one booster per horizon offset) trained on relative
// close changes with early stopping against a validation split.
type XGBoostModel struct {
	params BoostParams
}

// NewXGBoost creates the boosted-trees adapter with production parameters
func NewXGBoost() *XGBoostModel { return &XGBoostModel{params: DefaultBoostParams()} }

// NewXGBoostWith creates the adapter with explicit parameters
func NewXGBoostWith(params BoostParams) *XGBoostModel { return &XGBoostModel{params: params} }

func (m *XGBoostModel) Name() string { return "xgboost" }

// Forecast implements the forecast contract
func (m *XGBoostModel) Forecast(ctx context.Context, table *features.Table, horizon int) (*Forecast, error) {
	n := table.Len()
	p := m.params
	minRows := p.Window + horizon + p.MinExtraRows
	if n < minRows {
		return nil, fmt.Errorf("%w: xgboost needs %d rows, got %d", ErrInsufficientData, minRows, n)
	}

	cols := table.Matrix(features.ColumnNames)
	fitted, err := m.fit(ctx, table, cols, horizon)
	if err != nil {
		return nil, err
	}

	predictAt := func(_ context.Context, t int) ([]float64, error) {
		return fitted.predictAt(cols, table.Close, horizon, t), nil
	}

	// Evaluate on the held-back test tail only; neither training nor
	// early stopping saw those rows.
	testStart := fitted.firstAnchor + fitted.valEnd
	anchors := RangeAnchors(n, horizon, testStart, n-horizon+1)
	if p.MaxAnchors > 0 && len(anchors) > p.MaxAnchors {
		anchors = anchors[len(anchors)-p.MaxAnchors:]
	}
	eval, err := Evaluate(ctx, table, horizon, anchors, predictAt)
	if err != nil {
		return nil, err
	}

	preds := fitted.predictAt(cols, table.Close, horizon, n)
	confidence := ConfidenceFromError(eval.Metrics.MAE, eval.MeanActual)

	return &Forecast{
		Predictions:   preds,
		ForecastDates: ForecastDates(table.Dates[n-1], horizon),
		Trend:         DeriveTrend(preds, confidence),
		Metrics:       eval.Metrics,
		TestResults:   eval.ToTestResults(),
		Metadata: Metadata{
			Name:        "XGBoost",
			Description: "Gradient-boosted regression trees over flattened feature windows, one booster per forecast step",
			Parameters: map[string]interface{}{
				"window":             p.Window,
				"selected_features":  len(fitted.keep),
				"max_depth":          p.MaxDepth,
				"learning_rate":      p.LearningRate,
				"num_rounds":         p.NumRounds,
				"best_rounds":        fitted.bestRounds,
				"feature_importance": fitted.importance,
			},
		},
	}, nil
}

// boostedFit is the trained ensemble plus the split geometry it was fit on.
// Only samples before valEnd ever reach training or early stopping; rows at
// and past firstAnchor+valEnd+horizon-1 are entirely unseen.
type boostedFit struct {
	flat        *flattener
	keep        []int
	boosters    []*booster
	bestRounds  []int
	importance  map[string]float64
	firstAnchor int
	trainEnd    int
	valEnd      int
}

func (m *XGBoostModel) fit(ctx context.Context, table *features.Table, cols [][]float64, horizon int) (*boostedFit, error) {
	n := table.Len()
	p := m.params
	flat := newFlattener(features.ColumnNames, p.Window)

	// Sample at anchor t: rows [t-Window, t) flattened, targets the
	// relative change of the close at rows t .. t+H-1.
	firstAnchor := p.Window
	lastAnchor := n - horizon
	numSamples := lastAnchor - firstAnchor + 1

	X := make([][]float64, numSamples)
	Y := make([][]float64, numSamples)
	for s := 0; s < numSamples; s++ {
		t := firstAnchor + s
		X[s] = flat.row(cols, t)
		base := table.Close[t-1]
		y := make([]float64, horizon)
		for h := 0; h < horizon; h++ {
			y[h] = table.Close[t+h]/base - 1
		}
		Y[s] = y
	}

	// Chronological 80/10/10 split
	trainEnd := numSamples * 8 / 10
	valEnd := numSamples * 9 / 10
	if trainEnd < 2*p.MinLeaf || valEnd <= trainEnd {
		return nil, fmt.Errorf("%w: xgboost splits too small for %d samples", ErrInsufficientData, numSamples)
	}

	col := func(Y [][]float64, h, lo, hi int) []float64 {
		out := make([]float64, hi-lo)
		for i := range out {
			out[i] = Y[lo+i][h]
		}
		return out
	}

	// Preliminary booster on the one-step target ranks the flattened
	// features; the per-step boosters only see the top slice.
	prelim, err := trainBooster(ctx, X[:trainEnd], col(Y, 0, 0, trainEnd), X[trainEnd:valEnd], col(Y, 0, trainEnd, valEnd), p)
	if err != nil {
		return nil, fmt.Errorf("%w: feature ranking: %v", ErrModelFit, err)
	}
	keep := topFeatures(prelim, len(X[0]), p.TopFeatures)

	Xsel := make([][]float64, numSamples)
	for s := range X {
		Xsel[s] = selectFeatures(X[s], keep)
	}

	boosters := make([]*booster, horizon)
	importance := map[string]float64{}
	bestRounds := make([]int, horizon)
	for h := 0; h < horizon; h++ {
		b, err := trainBooster(ctx, Xsel[:trainEnd], col(Y, h, 0, trainEnd), Xsel[trainEnd:valEnd], col(Y, h, trainEnd, valEnd), p)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrModelFit, h+1, err)
		}
		boosters[h] = b
		bestRounds[h] = len(b.trees)
		b.accumulateGain(importance, keep, flat)
	}
	normaliseImportance(importance)

	return &boostedFit{
		flat:        flat,
		keep:        keep,
		boosters:    boosters,
		bestRounds:  bestRounds,
		importance:  importance,
		firstAnchor: firstAnchor,
		trainEnd:    trainEnd,
		valEnd:      valEnd,
	}, nil
}

// predictAt applies the fitted boosters to the window ending at row t
func (f *boostedFit) predictAt(cols [][]float64, close []float64, horizon, t int) []float64 {
	row := selectFeatures(f.flat.row(cols, t), f.keep)
	base := close[t-1]
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		out[h] = base * (1 + f.boosters[h].predict(row))
	}
	return out
}

// flattener maps (lag, column) pairs into flat sample vectors and back
type flattener struct {
	names  []string
	window int
}

func newFlattener(names []string, window int) *flattener {
	return &flattener{names: names, window: window}
}

// row flattens rows [t-window, t) column-major by lag: oldest row first
func (f *flattener) row(cols [][]float64, t int) []float64 {
	out := make([]float64, 0, f.window*len(f.names))
	for r := t - f.window; r < t; r++ {
		out = append(out, cols[r]...)
	}
	return out
}

// name labels a flat feature index as column[t-k]
func (f *flattener) name(idx int) string {
	lag := f.window - idx/len(f.names) // 1 = most recent row
	return fmt.Sprintf("%s[t-%d]", f.names[idx%len(f.names)], lag)
}

// topFeatures ranks flat indices by the preliminary booster's gain
func topFeatures(prelim *booster, numFeatures, k int) []int {
	gain := make([]float64, numFeatures)
	for _, t := range prelim.trees {
		t.walkGainIndexed(gain)
	}
	idx := make([]int, numFeatures)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return gain[idx[a]] > gain[idx[b]] })
	if k > numFeatures {
		k = numFeatures
	}
	keep := append([]int(nil), idx[:k]...)
	sort.Ints(keep)
	return keep
}

func selectFeatures(row []float64, keep []int) []float64 {
	out := make([]float64, len(keep))
	for i, j := range keep {
		out[i] = row[j]
	}
	return out
}

// booster is a trained gradient-boosted ensemble for one forecast step
type booster struct {
	base  float64
	lr    float64
	trees []*treeNode
}

func trainBooster(ctx context.Context, X [][]float64, y []float64, valX [][]float64, valY []float64, params BoostParams) (*booster, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("empty or mismatched training set")
	}

	b := &booster{lr: params.LearningRate}
	for _, v := range y {
		b.base += v
	}
	b.base /= float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = b.base
	}
	valPred := make([]float64, len(valY))
	for i := range valPred {
		valPred[i] = b.base
	}

	indices := make([]int, len(y))
	for i := range indices {
		indices[i] = i
	}

	bestRMSE := math.Inf(1)
	bestRound := 0
	resid := make([]float64, len(y))
	for round := 0; round < params.NumRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range y {
			resid[i] = y[i] - pred[i]
		}
		tree := buildTree(X, resid, indices, 0, params)
		b.trees = append(b.trees, tree)
		for i := range y {
			pred[i] += b.lr * tree.predict(X[i])
		}

		if len(valY) == 0 {
			bestRound = round + 1
			continue
		}
		sse := 0.0
		for i := range valY {
			valPred[i] += b.lr * tree.predict(valX[i])
			e := valY[i] - valPred[i]
			sse += e * e
		}
		rmse := math.Sqrt(sse / float64(len(valY)))
		if rmse < bestRMSE-1e-12 {
			bestRMSE = rmse
			bestRound = round + 1
		} else if round+1-bestRound >= params.Patience {
			break
		}
	}
	b.trees = b.trees[:bestRound]
	return b, nil
}

func (b *booster) predict(row []float64) float64 {
	sum := b.base
	for _, t := range b.trees {
		sum += b.lr * t.predict(row)
	}
	return sum
}

// accumulateGain adds this booster's split gains into the shared tally,
// translating selected-feature indices back to named columns.
func (b *booster) accumulateGain(importance map[string]float64, keep []int, flat *flattener) {
	gain := make([]float64, len(keep))
	for _, t := range b.trees {
		t.walkGainIndexed(gain)
	}
	for i, g := range gain {
		if g > 0 {
			importance[flat.name(keep[i])] += g
		}
	}
}

func normaliseImportance(importance map[string]float64) {
	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total <= 0 {
		return
	}
	for k, v := range importance {
		importance[k] = 100 * v / total
	}
}

// treeNode is a regression tree node; leaves carry the shrunk mean residual
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	gain      float64
	left      *treeNode
	right     *treeNode
}

func buildTree(X [][]float64, resid []float64, indices []int, depth int, params BoostParams) *treeNode {
	sum := 0.0
	for _, i := range indices {
		sum += resid[i]
	}
	// xgboost-style leaf weight with L2 shrinkage
	leafValue := sum / (float64(len(indices)) + params.Lambda)

	if depth >= params.MaxDepth || len(indices) < 2*params.MinLeaf {
		return &treeNode{leaf: true, value: leafValue}
	}

	feature, threshold, gain, ok := bestSplit(X, resid, indices, params)
	if !ok {
		return &treeNode{leaf: true, value: leafValue}
	}

	var left, right []int
	for _, i := range indices {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		gain:      gain,
		left:      buildTree(X, resid, left, depth+1, params),
		right:     buildTree(X, resid, right, depth+1, params),
	}
}

// bestSplit scans every feature with a sorted sweep, scoring splits by the
// reduction in sum of squared residuals.
func bestSplit(X [][]float64, resid []float64, indices []int, params BoostParams) (int, float64, float64, bool) {
	n := len(indices)
	totalSum, totalSq := 0.0, 0.0
	for _, i := range indices {
		totalSum += resid[i]
		totalSq += resid[i] * resid[i]
	}
	parentSSE := totalSq - totalSum*totalSum/float64(n)

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	sorted := make([]int, n)

	numFeatures := len(X[indices[0]])
	for f := 0; f < numFeatures; f++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		leftSum, leftSq := 0.0, 0.0
		for k := 0; k < n-1; k++ {
			i := sorted[k]
			leftSum += resid[i]
			leftSq += resid[i] * resid[i]

			// Split only between distinct feature values
			if X[i][f] == X[sorted[k+1]][f] {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < params.MinLeaf || nr < params.MinLeaf {
				continue
			}
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			childSSE := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			gain := parentSSE - childSSE
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (X[i][f] + X[sorted[k+1]][f]) / 2
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestGain, true
}

func (t *treeNode) predict(row []float64) float64 {
	for !t.leaf {
		if row[t.feature] <= t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

func (t *treeNode) walkGainIndexed(gain []float64) {
	if t.leaf {
		return
	}
	gain[t.feature] += t.gain
	t.left.walkGainIndexed(gain)
	t.right.walkGainIndexed(gain)
}
