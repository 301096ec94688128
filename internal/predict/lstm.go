package predict

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"stock-prediction-api/internal/features"
)

// lstmFeatures is the fixed input subset; min-max scaled per column
var lstmFeatures = []string{
	"close", "volume",
	"returns", "sma_10", "ema_12", "macd", "rsi", "bb_width", "atr", "momentum_5",
}

// LSTMParams controls the recurrent network. Tests shrink the layers and
// epochs; production uses DefaultLSTMParams.
type LSTMParams struct {
	SeqLen            int
	Hidden            []int // stacked bidirectional layer sizes
	Dense             []int // trunk after the recurrent stack
	Dropout           float64
	LearningRate      float64
	ClipNorm          float64
	BatchSize         int
	MaxEpochs         int
	EarlyStopPatience int
	PlateauPatience   int
	PlateauFactor     float64
	MinLR             float64
	TrendLossWeight   float64
	MinExtraRows      int // rows required beyond SeqLen+Horizon
	MaxAnchors        int
	Seed              int64
}

// DefaultLSTMParams mirrors the tuned production network
func DefaultLSTMParams() LSTMParams {
	return LSTMParams{
		SeqLen:            30,
		Hidden:            []int{256, 128, 64},
		Dense:             []int{128, 64},
		Dropout:           0.2,
		LearningRate:      1e-3,
		ClipNorm:          1.0,
		BatchSize:         16,
		MaxEpochs:         100,
		EarlyStopPatience: 15,
		PlateauPatience:   7,
		PlateauFactor:     0.5,
		MinLR:             1e-5,
		TrendLossWeight:   0.5,
		MinExtraRows:      100,
		MaxAnchors:        30,
		Seed:              42,
	}
}

// LSTMModel is the recurrent adapter: a stacked bidirectional LSTM with
// batch normalisation and dropout, a dense trunk and two heads, one
// regressing the scaled close trajectory (MSE) and one classifying the
// horizon trend (cross-entropy). The trend head overrides the derived
// direction and probabilities in the envelope.
type LSTMModel struct {
	params LSTMParams
}

// NewLSTM creates the recurrent adapter with production parameters
func NewLSTM() *LSTMModel { return &LSTMModel{params: DefaultLSTMParams()} }

// NewLSTMWith creates the adapter with explicit parameters
func NewLSTMWith(params LSTMParams) *LSTMModel { return &LSTMModel{params: params} }

func (m *LSTMModel) Name() string { return "lstm" }

// Forecast implements the forecast contract
func (m *LSTMModel) Forecast(ctx context.Context, table *features.Table, horizon int) (*Forecast, error) {
	n := table.Len()
	p := m.params
	minRows := p.SeqLen + horizon + p.MinExtraRows
	if n < minRows {
		return nil, fmt.Errorf("%w: lstm needs %d rows, got %d", ErrInsufficientData, minRows, n)
	}

	// Scalers are fit on the full table; the resulting leak into the
	// held-out tail is bounded by column min/max and accepted for parity
	// with the batch pipeline this replaces.
	rows := table.Matrix(lstmFeatures)
	scalers := make([]minMaxScaler, len(lstmFeatures))
	for k := range lstmFeatures {
		col := make([]float64, n)
		for i := range rows {
			col[i] = rows[i][k]
		}
		scalers[k] = fitMinMax(col)
	}
	for i := range rows {
		for k := range lstmFeatures {
			rows[i][k] = scalers[k].scale(rows[i][k])
		}
	}
	closeScaler := scalers[0]

	// Samples anchored at t: rows [t-SeqLen, t) in, scaled closes for
	// rows t .. t+H-1 and the horizon trend class out.
	firstAnchor := p.SeqLen
	lastAnchor := n - horizon
	numSamples := lastAnchor - firstAnchor + 1

	seqs := make([][][]float64, numSamples)
	priceTargets := make([][]float64, numSamples)
	trendTargets := make([]int, numSamples)
	for s := 0; s < numSamples; s++ {
		t := firstAnchor + s
		seqs[s] = rows[t-p.SeqLen : t]
		target := make([]float64, horizon)
		for h := 0; h < horizon; h++ {
			target[h] = closeScaler.scale(table.Close[t+h])
		}
		priceTargets[s] = target
		trendTargets[s] = trendClassIndex(table.Close[t-1], table.Close[t+horizon-1])
	}

	trainEnd := numSamples * 8 / 10
	valEnd := numSamples * 9 / 10
	if trainEnd < p.BatchSize || valEnd <= trainEnd {
		return nil, fmt.Errorf("%w: lstm splits too small for %d samples", ErrInsufficientData, numSamples)
	}

	net := newLSTMNet(len(lstmFeatures), horizon, p)
	epochs, err := net.train(ctx, seqs[:trainEnd], priceTargets[:trainEnd], trendTargets[:trainEnd],
		seqs[trainEnd:valEnd], priceTargets[trainEnd:valEnd], trendTargets[trainEnd:valEnd])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelFit, err)
	}

	predictAt := func(_ context.Context, t int) ([]float64, error) {
		scaled, _ := net.infer(rows[t-p.SeqLen : t])
		out := make([]float64, horizon)
		for h, v := range scaled {
			out[h] = closeScaler.inverse(v)
		}
		return out, nil
	}

	// Evaluate on the held-back test tail only; neither training nor
	// early stopping saw those rows.
	testStart := firstAnchor + valEnd
	anchors := RangeAnchors(n, horizon, testStart, n-horizon+1)
	if p.MaxAnchors > 0 && len(anchors) > p.MaxAnchors {
		anchors = anchors[len(anchors)-p.MaxAnchors:]
	}
	eval, err := Evaluate(ctx, table, horizon, anchors, predictAt)
	if err != nil {
		return nil, err
	}

	scaled, trendProbs := net.infer(rows[n-p.SeqLen : n])
	preds := make([]float64, horizon)
	for h, v := range scaled {
		preds[h] = closeScaler.inverse(v)
	}

	// The classifier head decides the trend; its softmax becomes the
	// probability vector directly.
	probs := Probabilities{
		Bearish:  trendProbs[0] * 100,
		Sideways: trendProbs[1] * 100,
		Bullish:  trendProbs[2] * 100,
	}.normalise()
	direction := trendClassName(argmax3(trendProbs))
	confidence := clipConfidence(maxOf3(trendProbs) * 100)

	return &Forecast{
		Predictions:   preds,
		ForecastDates: ForecastDates(table.Dates[n-1], horizon),
		Trend: Trend{
			Direction:     direction,
			Confidence:    confidence,
			Probabilities: probs,
		},
		Metrics:     eval.Metrics,
		TestResults: eval.ToTestResults(),
		Metadata: Metadata{
			Name:        "LSTM",
			Description: "Stacked bidirectional LSTM with price and trend heads",
			Parameters: map[string]interface{}{
				"seq_len":       p.SeqLen,
				"hidden_layers": p.Hidden,
				"dense_layers":  p.Dense,
				"dropout":       p.Dropout,
				"batch_size":    p.BatchSize,
				"epochs_run":    epochs,
			},
		},
	}, nil
}

// trendClassIndex buckets the horizon move with the same dead-band the
// classifier uses: 0 bearish, 1 sideways, 2 bullish.
func trendClassIndex(base, final float64) int {
	if base == 0 {
		return 1
	}
	pct := (final - base) / base * 100
	switch {
	case pct > TrendThresholdPct:
		return 2
	case pct < -TrendThresholdPct:
		return 0
	default:
		return 1
	}
}

func trendClassName(idx int) string {
	switch idx {
	case 0:
		return TrendBearish
	case 2:
		return TrendBullish
	default:
		return TrendSideways
	}
}

func argmax3(p [3]float64) int {
	best := 0
	for i := 1; i < 3; i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

func maxOf3(p [3]float64) float64 {
	return p[argmax3(p)]
}

// minMaxScaler maps a column into [0, 1]
type minMaxScaler struct {
	min, span float64
}

func fitMinMax(x []float64) minMaxScaler {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	return minMaxScaler{min: lo, span: span}
}

func (s minMaxScaler) scale(v float64) float64 { return (v - s.min) / s.span }

func (s minMaxScaler) inverse(v float64) float64 { return v*s.span + s.min }

// ---- network internals ----

// tensor is a dense parameter matrix with gradient and Adam moments
type tensor struct {
	rows, cols int
	w, dw      []float64
	m, v       []float64
}

func newTensor(rows, cols int, rng *rand.Rand, scale float64) *tensor {
	t := &tensor{
		rows: rows, cols: cols,
		w:  make([]float64, rows*cols),
		dw: make([]float64, rows*cols),
		m:  make([]float64, rows*cols),
		v:  make([]float64, rows*cols),
	}
	for i := range t.w {
		t.w[i] = (rng.Float64()*2 - 1) * scale
	}
	return t
}

// mulVec computes W x
func (t *tensor) mulVec(x []float64) []float64 {
	out := make([]float64, t.rows)
	for r := 0; r < t.rows; r++ {
		sum := 0.0
		base := r * t.cols
		for c, xv := range x {
			sum += t.w[base+c] * xv
		}
		out[r] = sum
	}
	return out
}

// addOuter accumulates dy x^T into the gradient
func (t *tensor) addOuter(dy, x []float64) {
	for r, dv := range dy {
		base := r * t.cols
		for c, xv := range x {
			t.dw[base+c] += dv * xv
		}
	}
}

// mulVecT accumulates W^T dy into dst
func (t *tensor) mulVecT(dy, dst []float64) {
	for r, dv := range dy {
		base := r * t.cols
		for c := 0; c < t.cols; c++ {
			dst[c] += t.w[base+c] * dv
		}
	}
}

// lstmDir is one direction of a bidirectional layer
type lstmDir struct {
	in, hidden int
	wx, wh, b  *tensor
}

func newLSTMDir(in, hidden int, rng *rand.Rand) *lstmDir {
	scale := math.Sqrt(1.0 / float64(in+hidden))
	d := &lstmDir{
		in: in, hidden: hidden,
		wx: newTensor(4*hidden, in, rng, scale),
		wh: newTensor(4*hidden, hidden, rng, scale),
		b:  newTensor(4*hidden, 1, rng, 0),
	}
	// Forget-gate bias starts open
	for i := hidden; i < 2*hidden; i++ {
		d.b.w[i] = 1
	}
	return d
}

// lstmStep caches one timestep for backprop
type lstmStep struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	c, tanhC        []float64
}

// forward runs the sequence and returns per-timestep hidden states
func (d *lstmDir) forward(seq [][]float64) ([][]float64, []lstmStep) {
	h := make([]float64, d.hidden)
	c := make([]float64, d.hidden)
	outs := make([][]float64, len(seq))
	steps := make([]lstmStep, len(seq))

	for t, x := range seq {
		pre := d.wx.mulVec(x)
		rec := d.wh.mulVec(h)
		for k := range pre {
			pre[k] += rec[k] + d.b.w[k]
		}

		st := lstmStep{
			x: x, hPrev: h, cPrev: c,
			i: make([]float64, d.hidden), f: make([]float64, d.hidden),
			g: make([]float64, d.hidden), o: make([]float64, d.hidden),
			c: make([]float64, d.hidden), tanhC: make([]float64, d.hidden),
		}
		hNew := make([]float64, d.hidden)
		for k := 0; k < d.hidden; k++ {
			st.i[k] = sigmoid(pre[k])
			st.f[k] = sigmoid(pre[d.hidden+k])
			st.g[k] = math.Tanh(pre[2*d.hidden+k])
			st.o[k] = sigmoid(pre[3*d.hidden+k])
			st.c[k] = st.f[k]*c[k] + st.i[k]*st.g[k]
			st.tanhC[k] = math.Tanh(st.c[k])
			hNew[k] = st.o[k] * st.tanhC[k]
		}
		h, c = hNew, st.c
		outs[t] = hNew
		steps[t] = st
	}
	return outs, steps
}

// backward propagates per-timestep output gradients, accumulating parameter
// gradients and returning gradients w.r.t. the inputs.
func (d *lstmDir) backward(steps []lstmStep, dOut [][]float64) [][]float64 {
	T := len(steps)
	dX := make([][]float64, T)
	dhNext := make([]float64, d.hidden)
	dcNext := make([]float64, d.hidden)
	dPre := make([]float64, 4*d.hidden)

	for t := T - 1; t >= 0; t-- {
		st := steps[t]
		for k := 0; k < d.hidden; k++ {
			dh := dOut[t][k] + dhNext[k]
			do := dh * st.tanhC[k]
			dc := dh*st.o[k]*(1-st.tanhC[k]*st.tanhC[k]) + dcNext[k]
			di := dc * st.g[k]
			df := dc * st.cPrev[k]
			dg := dc * st.i[k]
			dcNext[k] = dc * st.f[k]

			dPre[k] = di * st.i[k] * (1 - st.i[k])
			dPre[d.hidden+k] = df * st.f[k] * (1 - st.f[k])
			dPre[2*d.hidden+k] = dg * (1 - st.g[k]*st.g[k])
			dPre[3*d.hidden+k] = do * st.o[k] * (1 - st.o[k])
		}

		d.wx.addOuter(dPre, st.x)
		d.wh.addOuter(dPre, st.hPrev)
		for k := range dPre {
			d.b.dw[k] += dPre[k]
		}

		dx := make([]float64, d.in)
		d.wx.mulVecT(dPre, dx)
		dX[t] = dx

		for k := range dhNext {
			dhNext[k] = 0
		}
		d.wh.mulVecT(dPre, dhNext)
	}
	return dX
}

// biLSTM concatenates a forward and a reversed pass per timestep
type biLSTM struct {
	fwd, bwd *lstmDir
}

func newBiLSTM(in, hidden int, rng *rand.Rand) *biLSTM {
	return &biLSTM{fwd: newLSTMDir(in, hidden, rng), bwd: newLSTMDir(in, hidden, rng)}
}

func (b *biLSTM) outDim() int { return 2 * b.fwd.hidden }

type biCache struct {
	fSteps, bSteps []lstmStep
}

func (b *biLSTM) forward(seq [][]float64) ([][]float64, *biCache) {
	fOut, fSteps := b.fwd.forward(seq)
	bOut, bSteps := b.bwd.forward(reverseSeq(seq))

	T := len(seq)
	out := make([][]float64, T)
	for t := 0; t < T; t++ {
		row := make([]float64, 0, b.outDim())
		row = append(row, fOut[t]...)
		row = append(row, bOut[T-1-t]...)
		out[t] = row
	}
	return out, &biCache{fSteps: fSteps, bSteps: bSteps}
}

func (b *biLSTM) backward(cache *biCache, dOut [][]float64) [][]float64 {
	T := len(dOut)
	h := b.fwd.hidden
	dF := make([][]float64, T)
	dB := make([][]float64, T)
	for t := 0; t < T; t++ {
		dF[t] = dOut[t][:h]
		dB[T-1-t] = dOut[t][h:]
	}
	dxF := b.fwd.backward(cache.fSteps, dF)
	dxB := b.bwd.backward(cache.bSteps, dB)

	dX := make([][]float64, T)
	for t := 0; t < T; t++ {
		dx := make([]float64, len(dxF[t]))
		for k := range dx {
			dx[k] = dxF[t][k] + dxB[T-1-t][k]
		}
		dX[t] = dx
	}
	return dX
}

func reverseSeq(seq [][]float64) [][]float64 {
	out := make([][]float64, len(seq))
	for i, row := range seq {
		out[len(seq)-1-i] = row
	}
	return out
}

// batchNorm normalises feature activations. Training uses batch statistics
// across every row passed to forwardBatch and caches the normalised values
// for backprop; inference uses running averages. Backprop treats the batch
// statistics as constants.
type batchNorm struct {
	dim         int
	gamma, beta *tensor
	runMean     []float64
	runVar      []float64
	momentum    float64

	invStd []float64
	xhat   [][]float64
}

func newBatchNorm(dim int, rng *rand.Rand) *batchNorm {
	bn := &batchNorm{
		dim:      dim,
		gamma:    newTensor(dim, 1, rng, 0),
		beta:     newTensor(dim, 1, rng, 0),
		runMean:  make([]float64, dim),
		runVar:   make([]float64, dim),
		momentum: 0.9,
		invStd:   make([]float64, dim),
	}
	for i := range bn.gamma.w {
		bn.gamma.w[i] = 1
	}
	for i := range bn.runVar {
		bn.runVar[i] = 1
	}
	return bn
}

const bnEps = 1e-5

// forwardBatch normalises the rows in place
func (bn *batchNorm) forwardBatch(rows [][]float64, training bool) {
	if !training {
		for k := 0; k < bn.dim; k++ {
			inv := 1 / math.Sqrt(bn.runVar[k]+bnEps)
			for _, row := range rows {
				row[k] = (row[k]-bn.runMean[k])*inv*bn.gamma.w[k] + bn.beta.w[k]
			}
		}
		return
	}

	bn.xhat = make([][]float64, len(rows))
	for i := range bn.xhat {
		bn.xhat[i] = make([]float64, bn.dim)
	}
	nRows := float64(len(rows))
	for k := 0; k < bn.dim; k++ {
		mean := 0.0
		for _, row := range rows {
			mean += row[k]
		}
		mean /= nRows
		variance := 0.0
		for _, row := range rows {
			d := row[k] - mean
			variance += d * d
		}
		variance /= nRows

		bn.runMean[k] = bn.momentum*bn.runMean[k] + (1-bn.momentum)*mean
		bn.runVar[k] = bn.momentum*bn.runVar[k] + (1-bn.momentum)*variance

		inv := 1 / math.Sqrt(variance+bnEps)
		bn.invStd[k] = inv
		for i, row := range rows {
			xh := (row[k] - mean) * inv
			bn.xhat[i][k] = xh
			row[k] = xh*bn.gamma.w[k] + bn.beta.w[k]
		}
	}
}

// backwardBatch maps output gradients to input gradients in place; grads
// must arrive in the same row order forwardBatch saw.
func (bn *batchNorm) backwardBatch(grads [][]float64) {
	for i, grad := range grads {
		for k := 0; k < bn.dim; k++ {
			bn.gamma.dw[k] += grad[k] * bn.xhat[i][k]
			bn.beta.dw[k] += grad[k]
			grad[k] = grad[k] * bn.gamma.w[k] * bn.invStd[k]
		}
	}
}

// dense is a fully connected layer
type dense struct {
	in, out int
	w, b    *tensor
}

func newDense(in, out int, rng *rand.Rand) *dense {
	return &dense{in: in, out: out, w: newTensor(out, in, rng, math.Sqrt(2.0/float64(in))), b: newTensor(out, 1, rng, 0)}
}

func (d *dense) forward(x []float64) []float64 {
	out := d.w.mulVec(x)
	for k := range out {
		out[k] += d.b.w[k]
	}
	return out
}

func (d *dense) backward(x, dOut []float64) []float64 {
	d.w.addOuter(dOut, x)
	for k := range dOut {
		d.b.dw[k] += dOut[k]
	}
	dx := make([]float64, d.in)
	d.w.mulVecT(dOut, dx)
	return dx
}

// lstmNet is the full network: stacked bidirectional LSTM layers with batch
// norm and dropout, a ReLU dense trunk, and price + trend heads.
type lstmNet struct {
	params LSTMParams
	rng    *rand.Rand

	layers []*biLSTM
	norms  []*batchNorm
	trunk  []*dense
	price  *dense
	trend  *dense

	tensors []*tensor
	adamT   int
	lr      float64
}

func newLSTMNet(inputDim, horizon int, p LSTMParams) *lstmNet {
	rng := rand.New(rand.NewSource(p.Seed))
	net := &lstmNet{params: p, rng: rng, lr: p.LearningRate}

	dim := inputDim
	for _, h := range p.Hidden {
		layer := newBiLSTM(dim, h, rng)
		net.layers = append(net.layers, layer)
		net.norms = append(net.norms, newBatchNorm(layer.outDim(), rng))
		dim = layer.outDim()
	}
	for _, h := range p.Dense {
		net.trunk = append(net.trunk, newDense(dim, h, rng))
		dim = h
	}
	net.price = newDense(dim, horizon, rng)
	net.trend = newDense(dim, 3, rng)

	for _, l := range net.layers {
		net.tensors = append(net.tensors, l.fwd.wx, l.fwd.wh, l.fwd.b, l.bwd.wx, l.bwd.wh, l.bwd.b)
	}
	for _, bn := range net.norms {
		net.tensors = append(net.tensors, bn.gamma, bn.beta)
	}
	for _, d := range net.trunk {
		net.tensors = append(net.tensors, d.w, d.b)
	}
	net.tensors = append(net.tensors, net.price.w, net.price.b, net.trend.w, net.trend.b)
	return net
}

// headCache keeps one sample's trunk activations for backprop
type headCache struct {
	trunkIn [][]float64
	relu    [][]float64
	final   []float64
}

// forwardHead runs the trunk and heads on the last timestep representation
func (net *lstmNet) forwardHead(last []float64) (pricePred, trendLogits []float64, hc *headCache) {
	hc = &headCache{}
	cur := last
	for _, d := range net.trunk {
		hc.trunkIn = append(hc.trunkIn, cur)
		out := d.forward(cur)
		for k := range out {
			if out[k] < 0 {
				out[k] = 0
			}
		}
		hc.relu = append(hc.relu, out)
		cur = out
	}
	hc.final = cur
	return net.price.forward(cur), net.trend.forward(cur), hc
}

// train runs mini-batch Adam with early stopping and plateau LR decay,
// restoring the best validation weights. Returns epochs run.
func (net *lstmNet) train(ctx context.Context, seqs [][][]float64, priceTgt [][]float64, trendTgt []int,
	valSeqs [][][]float64, valPrice [][]float64, valTrend []int) (int, error) {

	p := net.params
	indices := make([]int, len(seqs))
	for i := range indices {
		indices[i] = i
	}

	bestVal := math.Inf(1)
	bestEpoch := 0
	plateauAt := 0
	var best [][]float64

	epoch := 0
	for ; epoch < p.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return epoch, err
		}
		net.rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

		for start := 0; start < len(indices); start += p.BatchSize {
			end := start + p.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			net.trainBatch(indices[start:end], seqs, priceTgt, trendTgt)
		}

		val := net.validate(valSeqs, valPrice, valTrend)
		if val < bestVal-1e-9 {
			bestVal = val
			bestEpoch = epoch
			plateauAt = epoch
			best = net.snapshot()
		} else {
			if epoch-plateauAt >= p.PlateauPatience && net.lr > p.MinLR {
				net.lr *= p.PlateauFactor
				if net.lr < p.MinLR {
					net.lr = p.MinLR
				}
				plateauAt = epoch
			}
			if epoch-bestEpoch >= p.EarlyStopPatience {
				epoch++
				break
			}
		}
	}

	if best != nil {
		net.restore(best)
	}
	return epoch, nil
}

// trainBatch runs forward/backward over one mini-batch and applies Adam.
// Batch norm needs the whole batch at once, so each recurrent layer runs on
// every sample before normalisation.
func (net *lstmNet) trainBatch(batch []int, seqs [][][]float64, priceTgt [][]float64, trendTgt []int) {
	for _, t := range net.tensors {
		for i := range t.dw {
			t.dw[i] = 0
		}
	}

	p := net.params
	nBatch := len(batch)
	nLayers := len(net.layers)

	cur := make([][][]float64, nBatch)
	for bi, s := range batch {
		cur[bi] = seqs[s]
	}
	caches := make([][]*biCache, nLayers)
	masks := make([][][][]float64, nLayers)

	for li, layer := range net.layers {
		caches[li] = make([]*biCache, nBatch)
		var allRows [][]float64
		for bi := range batch {
			out, cache := layer.forward(cur[bi])
			caches[li][bi] = cache
			cur[bi] = out
			allRows = append(allRows, out...)
		}
		net.norms[li].forwardBatch(allRows, true)

		if p.Dropout > 0 {
			keep := 1 - p.Dropout
			masks[li] = make([][][]float64, nBatch)
			for bi := range batch {
				mask := make([][]float64, len(cur[bi]))
				for t, row := range cur[bi] {
					mrow := make([]float64, len(row))
					for k := range row {
						if net.rng.Float64() < keep {
							mrow[k] = 1 / keep
						}
						row[k] *= mrow[k]
					}
					mask[t] = mrow
				}
				masks[li][bi] = mask
			}
		}
	}

	// Heads on the last timestep; loss gradients straight into backprop
	heads := make([]*headCache, nBatch)
	dLast := make([][]float64, nBatch)
	for bi, s := range batch {
		last := cur[bi][len(cur[bi])-1]
		pricePred, trendLogits, hc := net.forwardHead(last)
		heads[bi] = hc

		horizon := len(priceTgt[s])
		dPrice := make([]float64, horizon)
		for h := range dPrice {
			dPrice[h] = 2 * (pricePred[h] - priceTgt[s][h]) / float64(horizon)
		}
		probs := softmax(trendLogits)
		dTrend := make([]float64, 3)
		for k := range dTrend {
			dTrend[k] = probs[k] * p.TrendLossWeight
		}
		dTrend[trendTgt[s]] -= p.TrendLossWeight

		dFinal := net.price.backward(hc.final, dPrice)
		dFromTrend := net.trend.backward(hc.final, dTrend)
		for k := range dFinal {
			dFinal[k] += dFromTrend[k]
		}
		for li := len(net.trunk) - 1; li >= 0; li-- {
			for k := range dFinal {
				if hc.relu[li][k] <= 0 {
					dFinal[k] = 0
				}
			}
			dFinal = net.trunk[li].backward(hc.trunkIn[li], dFinal)
		}
		dLast[bi] = dFinal
	}

	// Backward through the recurrent stack, mirroring the forward order
	dSeqs := make([][][]float64, nBatch)
	for bi := range batch {
		T := len(cur[bi])
		dSeq := make([][]float64, T)
		for t := 0; t < T; t++ {
			dSeq[t] = make([]float64, len(cur[bi][t]))
		}
		copy(dSeq[T-1], dLast[bi])
		dSeqs[bi] = dSeq
	}
	for li := nLayers - 1; li >= 0; li-- {
		if p.Dropout > 0 {
			for bi := range batch {
				for t, row := range dSeqs[bi] {
					for k := range row {
						row[k] *= masks[li][bi][t][k]
					}
				}
			}
		}
		var allGrads [][]float64
		for bi := range batch {
			allGrads = append(allGrads, dSeqs[bi]...)
		}
		net.norms[li].backwardBatch(allGrads)

		for bi := range batch {
			dSeqs[bi] = net.layers[li].backward(caches[li][bi], dSeqs[bi])
		}
	}

	net.adamStep(nBatch)
}

// validate computes the combined loss over the validation set
func (net *lstmNet) validate(seqs [][][]float64, priceTgt [][]float64, trendTgt []int) float64 {
	if len(seqs) == 0 {
		return 0
	}
	total := 0.0
	for s := range seqs {
		pricePred, trendProbs := net.inferRaw(seqs[s])
		mse := 0.0
		for h := range priceTgt[s] {
			d := pricePred[h] - priceTgt[s][h]
			mse += d * d
		}
		mse /= float64(len(priceTgt[s]))
		ce := -math.Log(math.Max(trendProbs[trendTgt[s]], 1e-12))
		total += mse + net.params.TrendLossWeight*ce
	}
	return total / float64(len(seqs))
}

// infer runs a single sequence in inference mode
func (net *lstmNet) infer(seq [][]float64) ([]float64, [3]float64) {
	price, probs := net.inferRaw(seq)
	return price, [3]float64{probs[0], probs[1], probs[2]}
}

func (net *lstmNet) inferRaw(seq [][]float64) ([]float64, []float64) {
	cur := seq
	for li, layer := range net.layers {
		out, _ := layer.forward(cur)
		net.norms[li].forwardBatch(out, false)
		cur = out
	}
	pricePred, trendLogits, _ := net.forwardHead(cur[len(cur)-1])
	return pricePred, softmax(trendLogits)
}

// adamStep clips the global gradient norm then applies Adam
func (net *lstmNet) adamStep(batchSize int) {
	inv := 1 / float64(batchSize)
	norm := 0.0
	for _, t := range net.tensors {
		for i := range t.dw {
			t.dw[i] *= inv
			norm += t.dw[i] * t.dw[i]
		}
	}
	norm = math.Sqrt(norm)
	scale := 1.0
	if net.params.ClipNorm > 0 && norm > net.params.ClipNorm {
		scale = net.params.ClipNorm / norm
	}

	net.adamT++
	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	bc1 := 1 - math.Pow(beta1, float64(net.adamT))
	bc2 := 1 - math.Pow(beta2, float64(net.adamT))
	for _, t := range net.tensors {
		for i := range t.dw {
			g := t.dw[i] * scale
			t.m[i] = beta1*t.m[i] + (1-beta1)*g
			t.v[i] = beta2*t.v[i] + (1-beta2)*g*g
			mHat := t.m[i] / bc1
			vHat := t.v[i] / bc2
			t.w[i] -= net.lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}

func (net *lstmNet) snapshot() [][]float64 {
	out := make([][]float64, len(net.tensors))
	for i, t := range net.tensors {
		out[i] = append([]float64(nil), t.w...)
	}
	return out
}

func (net *lstmNet) restore(snap [][]float64) {
	for i, t := range net.tensors {
		copy(t.w, snap[i])
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
