package predict

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-prediction-api/internal/features"
	"stock-prediction-api/internal/marketdata"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

// testTable builds an augmented table from deterministic mock history
func testTable(t *testing.T, rows int) *features.Table {
	t.Helper()
	src := marketdata.NewMockSource()
	raw, err := src.History(context.Background(), "MSFT", "5y")
	require.NoError(t, err)
	bars, err := marketdata.Normalize(raw)
	require.NoError(t, err)
	table, err := features.Build(bars)
	require.NoError(t, err)
	require.GreaterOrEqual(t, table.Len(), rows, "mock history too short")
	return table.Slice(0, rows)
}

func TestTailAnchors(t *testing.T) {
	// n=100, horizon=7: last anchor leaving a full trajectory is 92
	anchors := TailAnchors(100, 7, 20, 30)
	require.NotEmpty(t, anchors)
	assert.Equal(t, 92, anchors[len(anchors)-1])
	assert.Len(t, anchors, 30)
	assert.Equal(t, 63, anchors[0])

	// Too little history yields no anchors
	assert.Empty(t, TailAnchors(25, 7, 20, 30))

	// Without the cap, anchors start at minTrain
	all := TailAnchors(40, 5, 20, 0)
	assert.Equal(t, 20, all[0])
	assert.Equal(t, 34, all[len(all)-1])
}

func TestRangeAnchors(t *testing.T) {
	anchors := RangeAnchors(50, 5, 40, 60)
	require.NotEmpty(t, anchors)
	assert.Equal(t, 40, anchors[0])
	// Every anchor leaves a full actual trajectory
	for _, a := range anchors {
		assert.LessOrEqual(t, a+5, 50)
	}
}

func TestEvaluatePerfectPredictor(t *testing.T) {
	table := testTable(t, 120)
	horizon := 5

	// Oracle: returns the actual closes, so every error metric is zero
	predictAt := func(_ context.Context, anchor int) ([]float64, error) {
		return append([]float64(nil), table.Close[anchor:anchor+horizon]...), nil
	}

	anchors := TailAnchors(table.Len(), horizon, 20, 15)
	result, err := Evaluate(context.Background(), table, horizon, anchors, predictAt)
	require.NoError(t, err)

	assert.InDelta(t, 0, result.Metrics.MAE, 1e-9)
	assert.InDelta(t, 0, result.Metrics.RMSE, 1e-9)
	assert.InDelta(t, 0, result.Metrics.MAPE, 1e-9)
	assert.InDelta(t, 100, result.Metrics.DirectionalAccuracy, 1e-9)
	assert.InDelta(t, 100, result.Metrics.TrendAccuracy, 1e-9)
	assert.Greater(t, result.MeanActual, 0.0)
}

func TestEvaluateCapsAuditWindows(t *testing.T) {
	table := testTable(t, 150)
	horizon := 3

	predictAt := func(_ context.Context, anchor int) ([]float64, error) {
		return append([]float64(nil), table.Close[anchor:anchor+horizon]...), nil
	}

	anchors := TailAnchors(table.Len(), horizon, 20, 40)
	result, err := Evaluate(context.Background(), table, horizon, anchors, predictAt)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.Windows), 10)
	// The surfaced windows are the latest anchors
	last := result.Windows[len(result.Windows)-1]
	assert.Equal(t, anchors[len(anchors)-1], last.Anchor)
}

func TestEvaluateSkipsFailedAnchors(t *testing.T) {
	table := testTable(t, 100)
	horizon := 4

	failures := 0
	predictAt := func(_ context.Context, anchor int) ([]float64, error) {
		if anchor%2 == 0 {
			failures++
			return nil, fmt.Errorf("fit diverged at %d", anchor)
		}
		return append([]float64(nil), table.Close[anchor:anchor+horizon]...), nil
	}

	anchors := TailAnchors(table.Len(), horizon, 20, 20)
	result, err := Evaluate(context.Background(), table, horizon, anchors, predictAt)
	require.NoError(t, err)
	assert.Greater(t, failures, 0)
	assert.NotEmpty(t, result.Windows)
}

func TestEvaluateAllAnchorsFail(t *testing.T) {
	table := testTable(t, 80)
	predictAt := func(_ context.Context, _ int) ([]float64, error) {
		return nil, errors.New("always fails")
	}
	anchors := TailAnchors(table.Len(), 5, 20, 10)
	_, err := Evaluate(context.Background(), table, 5, anchors, predictAt)
	assert.ErrorIs(t, err, ErrHorizonInconsistency)
}

func TestEvaluateHonoursCancellation(t *testing.T) {
	table := testTable(t, 80)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	predictAt := func(_ context.Context, anchor int) ([]float64, error) {
		return append([]float64(nil), table.Close[anchor:anchor+3]...), nil
	}
	anchors := TailAnchors(table.Len(), 3, 20, 10)
	_, err := Evaluate(ctx, table, 3, anchors, predictAt)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToTestResultsShape(t *testing.T) {
	table := testTable(t, 90)
	horizon := 4
	predictAt := func(_ context.Context, anchor int) ([]float64, error) {
		return append([]float64(nil), table.Close[anchor:anchor+horizon]...), nil
	}
	anchors := TailAnchors(table.Len(), horizon, 20, 12)
	result, err := Evaluate(context.Background(), table, horizon, anchors, predictAt)
	require.NoError(t, err)

	tr := result.ToTestResults()
	require.Equal(t, len(result.Windows), len(tr.Predictions))
	require.Equal(t, len(result.Windows), len(tr.Actual))
	require.Equal(t, len(result.Windows), len(tr.Dates))
	for i := range tr.Predictions {
		assert.Len(t, tr.Predictions[i], horizon)
		assert.Len(t, tr.Actual[i], horizon)
		assert.Len(t, tr.Dates[i], horizon)
	}
}
