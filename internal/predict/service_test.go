package predict

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-prediction-api/internal/marketdata"
)

func TestServiceCapsSurfacedTestWindows(t *testing.T) {
	svc := NewService(marketdata.NewMockSource(), NewRegistry(), 3, zerolog.Nop())

	f, err := svc.Predict(context.Background(), "AAPL", "2y", "arima", 5)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(f.TestResults.Predictions), 3)
	assert.Equal(t, len(f.TestResults.Predictions), len(f.TestResults.Actual))
	assert.Equal(t, len(f.TestResults.Predictions), len(f.TestResults.Dates))
}

func TestServiceWindowCapNeverExceedsEvaluator(t *testing.T) {
	svc := NewService(marketdata.NewMockSource(), NewRegistry(), 50, zerolog.Nop())
	assert.Equal(t, maxAuditWindows, svc.maxTestWindows)

	svc = NewService(marketdata.NewMockSource(), NewRegistry(), 0, zerolog.Nop())
	assert.Equal(t, maxAuditWindows, svc.maxTestWindows)
}

func TestServiceUnknownModel(t *testing.T) {
	svc := NewService(marketdata.NewMockSource(), NewRegistry(), 10, zerolog.Nop())
	_, err := svc.Predict(context.Background(), "AAPL", "1y", "oracle", 5)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestTestResultsTail(t *testing.T) {
	tr := TestResults{
		Predictions: [][]float64{{1}, {2}, {3}},
		Actual:      [][]float64{{1}, {2}, {3}},
		Dates:       make([][]time.Time, 3),
	}

	tail := tr.Tail(2)
	require.Len(t, tail.Predictions, 2)
	assert.Equal(t, [][]float64{{2}, {3}}, tail.Predictions)

	assert.Len(t, tr.Tail(0).Predictions, 3)
	assert.Len(t, tr.Tail(5).Predictions, 3)
}
