package marketdata

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// MockSource provides simulated daily history for development and tests.
// Series are deterministic per symbol so repeated requests match.
type MockSource struct {
	basePrices map[string]float64
}

// NewMockSource creates a mock price source
func NewMockSource() *MockSource {
	return &MockSource{
		basePrices: map[string]float64{
			"AAPL":  185.00,
			"MSFT":  410.00,
			"GOOGL": 165.00,
			"AMZN":  175.00,
			"TSLA":  250.00,
			"NVDA":  870.00,
			"META":  480.00,
			"SPY":   520.00,
		},
	}
}

// History generates a random-walk daily series seeded by the symbol
func (m *MockSource) History(_ context.Context, symbol, period string) (RawTable, error) {
	base, ok := m.basePrices[symbol]
	if !ok {
		base = 100.0
	}

	n := periodDays(period)
	rng := rand.New(rand.NewSource(seedFor(symbol)))

	dates := make([]time.Time, 0, n)
	open := make([]float64, 0, n)
	high := make([]float64, 0, n)
	low := make([]float64, 0, n)
	closes := make([]float64, 0, n)
	volume := make([]float64, 0, n)

	price := base
	day := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		day = day.AddDate(0, 0, 1)
		// Skip weekends to mimic an equity calendar
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		drift := 0.0003 + 0.002*math.Sin(float64(i)/40)
		ret := drift + rng.NormFloat64()*0.015
		o := price
		c := price * (1 + ret)
		h := math.Max(o, c) * (1 + rng.Float64()*0.008)
		l := math.Min(o, c) * (1 - rng.Float64()*0.008)

		dates = append(dates, day)
		open = append(open, o)
		high = append(high, h)
		low = append(low, l)
		closes = append(closes, c)
		volume = append(volume, 1e6*(0.5+rng.Float64()))
		price = c
	}

	return RawTable{
		Dates: dates,
		Columns: []RawColumn{
			{Labels: []string{"Open"}, Values: open},
			{Labels: []string{"High"}, Values: high},
			{Labels: []string{"Low"}, Values: low},
			{Labels: []string{"Close"}, Values: closes},
			{Labels: []string{"Volume"}, Values: volume},
		},
	}, nil
}

// GetQuote returns the most recent simulated close
func (m *MockSource) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	raw, err := m.History(ctx, symbol, "1mo")
	if err != nil {
		return Quote{}, err
	}
	bars, err := Normalize(raw)
	if err != nil {
		return Quote{}, err
	}
	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	return Quote{
		Symbol:        symbol,
		Price:         last.Close,
		Change:        last.Close - prev.Close,
		ChangePercent: (last.Close - prev.Close) / prev.Close * 100,
		Time:          last.Date,
	}, nil
}

func periodDays(period string) int {
	switch period {
	case "1mo":
		return 45 // extra calendar days so ~30 trading days survive
	case "3mo":
		return 135
	case "6mo":
		return 270
	case "1y":
		return 540
	case "2y":
		return 1080
	case "5y":
		return 2700
	case "10y", "max":
		return 5400
	default:
		return 540
	}
}

func seedFor(symbol string) int64 {
	var seed int64 = 7
	for _, r := range symbol {
		seed = seed*31 + int64(r)
	}
	return seed
}
