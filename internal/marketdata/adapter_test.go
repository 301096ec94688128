package marketdata

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func testDates(n int) []time.Time {
	dates := make([]time.Time, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rampSeries(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func testRawTable(n int) RawTable {
	return RawTable{
		Dates: testDates(n),
		Columns: []RawColumn{
			{Labels: []string{"Open"}, Values: rampSeries(n, 100, 1)},
			{Labels: []string{"High"}, Values: rampSeries(n, 101, 1)},
			{Labels: []string{"Low"}, Values: rampSeries(n, 99, 1)},
			{Labels: []string{"Close"}, Values: rampSeries(n, 100.5, 1)},
			{Labels: []string{"Volume"}, Values: constSeries(n, 1e6)},
		},
	}
}

func TestNormalizeBasic(t *testing.T) {
	bars, err := Normalize(testRawTable(40))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(bars) != 40 {
		t.Fatalf("expected 40 bars, got %d", len(bars))
	}
	if bars[0].Close != 100.5 || bars[39].Close != 139.5 {
		t.Errorf("unexpected closes: first=%v last=%v", bars[0].Close, bars[39].Close)
	}
}

func TestNormalizeSynonymsCaseInsensitive(t *testing.T) {
	n := 35
	raw := RawTable{
		Dates: testDates(n),
		Columns: []RawColumn{
			{Labels: []string{"OPEN"}, Values: rampSeries(n, 10, 1)},
			{Labels: []string{"High"}, Values: rampSeries(n, 11, 1)},
			{Labels: []string{"low"}, Values: rampSeries(n, 9, 1)},
			{Labels: []string{"CLOSE"}, Values: rampSeries(n, 10.5, 1)},
			{Labels: []string{"Vol"}, Values: constSeries(n, 500)},
		},
	}
	bars, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if bars[0].Volume != 500 {
		t.Errorf("vol synonym not matched: %v", bars[0].Volume)
	}
}

func TestNormalizePromotesAdjClose(t *testing.T) {
	n := 32
	raw := RawTable{
		Dates: testDates(n),
		Columns: []RawColumn{
			{Labels: []string{"Open"}, Values: rampSeries(n, 10, 1)},
			{Labels: []string{"High"}, Values: rampSeries(n, 11, 1)},
			{Labels: []string{"Low"}, Values: rampSeries(n, 9, 1)},
			{Labels: []string{"ticker", "Adj Close"}, Values: rampSeries(n, 10.25, 1)},
		},
	}
	bars, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if bars[0].Close != 10.25 {
		t.Errorf("adj close not promoted: %v", bars[0].Close)
	}
	if bars[0].Volume != 0 {
		t.Errorf("missing volume should default to zero, got %v", bars[0].Volume)
	}
}

func TestNormalizeInnermostLabelWins(t *testing.T) {
	n := 31
	raw := testRawTable(n)
	// Nested label paths: only the innermost component is matched
	raw.Columns[3].Labels = []string{"AAPL", "price", "close"}
	bars, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if bars[0].Close != 100.5 {
		t.Errorf("nested close label not matched: %v", bars[0].Close)
	}
}

func TestNormalizeDropsNaNRows(t *testing.T) {
	n := 40
	raw := testRawTable(n)
	raw.Columns[3].Values[5] = math.NaN()
	raw.Columns[0].Values[10] = math.NaN()
	bars, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(bars) != 38 {
		t.Fatalf("expected 38 bars after dropping 2 NaN rows, got %d", len(bars))
	}
}

func TestNormalizeNaNVolumeKept(t *testing.T) {
	n := 35
	raw := testRawTable(n)
	raw.Columns[4].Values[3] = math.NaN()
	bars, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(bars) != n {
		t.Fatalf("NaN volume must not drop the row: got %d bars", len(bars))
	}
	if bars[3].Volume != 0 {
		t.Errorf("NaN volume should become zero, got %v", bars[3].Volume)
	}
}

func TestNormalizeSortsAscending(t *testing.T) {
	n := 33
	raw := testRawTable(n)
	// Reverse the date order
	for i, j := 0, len(raw.Dates)-1; i < j; i, j = i+1, j-1 {
		raw.Dates[i], raw.Dates[j] = raw.Dates[j], raw.Dates[i]
	}
	bars, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Date.Before(bars[i].Date) {
			t.Fatalf("bars not sorted ascending at %d", i)
		}
	}
}

func TestNormalizeRejectsMissingColumns(t *testing.T) {
	n := 40
	raw := RawTable{
		Dates: testDates(n),
		Columns: []RawColumn{
			{Labels: []string{"Close"}, Values: rampSeries(n, 10, 1)},
		},
	}
	if _, err := Normalize(raw); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestNormalizeRejectsShortHistory(t *testing.T) {
	if _, err := Normalize(testRawTable(MinBars - 1)); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable for short history, got %v", err)
	}
	if _, err := Normalize(RawTable{}); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable for empty table, got %v", err)
	}
}

func TestMockSourceRoundTrip(t *testing.T) {
	src := NewMockSource()
	raw, err := src.History(context.Background(), "AAPL", "1y")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	bars, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(bars) < 200 {
		t.Errorf("expected a year of trading days, got %d", len(bars))
	}

	quote, err := src.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if quote.Price <= 0 {
		t.Errorf("quote price should be positive, got %v", quote.Price)
	}
}
