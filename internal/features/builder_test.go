package features

import (
	"context"
	"errors"
	"math"
	"testing"

	"stock-prediction-api/internal/marketdata"
)

func testBars(t *testing.T, n int) []marketdata.Bar {
	t.Helper()
	src := marketdata.NewMockSource()
	raw, err := src.History(context.Background(), "AAPL", "2y")
	if err != nil {
		t.Fatalf("mock history: %v", err)
	}
	bars, err := marketdata.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(bars) < n {
		t.Fatalf("mock history too short: %d < %d", len(bars), n)
	}
	return bars[:n]
}

func TestBuildTrimsWarmup(t *testing.T) {
	bars := testBars(t, 120)
	table, err := Build(bars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// The widest warm-up window is 20 rows; everything surviving it is finite.
	if table.Len() >= len(bars) {
		t.Fatalf("warm-up rows not trimmed: %d rows from %d bars", table.Len(), len(bars))
	}
	if table.Len() < len(bars)-30 {
		t.Fatalf("trimmed too much: %d rows from %d bars", table.Len(), len(bars))
	}

	for _, name := range ColumnNames {
		for i, v := range table.Col(name) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("column %s row %d is non-finite", name, i)
			}
		}
	}
}

func TestBuildRejectsShortHistory(t *testing.T) {
	bars := testBars(t, Warmup)
	if _, err := Build(bars); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

// TestBuildNoLookAhead verifies that row values never depend on later bars:
// building over a prefix must reproduce the full build on shared rows.
func TestBuildNoLookAhead(t *testing.T) {
	bars := testBars(t, 200)

	full, err := Build(bars)
	if err != nil {
		t.Fatalf("full build: %v", err)
	}
	prefix, err := Build(bars[:150])
	if err != nil {
		t.Fatalf("prefix build: %v", err)
	}

	// Align on dates: every prefix row also appears in the full table.
	fullIdx := make(map[string]int, full.Len())
	for i, d := range full.Dates {
		fullIdx[d.Format("2006-01-02")] = i
	}

	for i, d := range prefix.Dates {
		j, ok := fullIdx[d.Format("2006-01-02")]
		if !ok {
			t.Fatalf("prefix date %s missing from full table", d.Format("2006-01-02"))
		}
		for _, name := range ColumnNames {
			pv := prefix.Col(name)[i]
			fv := full.Col(name)[j]
			if math.Abs(pv-fv) > 1e-9*math.Max(1, math.Abs(fv)) {
				t.Fatalf("column %s differs at %s: prefix=%v full=%v", name, d.Format("2006-01-02"), pv, fv)
			}
		}
	}
}

func TestTableSliceSharesValues(t *testing.T) {
	bars := testBars(t, 100)
	table, err := Build(bars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	sub := table.Slice(10, 50)
	if sub.Len() != 40 {
		t.Fatalf("expected 40 rows, got %d", sub.Len())
	}
	if sub.Close[0] != table.Close[10] {
		t.Errorf("slice misaligned: %v vs %v", sub.Close[0], table.Close[10])
	}
	if sub.Col("rsi")[5] != table.Col("rsi")[15] {
		t.Errorf("derived slice misaligned")
	}
}

func TestMatrixRowsAreCopies(t *testing.T) {
	bars := testBars(t, 80)
	table, err := Build(bars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rows := table.Matrix([]string{"close", "rsi"})
	if len(rows) != table.Len() {
		t.Fatalf("expected %d rows, got %d", table.Len(), len(rows))
	}
	before := table.Close[0]
	rows[0][0] = -1
	if table.Close[0] != before {
		t.Fatal("Matrix rows alias the underlying table")
	}
}

func TestVolumeRatioDefinedForZeroVolume(t *testing.T) {
	bars := testBars(t, 60)
	for i := range bars {
		bars[i].Volume = 0
	}
	table, err := Build(bars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i, v := range table.Col("volume_ratio") {
		if v != 1.0 {
			t.Fatalf("zero-volume ratio should be 1.0, row %d got %v", i, v)
		}
	}
}
