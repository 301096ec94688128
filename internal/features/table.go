package features

import (
	"fmt"
	"time"
)

// FeatureSetVersion identifies the derived-column layout. External caches key
// on it so that layout changes invalidate stale entries.
const FeatureSetVersion = "v1"

// ColumnNames lists the derived columns Build produces, in order.
var ColumnNames = []string{
	"returns",
	"sma_5", "sma_10", "sma_20",
	"ema_12", "ema_26",
	"macd", "macd_signal", "macd_hist",
	"rsi",
	"bb_upper", "bb_middle", "bb_lower", "bb_width",
	"atr",
	"volume_ratio",
	"momentum_5", "momentum_10",
	"close_lag_1", "close_lag_3", "close_lag_7",
}

// Table is the augmented OHLCV table: canonical columns plus derived
// features, with all warm-up rows already trimmed. Rows are ordered
// ascending by date and every value is finite.
type Table struct {
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	derived map[string][]float64
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.Dates) }

// Col returns a derived column by name. Panics on unknown names; column
// names are compile-time constants everywhere they are used.
func (t *Table) Col(name string) []float64 {
	col, ok := t.derived[name]
	if !ok {
		panic(fmt.Sprintf("features: unknown column %q", name))
	}
	return col
}

// HasCol reports whether a derived column exists
func (t *Table) HasCol(name string) bool {
	_, ok := t.derived[name]
	return ok
}

// Slice returns a view of rows [i, j). The underlying arrays are shared;
// tables are treated as immutable after Build.
func (t *Table) Slice(i, j int) *Table {
	out := &Table{
		Dates:   t.Dates[i:j],
		Open:    t.Open[i:j],
		High:    t.High[i:j],
		Low:     t.Low[i:j],
		Close:   t.Close[i:j],
		Volume:  t.Volume[i:j],
		derived: make(map[string][]float64, len(t.derived)),
	}
	for name, col := range t.derived {
		out.derived[name] = col[i:j]
	}
	return out
}

// Matrix assembles the named columns into row-major feature vectors.
// Canonical column names ("close", "volume", ...) are accepted alongside
// derived names.
func (t *Table) Matrix(names []string) [][]float64 {
	rows := make([][]float64, t.Len())
	cols := make([][]float64, len(names))
	for k, name := range names {
		cols[k] = t.series(name)
	}
	for i := range rows {
		vec := make([]float64, len(names))
		for k := range names {
			vec[k] = cols[k][i]
		}
		rows[i] = vec
	}
	return rows
}

func (t *Table) series(name string) []float64 {
	switch name {
	case "open":
		return t.Open
	case "high":
		return t.High
	case "low":
		return t.Low
	case "close":
		return t.Close
	case "volume":
		return t.Volume
	default:
		return t.Col(name)
	}
}
