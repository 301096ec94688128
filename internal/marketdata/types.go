package marketdata

import "time"

// Bar represents one daily OHLCV candle. Sequences of bars are always
// ordered ascending by date and never carry a NaN close.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Quote represents the latest traded price for a symbol
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Time          time.Time `json:"time"`
}

// RawColumn is one column of an externally sourced price table. Labels hold
// the (possibly nested) column path as delivered by the source; the innermost
// label is the one matched against the canonical synonym set.
type RawColumn struct {
	Labels []string
	Values []float64
}

// RawTable is an opaque time-indexed table as delivered by a price source.
// Dates index the rows; columns may be missing, mislabelled or carry NaN.
type RawTable struct {
	Dates   []time.Time
	Columns []RawColumn
}

// ValidPeriods lists the lookback ranges accepted by the API surface
var ValidPeriods = map[string]bool{
	"1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "max": true,
}
