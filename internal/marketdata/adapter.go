package marketdata

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrDataUnavailable is returned when a source yields no usable history.
var ErrDataUnavailable = errors.New("no usable price data available")

// MinBars is the floor below which statistical models cannot fit meaningfully.
// Individual model adapters impose stricter minima on top of this.
const MinBars = 30

// column synonym sets, matched case-insensitively against the innermost label
var (
	dateSynonyms     = map[string]bool{"date": true, "datetime": true, "timestamp": true, "time": true}
	openSynonyms     = map[string]bool{"open": true}
	highSynonyms     = map[string]bool{"high": true}
	lowSynonyms      = map[string]bool{"low": true}
	closeSynonyms    = map[string]bool{"close": true}
	adjCloseSynonyms = map[string]bool{"adj_close": true, "adjclose": true, "adj close": true}
	volumeSynonyms   = map[string]bool{"volume": true, "vol": true}
)

// Normalize converts an opaque source table into the canonical bar sequence:
// innermost labels matched case-insensitively, adj close promoted when close
// is absent, volume defaulted to zero, rows sorted ascending by date, rows
// with NaN in any canonical column dropped. Fails with ErrDataUnavailable
// when the cleaned history is shorter than MinBars.
func Normalize(raw RawTable) ([]Bar, error) {
	if len(raw.Dates) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrDataUnavailable)
	}

	var open, high, low, close, adjClose, volume []float64
	for _, col := range raw.Columns {
		if len(col.Labels) == 0 || len(col.Values) != len(raw.Dates) {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(col.Labels[len(col.Labels)-1]))
		switch {
		case openSynonyms[name]:
			open = col.Values
		case highSynonyms[name]:
			high = col.Values
		case lowSynonyms[name]:
			low = col.Values
		case closeSynonyms[name]:
			close = col.Values
		case adjCloseSynonyms[name]:
			adjClose = col.Values
		case volumeSynonyms[name]:
			volume = col.Values
		}
	}

	// Promote adjusted close when the source carries no plain close.
	if close == nil && adjClose != nil {
		close = adjClose
	}
	if open == nil || high == nil || low == nil || close == nil {
		return nil, fmt.Errorf("%w: required OHLC columns missing", ErrDataUnavailable)
	}

	bars := make([]Bar, 0, len(raw.Dates))
	for i, date := range raw.Dates {
		b := Bar{
			Date:  date,
			Open:  open[i],
			High:  high[i],
			Low:   low[i],
			Close: close[i],
		}
		if volume != nil && !math.IsNaN(volume[i]) {
			b.Volume = volume[i]
		}
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) {
			continue
		}
		bars = append(bars, b)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	if len(bars) < MinBars {
		return nil, fmt.Errorf("%w: %d rows after cleaning, need %d", ErrDataUnavailable, len(bars), MinBars)
	}

	return bars, nil
}

// Closes extracts the close column from a bar sequence
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume column from a bar sequence
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
