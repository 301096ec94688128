package strategy

import (
	"time"
)

// SignalKind marks the side of a signal event
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
)

// FactorBreakdown carries the four confidence factors before weighting
type FactorBreakdown struct {
	Volume     float64 `json:"volume"`
	Momentum   float64 `json:"momentum"`
	Volatility float64 `json:"volatility"`
	Trend      float64 `json:"trend"`
}

// SignalEvent is one dated buy/sell event with its confidence annotation
type SignalEvent struct {
	Date       time.Time       `json:"date"`
	Close      float64         `json:"close"`
	Kind       SignalKind      `json:"signal"`
	Confidence float64         `json:"confidence_score"`
	Label      string          `json:"confidence_label"`
	Factors    FactorBreakdown `json:"factor_breakdown"`
}

// PricePoint is one chart row of the strategy envelope
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Metadata describes the strategy that produced an envelope
type Metadata struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Result is the strategy envelope returned by the API
type Result struct {
	Data        []PricePoint  `json:"data"`
	BuySignals  []SignalEvent `json:"buy_signals"`
	SellSignals []SignalEvent `json:"sell_signals"`
	Metadata    Metadata      `json:"metadata"`
}

// Confidence labels, five bands
const (
	LabelVeryStrong = "Very Strong"
	LabelStrong     = "Strong"
	LabelModerate   = "Moderate"
	LabelWeak       = "Weak"
	LabelVeryWeak   = "Very Weak"
)

// ConfidenceLabel maps a [0,100] score onto its band
func ConfidenceLabel(score float64) string {
	switch {
	case score >= 80:
		return LabelVeryStrong
	case score >= 65:
		return LabelStrong
	case score >= 50:
		return LabelModerate
	case score >= 35:
		return LabelWeak
	default:
		return LabelVeryWeak
	}
}
