package assistant

import (
	"sort"
	"strings"
)

// KnowledgeEntry is one retrievable unit of the built-in finance knowledge
// base. Keywords are matched case-insensitively against query tokens.
type KnowledgeEntry struct {
	Topic    string
	Keywords []string
	Content  string
}

// knowledgeBase is the built-in corpus the assistant retrieves from. It is
// intentionally small: the entries cover the concepts the prediction and
// strategy surfaces expose, so retrieval-only answers stay on-topic even
// when no chat provider is configured.
var knowledgeBase = []KnowledgeEntry{
	{
		Topic:    "moving averages",
		Keywords: []string{"sma", "ema", "moving", "average", "crossover", "golden", "death"},
		Content: "A simple moving average (SMA) averages closing prices over a fixed window, " +
			"smoothing out daily noise. An exponential moving average (EMA) weights recent " +
			"prices more heavily so it reacts faster. Crossovers between a short and a long " +
			"average (for example EMA-12 crossing EMA-26) are a classic trend-change signal: " +
			"a cross above suggests upward momentum, a cross below suggests the opposite.",
	},
	{
		Topic:    "RSI",
		Keywords: []string{"rsi", "relative", "strength", "overbought", "oversold"},
		Content: "The Relative Strength Index (RSI) measures the speed of recent price changes " +
			"on a 0-100 scale. Readings above 70 are conventionally called overbought and " +
			"readings below 30 oversold. Signals are usually taken on the exit from an extreme " +
			"zone rather than on the level itself.",
	},
	{
		Topic:    "MACD",
		Keywords: []string{"macd", "convergence", "divergence", "histogram", "signal"},
		Content: "MACD subtracts a 26-period EMA from a 12-period EMA; a 9-period EMA of that " +
			"difference is the signal line. The MACD line crossing above its signal line is " +
			"read as bullish momentum, crossing below as bearish. The histogram shows the gap " +
			"between the two lines.",
	},
	{
		Topic:    "Bollinger Bands",
		Keywords: []string{"bollinger", "band", "bands", "squeeze", "volatility"},
		Content: "Bollinger Bands place an upper and lower band two standard deviations around " +
			"a 20-period SMA. Price touching the lower band can indicate an oversold condition " +
			"and the upper band an overbought one. A narrowing of the bands (a squeeze) often " +
			"precedes a volatility expansion.",
	},
	{
		Topic:    "support and resistance",
		Keywords: []string{"support", "resistance", "breakout", "level", "prior", "high", "low"},
		Content: "Support is a price area where buying has repeatedly absorbed selling; " +
			"resistance is the mirror image. A breakout above a prior high on strong volume " +
			"suggests buyers have overwhelmed that resistance; a breakdown below a prior low " +
			"suggests the opposite.",
	},
	{
		Topic:    "trend and momentum",
		Keywords: []string{"trend", "momentum", "bullish", "bearish", "neutral", "direction", "adx"},
		Content: "Trend describes the prevailing direction of price over a lookback window; " +
			"momentum measures how fast price is moving in that direction. ADX quantifies " +
			"trend strength regardless of direction, with values above 25 usually read as a " +
			"trending market. Forecasting models label the expected move bullish, bearish or " +
			"neutral with an attached probability.",
	},
	{
		Topic:    "forecasting models",
		Keywords: []string{"forecast", "predict", "prediction", "model", "arima", "prophet", "xgboost", "lstm", "horizon"},
		Content: "The service offers four forecasting model families. ARIMA fits an " +
			"autoregressive moving-average process to differenced prices and is cheap to " +
			"refit. The Prophet-style model decomposes price into trend, weekly and yearly " +
			"seasonality plus indicator regressors. Gradient-boosted trees learn from " +
			"flattened windows of engineered features, and the LSTM network reads sequences " +
			"of scaled features and jointly predicts price and trend class. All four are " +
			"evaluated walk-forward before the final forecast is produced.",
	},
	{
		Topic:    "model evaluation",
		Keywords: []string{"accuracy", "mae", "rmse", "mape", "error", "backtest", "walk-forward", "evaluation", "metric"},
		Content: "Walk-forward evaluation repeatedly fits on data up to an anchor date and " +
			"scores the next few days, so every score reflects genuinely out-of-sample " +
			"behaviour. MAE and RMSE measure average price error, MAPE the percentage " +
			"error, and directional accuracy the share of days where the predicted move had " +
			"the right sign. Lower errors and higher directional accuracy translate into a " +
			"higher confidence score on the forecast.",
	},
	{
		Topic:    "trading strategies",
		Keywords: []string{"strategy", "strategies", "signal", "signals", "buy", "sell", "supertrend", "vwap", "ichimoku", "scalping"},
		Content: "Strategy signals fire only on transitions: a buy is emitted on the bar where " +
			"a condition first becomes true, not on every bar where it holds. Each signal " +
			"carries a 0-100 confidence score blending volume, momentum, volatility and trend " +
			"context, with labels from Very Weak to Very Strong. Available strategies range " +
			"from EMA and MACD crossovers to Supertrend, VWAP, Ichimoku and breakout rules.",
	},
	{
		Topic:    "risk and diversification",
		Keywords: []string{"risk", "diversification", "diversify", "portfolio", "position", "sizing", "stop", "loss"},
		Content: "No indicator or model removes market risk. Diversification across " +
			"uncorrelated assets reduces the impact of any single position, position sizing " +
			"limits how much one trade can hurt, and stop-losses cap the downside of a " +
			"thesis that turns out wrong. Backtested accuracy never guarantees future " +
			"performance.",
	},
	{
		Topic:    "volume analysis",
		Keywords: []string{"volume", "liquidity", "obv", "participation"},
		Content: "Volume confirms price. A move on above-average volume reflects broad " +
			"participation and is more likely to persist; the same move on thin volume is " +
			"easier to reverse. The volume ratio feature compares current volume against its " +
			"20-day average for exactly this purpose.",
	},
}

// scoredEntry pairs a knowledge entry with its retrieval score
type scoredEntry struct {
	entry KnowledgeEntry
	score int
}

// SearchKnowledge returns up to limit knowledge entries ranked by keyword
// overlap with the query. Zero-score entries are never returned.
func SearchKnowledge(query string, limit int) []KnowledgeEntry {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	scored := make([]scoredEntry, 0, len(knowledgeBase))
	for _, entry := range knowledgeBase {
		score := 0
		for _, kw := range entry.Keywords {
			if tokens[kw] {
				score++
			}
		}
		if score > 0 {
			scored = append(scored, scoredEntry{entry: entry, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]KnowledgeEntry, len(scored))
	for i, s := range scored {
		out[i] = s.entry
	}
	return out
}

func tokenize(query string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}
