package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"
)

// Client fetches daily price history from a Yahoo-style chart API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new market data client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// chartResponse mirrors the chart API JSON shape. Any of the series may be
// null or have null entries; nulls decode into NaN via *float64 indirection.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History fetches the raw daily history for a symbol over the given period.
// The result is deliberately left un-normalised; callers run it through
// Normalize to obtain canonical bars.
func (c *Client) History(ctx context.Context, symbol, period string) (RawTable, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(symbol))

	params := url.Values{}
	params.Set("range", period)
	params.Set("interval", "1d")
	params.Set("events", "div,splits")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return RawTable{}, fmt.Errorf("failed to build chart request: %w", err)
	}
	req.Header.Set("User-Agent", "stock-prediction-api/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RawTable{}, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return RawTable{}, fmt.Errorf("%w: unknown symbol %s", ErrDataUnavailable, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RawTable{}, fmt.Errorf("chart request returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RawTable{}, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return RawTable{}, fmt.Errorf("%w: %s", ErrDataUnavailable, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return RawTable{}, fmt.Errorf("%w: empty chart result", ErrDataUnavailable)
	}

	result := parsed.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return RawTable{}, fmt.Errorf("%w: no price series for %s", ErrDataUnavailable, symbol)
	}

	dates := make([]time.Time, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		dates[i] = time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
	}

	quote := result.Indicators.Quote[0]
	table := RawTable{
		Dates: dates,
		Columns: []RawColumn{
			{Labels: []string{"quote", "open"}, Values: toSeries(quote.Open, len(dates))},
			{Labels: []string{"quote", "high"}, Values: toSeries(quote.High, len(dates))},
			{Labels: []string{"quote", "low"}, Values: toSeries(quote.Low, len(dates))},
			{Labels: []string{"quote", "close"}, Values: toSeries(quote.Close, len(dates))},
			{Labels: []string{"quote", "volume"}, Values: toSeries(quote.Volume, len(dates))},
		},
	}
	if len(result.Indicators.AdjClose) > 0 {
		table.Columns = append(table.Columns, RawColumn{
			Labels: []string{"adjclose", "adjclose"},
			Values: toSeries(result.Indicators.AdjClose[0].AdjClose, len(dates)),
		})
	}

	return table, nil
}

// GetQuote fetches the latest price for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	raw, err := c.History(ctx, symbol, "5d")
	if err != nil {
		return Quote{}, err
	}

	var closes []float64
	for _, col := range raw.Columns {
		if len(col.Labels) > 0 && col.Labels[len(col.Labels)-1] == "close" {
			closes = col.Values
		}
	}
	last, prev := math.NaN(), math.NaN()
	for i := len(closes) - 1; i >= 0; i-- {
		if math.IsNaN(closes[i]) {
			continue
		}
		if math.IsNaN(last) {
			last = closes[i]
		} else {
			prev = closes[i]
			break
		}
	}
	if math.IsNaN(last) {
		return Quote{}, fmt.Errorf("%w: no recent close for %s", ErrDataUnavailable, symbol)
	}

	q := Quote{Symbol: symbol, Price: last, Time: time.Now().UTC()}
	if !math.IsNaN(prev) && prev != 0 {
		q.Change = last - prev
		q.ChangePercent = (last - prev) / prev * 100
	}
	return q, nil
}

// toSeries converts a pointer series to floats, mapping nulls to NaN
func toSeries(in []*float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < len(in) && in[i] != nil {
			out[i] = *in[i]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
