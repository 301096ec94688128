package marketdata

import "context"

// PriceSource defines the operations the API surface needs from a price
// provider. Client implements it against the live chart API; tests use
// MockSource.
type PriceSource interface {
	History(ctx context.Context, symbol, period string) (RawTable, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

var _ PriceSource = (*Client)(nil)
var _ PriceSource = (*MockSource)(nil)
