package ports

import "context"

// MarketDataSource is the external price source the feed polls. A failed
// call is non-fatal: the feed treats it as "no tick this cycle".
type MarketDataSource interface {
	// GetTickerPrice retrieves the last traded price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
}
