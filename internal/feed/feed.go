package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SpotPriceFetcher retrieves one batch of reference prices for the whole
// tracked universe.
type SpotPriceFetcher interface {
	FetchSpotPrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// TickHandler receives one validated derivative-channel sample.
type TickHandler func(symbol string, price decimal.Decimal, at time.Time)
