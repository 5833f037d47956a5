package prices

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable indicates no price could be resolved for the request.
var ErrUnavailable = errors.New("prices: price unavailable")

// Candle is one daily close reported by the market data provider.
type Candle struct {
	Date  time.Time
	Close decimal.Decimal
}

// Quoter retrieves market data for a ticker.
type Quoter interface {
	// CurrentPrice returns the first usable quote field for the ticker.
	CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	// DailyCloses returns daily closing prices within [from, to], oldest
	// first.
	DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]Candle, error)
}

// Throttler paces outbound provider calls.
type Throttler interface {
	Wait(ctx context.Context) error
}
