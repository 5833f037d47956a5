package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ideaboard/internal/storage"
)

const historyWindow = 7 * 24 * time.Hour

// ResolverOptions tune price resolution.
type ResolverOptions struct {
	// Freshness is how long a current quote stays cached before a fresh
	// lookup is performed.
	Freshness time.Duration
}

// Resolver resolves current and point-in-time prices with caching and
// failure marking. Every provider call goes through the throttler.
type Resolver struct {
	opts    ResolverOptions
	quoter  Quoter
	cache   Cache
	limiter Throttler
	logger  zerolog.Logger

	// Historical closes never change, so resolved values are memoised for
	// the process lifetime.
	histMu sync.Mutex
	hist   map[string]decimal.Decimal
}

// NewResolver constructs a price resolver.
func NewResolver(opts ResolverOptions, quoter Quoter, cache Cache, limiter Throttler, logger zerolog.Logger) *Resolver {
	if opts.Freshness <= 0 {
		opts.Freshness = 5 * time.Minute
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &Resolver{
		opts:    opts,
		quoter:  quoter,
		cache:   cache,
		limiter: limiter,
		logger:  logger.With().Str("component", "price_resolver").Logger(),
	}
}

// CurrentPrice returns the ticker's current price, served from cache when it
// was refreshed within the freshness window.
func (r *Resolver) CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	ticker = strings.ToUpper(ticker)
	key := "price:current:" + ticker

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	if err := r.wait(ctx); err != nil {
		return decimal.Decimal{}, err
	}

	value, err := r.quoter.CurrentPrice(ctx, ticker)
	if err != nil {
		return decimal.Decimal{}, err
	}

	r.cache.Set(ctx, key, value, r.opts.Freshness)
	return value, nil
}

// HistoricalPrice returns the closing price on date or, if the market was
// closed, the nearest prior trading day within a ±7-day window. When no
// trading day exists at or before date in the window, the earliest available
// close is used.
func (r *Resolver) HistoricalPrice(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error) {
	ticker = strings.ToUpper(ticker)
	day := date.UTC().Truncate(24 * time.Hour)
	key := ticker + "|" + day.Format("2006-01-02")

	r.histMu.Lock()
	if value, ok := r.hist[key]; ok {
		r.histMu.Unlock()
		return value, nil
	}
	r.histMu.Unlock()

	if err := r.wait(ctx); err != nil {
		return decimal.Decimal{}, err
	}

	candles, err := r.quoter.DailyCloses(ctx, ticker, day.Add(-historyWindow), day.Add(historyWindow))
	if err != nil {
		return decimal.Decimal{}, err
	}

	value, ok := closeOnOrBefore(candles, day)
	if !ok {
		return decimal.Decimal{}, ErrUnavailable
	}

	r.histMu.Lock()
	if r.hist == nil {
		r.hist = make(map[string]decimal.Decimal)
	}
	r.hist[key] = value
	r.histMu.Unlock()

	return value, nil
}

// closeOnOrBefore picks the latest candle at or before day, falling back to
// the earliest candle in the window.
func closeOnOrBefore(candles []Candle, day time.Time) (decimal.Decimal, bool) {
	if len(candles) == 0 {
		return decimal.Decimal{}, false
	}

	endOfDay := day.Add(24*time.Hour - time.Nanosecond)
	for i := len(candles) - 1; i >= 0; i-- {
		if !candles[i].Date.After(endOfDay) {
			return candles[i].Close, true
		}
	}
	return candles[0].Close, true
}

// RefreshResult summarises one staleness refresh pass.
type RefreshResult struct {
	Updated int
	Failed  int
	Total   int
}

// RefreshStale re-fetches current prices for every ticker referenced by an
// idea whose price row is missing or older than maxAge. Both successes and
// failures update the row, so a broken ticker is not retried until the next
// staleness window.
func (r *Resolver) RefreshStale(ctx context.Context, store storage.PriceStore, maxAge time.Duration) (RefreshResult, error) {
	tickers, err := store.TickersNeedingRefresh(ctx, maxAge)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("list stale tickers: %w", err)
	}

	result := RefreshResult{Total: len(tickers)}
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		value, fetchErr := r.CurrentPrice(ctx, ticker)
		if fetchErr != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if !errors.Is(fetchErr, ErrUnavailable) {
				r.logger.Warn().Err(fetchErr).Str("ticker", ticker).Msg("current price fetch failed")
			}
			if err := store.UpsertPrice(ctx, ticker, nil, true); err != nil {
				return result, err
			}
			result.Failed++
			continue
		}

		if err := store.UpsertPrice(ctx, ticker, &value, false); err != nil {
			return result, err
		}
		result.Updated++
	}

	r.logger.Info().Int("updated", result.Updated).Int("failed", result.Failed).Int("total", result.Total).
		Msg("stale price refresh complete")
	return result, nil
}

func (r *Resolver) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
