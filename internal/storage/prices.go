package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	upsertPriceSQL = `INSERT INTO prices (ticker, current_price, last_updated, fetch_failed)
    VALUES ($1, $2, now(), $3)
    ON CONFLICT (ticker) DO UPDATE
    SET current_price = EXCLUDED.current_price,
        last_updated  = EXCLUDED.last_updated,
        fetch_failed  = EXCLUDED.fetch_failed;`

	selectPriceSQL = `SELECT current_price FROM prices WHERE ticker = $1;`

	allPricesSQL = `SELECT ticker, current_price FROM prices WHERE current_price IS NOT NULL;`

	tickersNeedingRefreshSQL = `SELECT DISTINCT i.ticker
    FROM ideas i
    LEFT JOIN prices p ON p.ticker = i.ticker
    WHERE p.ticker IS NULL
       OR p.last_updated < $1
    ORDER BY i.ticker;`
)

// UpsertPrice overwrites the current price row for a ticker. Failed attempts
// store a NULL price with the fetch_failed flag set, which still refreshes
// the staleness timestamp.
func (s *Store) UpsertPrice(ctx context.Context, ticker string, price *decimal.Decimal, fetchFailed bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var priceArg interface{}
	if price != nil {
		priceArg = price.String()
	}

	if _, execErr := pool.Exec(ctx, upsertPriceSQL, strings.ToUpper(ticker), priceArg, fetchFailed); execErr != nil {
		return fmt.Errorf("upsert price: %w", execErr)
	}
	return nil
}

// Price returns the latest known current price for a ticker, or nil when the
// ticker has no usable price.
func (s *Store) Price(ctx context.Context, ticker string) (*decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var priceStr sql.NullString
	scanErr := pool.QueryRow(ctx, selectPriceSQL, strings.ToUpper(ticker)).Scan(&priceStr)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select price: %w", scanErr)
	}
	if !priceStr.Valid {
		return nil, nil
	}

	price, convErr := decimal.NewFromString(priceStr.String)
	if convErr != nil {
		return nil, fmt.Errorf("parse current price: %w", convErr)
	}
	return &price, nil
}

// AllPrices returns every ticker with a usable current price.
func (s *Store) AllPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, allPricesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("all prices: %w", queryErr)
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			ticker   string
			priceStr string
		)
		if err := rows.Scan(&ticker, &priceStr); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse current price: %w", convErr)
		}
		prices[ticker] = price
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

// TickersNeedingRefresh returns the tickers referenced by any idea whose
// price row is missing or older than maxAge. Rows refreshed within the window
// are excluded whether or not the last attempt failed, so a broken ticker
// waits out the staleness window before it is retried.
func (s *Store) TickersNeedingRefresh(ctx context.Context, maxAge time.Duration) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	rows, queryErr := pool.Query(ctx, tickersNeedingRefreshSQL, cutoff)
	if queryErr != nil {
		return nil, fmt.Errorf("tickers needing refresh: %w", queryErr)
	}
	defer rows.Close()

	tickers := make([]string, 0)
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, err
		}
		tickers = append(tickers, ticker)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tickers, nil
}
