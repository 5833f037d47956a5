package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const (
	upsertAuthorMetricsSQL = `INSERT INTO author_metrics (
        author_id,
        username,
        username_lower,
        xirr_5yr,
        xirr_3yr,
        xirr_1yr,
        total_picks,
        win_rate,
        best_pick_ticker,
        best_pick_return,
        calculated_at
    )
    SELECT a.id, a.username, a.username_lower, $2, $3, $4, $5, $6, $7, $8, now()
    FROM authors a
    WHERE a.username = $1
    ON CONFLICT (author_id) DO UPDATE
    SET xirr_5yr         = EXCLUDED.xirr_5yr,
        xirr_3yr         = EXCLUDED.xirr_3yr,
        xirr_1yr         = EXCLUDED.xirr_1yr,
        total_picks      = EXCLUDED.total_picks,
        win_rate         = EXCLUDED.win_rate,
        best_pick_ticker = EXCLUDED.best_pick_ticker,
        best_pick_return = EXCLUDED.best_pick_return,
        calculated_at    = EXCLUDED.calculated_at;`

	leaderboardColumns = `username, xirr_5yr, xirr_3yr, xirr_1yr, total_picks,
        win_rate, best_pick_ticker, best_pick_return, calculated_at`

	searchAuthorsSQL = `SELECT ` + leaderboardColumns + `
    FROM author_metrics
    WHERE username_lower LIKE $1
    ORDER BY username_lower
    LIMIT $2;`

	authorMetricsSQL = `SELECT ` + leaderboardColumns + `
    FROM author_metrics
    WHERE username_lower = $1;`
)

var leaderboardSortColumns = map[string]string{
	"xirr5yr": "xirr_5yr",
	"xirr3yr": "xirr_3yr",
	"xirr1yr": "xirr_1yr",
}

// UpsertAuthorMetrics fully replaces the metrics row for an author.
func (s *Store) UpsertAuthorMetrics(ctx context.Context, username string, value MetricsValue) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, upsertAuthorMetricsSQL,
		username,
		value.XIRR5Yr,
		value.XIRR3Yr,
		value.XIRR1Yr,
		value.TotalPicks,
		value.WinRate,
		value.BestPickTicker,
		value.BestPickReturn,
	)
	if execErr != nil {
		return fmt.Errorf("upsert author metrics: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Leaderboard returns one page of authors ranked by the given XIRR window.
// Rank is 1-based and continues across pages.
func (s *Store) Leaderboard(ctx context.Context, sortKey string, limit, offset int) (LeaderboardPage, error) {
	pool, err := s.getPool()
	if err != nil {
		return LeaderboardPage{}, err
	}

	column, ok := leaderboardSortColumns[sortKey]
	if !ok {
		column = "xirr_5yr"
	}

	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM author_metrics WHERE %s IS NOT NULL;`, column)
	var total int
	if scanErr := pool.QueryRow(ctx, countSQL).Scan(&total); scanErr != nil {
		return LeaderboardPage{}, fmt.Errorf("count leaderboard: %w", scanErr)
	}

	querySQL := fmt.Sprintf(`SELECT %s
    FROM author_metrics
    WHERE %s IS NOT NULL
    ORDER BY %s DESC
    LIMIT $1 OFFSET $2;`, leaderboardColumns, column, column)

	rows, queryErr := pool.Query(ctx, querySQL, limit, offset)
	if queryErr != nil {
		return LeaderboardPage{}, fmt.Errorf("query leaderboard: %w", queryErr)
	}
	defer rows.Close()

	page := LeaderboardPage{
		Rows:   make([]LeaderboardRow, 0, limit),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for rows.Next() {
		entry, scanErr := scanLeaderboardRow(rows)
		if scanErr != nil {
			return LeaderboardPage{}, scanErr
		}
		entry.Rank = offset + len(page.Rows) + 1
		page.Rows = append(page.Rows, entry)
	}
	if rows.Err() != nil {
		return LeaderboardPage{}, rows.Err()
	}
	return page, nil
}

// SearchAuthors matches authors with metrics by username prefix,
// case-insensitive.
func (s *Store) SearchAuthors(ctx context.Context, prefix string, limit int) ([]LeaderboardRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	pattern := strings.ToLower(strings.TrimSpace(prefix)) + "%"
	rows, queryErr := pool.Query(ctx, searchAuthorsSQL, pattern, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("search authors: %w", queryErr)
	}
	defer rows.Close()

	results := make([]LeaderboardRow, 0, limit)
	for rows.Next() {
		entry, scanErr := scanLeaderboardRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		results = append(results, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

// AuthorMetricsByUsername returns the metrics row for one author, or
// ErrNotFound when none has been computed yet.
func (s *Store) AuthorMetricsByUsername(ctx context.Context, username string) (LeaderboardRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return LeaderboardRow{}, err
	}

	rows, queryErr := pool.Query(ctx, authorMetricsSQL, strings.ToLower(strings.TrimSpace(username)))
	if queryErr != nil {
		return LeaderboardRow{}, fmt.Errorf("query author metrics: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return LeaderboardRow{}, rows.Err()
		}
		return LeaderboardRow{}, ErrNotFound
	}
	return scanLeaderboardRow(rows)
}

func scanLeaderboardRow(rows pgx.Rows) (LeaderboardRow, error) {
	var (
		entry      LeaderboardRow
		xirr5      sql.NullFloat64
		xirr3      sql.NullFloat64
		xirr1      sql.NullFloat64
		winRate    sql.NullFloat64
		bestTicker sql.NullString
		bestReturn sql.NullFloat64
	)

	if err := rows.Scan(
		&entry.Username,
		&xirr5,
		&xirr3,
		&xirr1,
		&entry.TotalPicks,
		&winRate,
		&bestTicker,
		&bestReturn,
		&entry.CalculatedAt,
	); err != nil {
		return LeaderboardRow{}, err
	}

	if xirr5.Valid {
		value := xirr5.Float64
		entry.XIRR5Yr = &value
	}
	if xirr3.Valid {
		value := xirr3.Float64
		entry.XIRR3Yr = &value
	}
	if xirr1.Valid {
		value := xirr1.Float64
		entry.XIRR1Yr = &value
	}
	if winRate.Valid {
		value := winRate.Float64
		entry.WinRate = &value
	}
	if bestTicker.Valid {
		value := bestTicker.String
		entry.BestPickTicker = &value
	}
	if bestReturn.Valid {
		value := bestReturn.Float64
		entry.BestPickReturn = &value
	}

	return entry, nil
}
