package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	appendJobRunSQL = `INSERT INTO job_runs (
        kind,
        author_username,
        status,
        items_processed,
        error_message,
        started_at,
        completed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	latestJobRunSQL = `SELECT id, kind, author_username, status, items_processed,
        error_message, started_at, completed_at
    FROM job_runs
    ORDER BY started_at DESC
    LIMIT 1;`

	aggregateCountsSQL = `SELECT
        (SELECT COUNT(*) FROM authors),
        (SELECT COUNT(*) FROM ideas),
        (SELECT COUNT(*) FROM author_metrics),
        (SELECT MAX(calculated_at) FROM author_metrics);`

	saveSessionDeleteSQL = `DELETE FROM session_cookies;`
	saveSessionInsertSQL = `INSERT INTO session_cookies (name, value, domain) VALUES ($1, $2, $3);`
	selectSessionSQL     = `SELECT name, value, COALESCE(domain, '') FROM session_cookies WHERE is_valid ORDER BY id;`
	hasSessionSQL        = `SELECT EXISTS (SELECT 1 FROM session_cookies WHERE is_valid);`
)

// AppendJobRun appends one record to the job log. Records are never mutated
// afterwards.
func (s *Store) AppendJobRun(ctx context.Context, run JobRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, appendJobRunSQL,
		run.Kind,
		run.AuthorUsername,
		run.Status,
		run.ItemsProcessed,
		run.ErrorMessage,
		run.StartedAt,
		run.CompletedAt,
	); execErr != nil {
		return fmt.Errorf("append job run: %w", execErr)
	}
	return nil
}

// LatestJobRun returns the most recently started job record, or nil when the
// log is empty.
func (s *Store) LatestJobRun(ctx context.Context) (*JobRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		run       JobRun
		author    sql.NullString
		errMsg    sql.NullString
		completed sql.NullTime
	)
	scanErr := pool.QueryRow(ctx, latestJobRunSQL).Scan(
		&run.ID,
		&run.Kind,
		&author,
		&run.Status,
		&run.ItemsProcessed,
		&errMsg,
		&run.StartedAt,
		&completed,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest job run: %w", scanErr)
	}

	if author.Valid {
		value := author.String
		run.AuthorUsername = &value
	}
	if errMsg.Valid {
		value := errMsg.String
		run.ErrorMessage = &value
	}
	if completed.Valid {
		value := completed.Time
		run.CompletedAt = &value
	}
	return &run, nil
}

// AggregateCounts reports table sizes for the status and health surfaces.
func (s *Store) AggregateCounts(ctx context.Context) (Counts, error) {
	pool, err := s.getPool()
	if err != nil {
		return Counts{}, err
	}

	var (
		counts      Counts
		lastUpdated sql.NullTime
	)
	if scanErr := pool.QueryRow(ctx, aggregateCountsSQL).Scan(
		&counts.Authors,
		&counts.Ideas,
		&counts.AuthorsWithMetrics,
		&lastUpdated,
	); scanErr != nil {
		return Counts{}, fmt.Errorf("aggregate counts: %w", scanErr)
	}
	if lastUpdated.Valid {
		value := lastUpdated.Time
		counts.LastUpdated = &value
	}
	return counts, nil
}

// SaveSession replaces the stored forum session cookies.
func (s *Store) SaveSession(ctx context.Context, cookies []SessionCookie) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, execErr := tx.Exec(ctx, saveSessionDeleteSQL); execErr != nil {
		return fmt.Errorf("clear session: %w", execErr)
	}
	for _, cookie := range cookies {
		if _, execErr := tx.Exec(ctx, saveSessionInsertSQL, cookie.Name, cookie.Value, cookie.Domain); execErr != nil {
			return fmt.Errorf("save session cookie: %w", execErr)
		}
	}

	return tx.Commit(ctx)
}

// Session returns the stored forum session cookies.
func (s *Store) Session(ctx context.Context) ([]SessionCookie, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, selectSessionSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("load session: %w", queryErr)
	}
	defer rows.Close()

	cookies := make([]SessionCookie, 0)
	for rows.Next() {
		var cookie SessionCookie
		if err := rows.Scan(&cookie.Name, &cookie.Value, &cookie.Domain); err != nil {
			return nil, err
		}
		cookies = append(cookies, cookie)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return cookies, nil
}

// HasValidSession reports whether any valid session cookies are stored.
func (s *Store) HasValidSession(ctx context.Context) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var has bool
	if scanErr := pool.QueryRow(ctx, hasSessionSQL).Scan(&has); scanErr != nil {
		return false, fmt.Errorf("check session: %w", scanErr)
	}
	return has, nil
}
