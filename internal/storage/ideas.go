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
	upsertAuthorSQL = `INSERT INTO authors (username, username_lower)
    VALUES ($1, $2)
    ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
    RETURNING id, username, username_lower, discovered_at, last_scraped_at;`

	touchAuthorScrapedSQL = `UPDATE authors SET last_scraped_at = now() WHERE username = $1;`

	listAuthorsSQL = `SELECT id, username, username_lower, discovered_at, last_scraped_at
    FROM authors
    ORDER BY id;`

	selectIdeaBySourceIDSQL = `SELECT id FROM ideas WHERE source_idea_id = $1;`
	selectIdeaByURLSQL      = `SELECT id FROM ideas WHERE idea_url = $1;`

	insertIdeaSQL = `INSERT INTO ideas (
        author_id,
        source_idea_id,
        ticker,
        company_name,
        posted_date,
        position_type,
        price_at_rec,
        idea_url
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id;`

	ideasNeedingPriceSQL = `SELECT i.id, i.author_id, a.username, i.source_idea_id, i.ticker,
        i.company_name, i.posted_date, i.position_type, i.price_at_rec, i.idea_url, i.scraped_at
    FROM ideas i
    JOIN authors a ON a.id = i.author_id
    WHERE i.price_at_rec IS NULL
      AND i.posted_date >= $1
    ORDER BY i.id
    LIMIT $2;`

	ideasForAuthorSQL = `SELECT i.id, i.author_id, a.username, i.source_idea_id, i.ticker,
        i.company_name, i.posted_date, i.position_type, i.price_at_rec, i.idea_url, i.scraped_at
    FROM ideas i
    JOIN authors a ON a.id = i.author_id
    WHERE a.username = $1
      AND i.posted_date >= $2
    ORDER BY i.posted_date DESC;`

	setIdeaPriceSQL = `UPDATE ideas SET price_at_rec = $2 WHERE id = $1;`
)

// UpsertAuthor creates the author on first sighting and returns the row.
func (s *Store) UpsertAuthor(ctx context.Context, username string) (Author, error) {
	pool, err := s.getPool()
	if err != nil {
		return Author{}, err
	}

	row := pool.QueryRow(ctx, upsertAuthorSQL, username, strings.ToLower(username))
	author, scanErr := scanAuthor(row)
	if scanErr != nil {
		return Author{}, fmt.Errorf("upsert author: %w", scanErr)
	}
	return author, nil
}

// TouchAuthorScraped records a completed full-history scrape for the author.
func (s *Store) TouchAuthorScraped(ctx context.Context, username string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, touchAuthorScrapedSQL, username); execErr != nil {
		return fmt.Errorf("touch author scraped: %w", execErr)
	}
	return nil
}

// ListAuthors returns every known author.
func (s *Store) ListAuthors(ctx context.Context) ([]Author, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAuthorsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list authors: %w", queryErr)
	}
	defer rows.Close()

	authors := make([]Author, 0)
	for rows.Next() {
		author, scanErr := scanAuthor(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		authors = append(authors, author)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return authors, nil
}

// UpsertIdea stores an idea record atomically. If the record's dedup key
// (source idea id, else idea URL) matches an existing row, the existing row
// is left untouched and AlreadyExisted is reported. Records with neither key
// are inserted unconditionally and may produce duplicates.
func (s *Store) UpsertIdea(ctx context.Context, params UpsertIdeaParams) (UpsertIdeaResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return UpsertIdeaResult{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return UpsertIdeaResult{}, fmt.Errorf("begin upsert idea: %w", err)
	}
	defer tx.Rollback(ctx)

	var authorID int64
	row := tx.QueryRow(ctx, upsertAuthorSQL, params.AuthorUsername, strings.ToLower(params.AuthorUsername))
	author, scanErr := scanAuthor(row)
	if scanErr != nil {
		return UpsertIdeaResult{}, fmt.Errorf("upsert idea author: %w", scanErr)
	}
	authorID = author.ID

	if params.SourceIdeaID != nil && *params.SourceIdeaID != "" {
		var existing int64
		err := tx.QueryRow(ctx, selectIdeaBySourceIDSQL, *params.SourceIdeaID).Scan(&existing)
		if err == nil {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return UpsertIdeaResult{}, commitErr
			}
			return UpsertIdeaResult{ID: existing, AlreadyExisted: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return UpsertIdeaResult{}, fmt.Errorf("lookup idea by source id: %w", err)
		}
	}

	if params.IdeaURL != nil && *params.IdeaURL != "" {
		var existing int64
		err := tx.QueryRow(ctx, selectIdeaByURLSQL, *params.IdeaURL).Scan(&existing)
		if err == nil {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return UpsertIdeaResult{}, commitErr
			}
			return UpsertIdeaResult{ID: existing, AlreadyExisted: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return UpsertIdeaResult{}, fmt.Errorf("lookup idea by url: %w", err)
		}
	}

	position := params.PositionType
	if position == "" {
		position = PositionLong
	}

	var priceArg interface{}
	if params.PriceAtRec != nil {
		priceArg = params.PriceAtRec.String()
	}

	var id int64
	insertErr := tx.QueryRow(ctx, insertIdeaSQL,
		authorID,
		params.SourceIdeaID,
		strings.ToUpper(params.Ticker),
		params.CompanyName,
		params.PostedDate,
		position,
		priceArg,
		params.IdeaURL,
	).Scan(&id)
	if insertErr != nil {
		return UpsertIdeaResult{}, fmt.Errorf("insert idea: %w", insertErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return UpsertIdeaResult{}, commitErr
	}
	return UpsertIdeaResult{ID: id, AlreadyExisted: false}, nil
}

// IdeasNeedingPrice returns ideas whose price-at-recommendation has not been
// resolved, limited to the retention window. Ideas carrying the failure
// sentinel are not selected again.
func (s *Store) IdeasNeedingPrice(ctx context.Context, retentionYears, limit int) ([]Idea, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(-retentionYears, 0, 0)
	rows, queryErr := pool.Query(ctx, ideasNeedingPriceSQL, cutoff, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("ideas needing price: %w", queryErr)
	}
	defer rows.Close()

	return collectIdeas(rows)
}

// IdeasForAuthor returns the author's ideas posted within the past N years,
// newest first.
func (s *Store) IdeasForAuthor(ctx context.Context, username string, years int) ([]Idea, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(-years, 0, 0)
	rows, queryErr := pool.Query(ctx, ideasForAuthorSQL, username, cutoff)
	if queryErr != nil {
		return nil, fmt.Errorf("ideas for author: %w", queryErr)
	}
	defer rows.Close()

	return collectIdeas(rows)
}

// SetIdeaPrice records the resolved (or sentinel) price-at-recommendation.
func (s *Store) SetIdeaPrice(ctx context.Context, ideaID int64, price decimal.Decimal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, setIdeaPriceSQL, ideaID, price.String())
	if execErr != nil {
		return fmt.Errorf("set idea price: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectIdeas(rows pgx.Rows) ([]Idea, error) {
	ideas := make([]Idea, 0)
	for rows.Next() {
		idea, scanErr := scanIdea(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		ideas = append(ideas, idea)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ideas, nil
}

func scanAuthor(row pgx.Row) (Author, error) {
	var (
		author      Author
		lastScraped sql.NullTime
	)
	if err := row.Scan(
		&author.ID,
		&author.Username,
		&author.UsernameLower,
		&author.DiscoveredAt,
		&lastScraped,
	); err != nil {
		return Author{}, err
	}
	if lastScraped.Valid {
		value := lastScraped.Time
		author.LastScrapedAt = &value
	}
	return author, nil
}

func scanIdea(rows pgx.Rows) (Idea, error) {
	var (
		idea       Idea
		sourceID   sql.NullString
		company    sql.NullString
		priceStr   sql.NullString
		ideaURL    sql.NullString
		postedDate time.Time
	)

	if err := rows.Scan(
		&idea.ID,
		&idea.AuthorID,
		&idea.Author,
		&sourceID,
		&idea.Ticker,
		&company,
		&postedDate,
		&idea.PositionType,
		&priceStr,
		&ideaURL,
		&idea.ScrapedAt,
	); err != nil {
		return Idea{}, err
	}

	idea.PostedDate = postedDate
	if sourceID.Valid {
		value := sourceID.String
		idea.SourceIdeaID = &value
	}
	if company.Valid {
		value := company.String
		idea.CompanyName = &value
	}
	if ideaURL.Valid {
		value := ideaURL.String
		idea.IdeaURL = &value
	}
	if priceStr.Valid {
		price, convErr := decimal.NewFromString(priceStr.String)
		if convErr != nil {
			return Idea{}, fmt.Errorf("parse price_at_rec: %w", convErr)
		}
		idea.PriceAtRec = &price
	}

	return idea, nil
}
