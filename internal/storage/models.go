package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position types for an idea.
const (
	PositionLong  = "long"
	PositionShort = "short"
)

// Job run outcomes.
const (
	JobSuccess = "success"
	JobFailed  = "failed"
	JobPartial = "partial"
)

// RecPriceFailed is the sentinel stored when a historical price lookup was
// attempted and failed. Distinct from NULL, which means "not attempted yet".
var RecPriceFailed = decimal.NewFromInt(-1)

// Author is a tracked forum member.
type Author struct {
	ID            int64
	Username      string
	UsernameLower string
	DiscoveredAt  time.Time
	LastScrapedAt *time.Time
}

// Idea is a single stock recommendation posted by an author.
type Idea struct {
	ID           int64
	AuthorID     int64
	Author       string
	SourceIdeaID *string
	Ticker       string
	CompanyName  *string
	PostedDate   time.Time
	PositionType string
	PriceAtRec   *decimal.Decimal
	IdeaURL      *string
	ScrapedAt    time.Time
}

// Price is the latest known current price for a ticker.
type Price struct {
	Ticker       string
	CurrentPrice *decimal.Decimal
	LastUpdated  time.Time
	FetchFailed  bool
}

// MetricsValue holds one computation of an author's performance metrics.
type MetricsValue struct {
	XIRR5Yr        *float64
	XIRR3Yr        *float64
	XIRR1Yr        *float64
	TotalPicks     int
	WinRate        *float64
	BestPickTicker *string
	BestPickReturn *float64
}

// AuthorMetrics is the persisted metrics row for an author.
type AuthorMetrics struct {
	ID            int64
	AuthorID      int64
	Username      string
	UsernameLower string
	MetricsValue
	CalculatedAt time.Time
}

// JobRun is one append-only log record of a pipeline stage execution.
type JobRun struct {
	ID             int64
	Kind           string
	AuthorUsername *string
	Status         string
	ItemsProcessed int
	ErrorMessage   *string
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// SessionCookie is one stored forum session cookie.
type SessionCookie struct {
	Name   string
	Value  string
	Domain string
}

// UpsertIdeaParams carries one idea record into the store.
type UpsertIdeaParams struct {
	AuthorUsername string
	Ticker         string
	PostedDate     time.Time
	PositionType   string
	SourceIdeaID   *string
	IdeaURL        *string
	CompanyName    *string
	PriceAtRec     *decimal.Decimal
}

// UpsertIdeaResult reports the stored idea id and whether it already existed.
type UpsertIdeaResult struct {
	ID             int64
	AlreadyExisted bool
}

// LeaderboardRow is one ranked author on the leaderboard.
type LeaderboardRow struct {
	Rank           int
	Username       string
	XIRR5Yr        *float64
	XIRR3Yr        *float64
	XIRR1Yr        *float64
	TotalPicks     int
	WinRate        *float64
	BestPickTicker *string
	BestPickReturn *float64
	CalculatedAt   time.Time
}

// LeaderboardPage is one page of ranked authors.
type LeaderboardPage struct {
	Rows   []LeaderboardRow
	Total  int
	Limit  int
	Offset int
}

// Counts aggregates table sizes for status reporting.
type Counts struct {
	Authors            int64
	Ideas              int64
	AuthorsWithMetrics int64
	LastUpdated        *time.Time
}
