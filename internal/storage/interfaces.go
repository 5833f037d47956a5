package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// IdeaStore defines the idempotent author/idea ingestion operations.
type IdeaStore interface {
	UpsertAuthor(ctx context.Context, username string) (Author, error)
	TouchAuthorScraped(ctx context.Context, username string) error
	ListAuthors(ctx context.Context) ([]Author, error)
	UpsertIdea(ctx context.Context, params UpsertIdeaParams) (UpsertIdeaResult, error)
	IdeasNeedingPrice(ctx context.Context, retentionYears, limit int) ([]Idea, error)
	IdeasForAuthor(ctx context.Context, username string, years int) ([]Idea, error)
	SetIdeaPrice(ctx context.Context, ideaID int64, price decimal.Decimal) error
}

// PriceStore defines operations over the per-ticker current price cache.
type PriceStore interface {
	UpsertPrice(ctx context.Context, ticker string, price *decimal.Decimal, fetchFailed bool) error
	Price(ctx context.Context, ticker string) (*decimal.Decimal, error)
	AllPrices(ctx context.Context) (map[string]decimal.Decimal, error)
	TickersNeedingRefresh(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// MetricsStore defines operations over computed author metrics.
type MetricsStore interface {
	UpsertAuthorMetrics(ctx context.Context, username string, value MetricsValue) error
	Leaderboard(ctx context.Context, sortKey string, limit, offset int) (LeaderboardPage, error)
	SearchAuthors(ctx context.Context, prefix string, limit int) ([]LeaderboardRow, error)
	AuthorMetricsByUsername(ctx context.Context, username string) (LeaderboardRow, error)
}

// JobLogStore defines the append-only job log and status counters.
type JobLogStore interface {
	AppendJobRun(ctx context.Context, run JobRun) error
	LatestJobRun(ctx context.Context) (*JobRun, error)
	AggregateCounts(ctx context.Context) (Counts, error)
}

// SessionStore persists forum session cookies between runs.
type SessionStore interface {
	SaveSession(ctx context.Context, cookies []SessionCookie) error
	Session(ctx context.Context) ([]SessionCookie, error)
	HasValidSession(ctx context.Context) (bool, error)
}
