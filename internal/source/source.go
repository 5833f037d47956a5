package source

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAuthentication indicates the stored session is not valid for
	// member-only pages.
	ErrAuthentication = errors.New("source: session not authenticated")
	// ErrUnavailable indicates the forum could not be reached or returned an
	// unusable page.
	ErrUnavailable = errors.New("source: content unavailable")
)

// Cookie is one forum session cookie forwarded with every request.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// IdeaRecord is one recommendation as published by the forum. CompanyName is
// empty when the page variant does not carry it.
type IdeaRecord struct {
	Ticker       string
	Author       string
	CompanyName  string
	PostedDate   time.Time
	PositionType string
	IdeaURL      string
	SourceIdeaID string
}

// ContentSource provides structured idea records from the forum.
type ContentSource interface {
	// Verify reports whether the session grants authenticated access.
	Verify(ctx context.Context) error
	// LatestIdeas returns the ideas published on the most recent day visible
	// on the ideas feed.
	LatestIdeas(ctx context.Context) ([]IdeaRecord, error)
	// AuthorHistory returns every idea listed on the member's profile page.
	AuthorHistory(ctx context.Context, username string) ([]IdeaRecord, error)
}
