package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// Options parameterise the forum client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Cookies   []Cookie
}

// Client fetches and parses forum pages over plain HTTP with the stored
// session cookies attached.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a forum client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://valueinvestorsclub.com"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Verify fetches the ideas feed and checks for authenticated markers. The
// public page still renders, so the distinction is a login link without a
// matching logout link.
func (c *Client) Verify(ctx context.Context) error {
	doc, err := c.fetch(ctx, c.baseURL+"/ideas")
	if err != nil {
		return err
	}

	page := strings.ToLower(doc.Text())
	if strings.Contains(page, "login") && !strings.Contains(page, "logout") {
		return ErrAuthentication
	}
	return nil
}

// LatestIdeas scrapes the ideas feed and returns only the most recent day's
// entries, bounded by the second date header on the page.
func (c *Client) LatestIdeas(ctx context.Context) ([]IdeaRecord, error) {
	doc, err := c.fetch(ctx, c.baseURL+"/ideas")
	if err != nil {
		return nil, err
	}

	ideas := parseIdeasFeed(doc)
	c.logger.Info().Int("ideas", len(ideas)).Msg("scraped latest day's ideas")
	return ideas, nil
}

// AuthorHistory scrapes the member's profile page and returns every idea in
// its ideas table.
func (c *Client) AuthorHistory(ctx context.Context, username string) ([]IdeaRecord, error) {
	profileURL := c.baseURL + "/member/" + url.PathEscape(username)
	doc, err := c.fetch(ctx, profileURL)
	if err != nil {
		return nil, err
	}

	ideas := parseMemberIdeas(doc, username)
	c.logger.Info().Str("author", username).Int("ideas", len(ideas)).Msg("scraped author history")
	return ideas, nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for _, cookie := range c.opts.Cookies {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrAuthentication
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d for %s", ErrUnavailable, resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

var _ ContentSource = (*Client)(nil)
