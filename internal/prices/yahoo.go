package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const chartPath = "/v8/finance/chart/"

// YahooOptions parameterise the Yahoo Finance chart client.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo fetches quotes from the Yahoo Finance chart API.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahoo constructs a Yahoo quote client.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// CurrentPrice tries the quote fields in order and returns the first
// non-empty one.
func (y *Yahoo) CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	payload, err := y.fetchChart(ctx, ticker, url.Values{"range": {"1d"}, "interval": {"1d"}})
	if err != nil {
		return decimal.Decimal{}, err
	}

	meta := payload.Meta
	for _, candidate := range []*float64{meta.RegularMarketPrice, meta.ChartPreviousClose, meta.PreviousClose} {
		if candidate != nil && *candidate > 0 {
			return decimal.NewFromFloat(*candidate), nil
		}
	}
	return decimal.Decimal{}, ErrUnavailable
}

// DailyCloses returns the daily closes within [from, to], oldest first. Days
// without a close (halts, holidays in some venues) are skipped.
func (y *Yahoo) DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]Candle, error) {
	query := url.Values{
		"period1":  {fmt.Sprintf("%d", from.Unix())},
		"period2":  {fmt.Sprintf("%d", to.Unix())},
		"interval": {"1d"},
	}
	payload, err := y.fetchChart(ctx, ticker, query)
	if err != nil {
		return nil, err
	}

	if len(payload.Indicators.Quote) == 0 {
		return nil, ErrUnavailable
	}
	closes := payload.Indicators.Quote[0].Close

	candles := make([]Candle, 0, len(payload.Timestamp))
	for i, ts := range payload.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		candles = append(candles, Candle{
			Date:  time.Unix(ts, 0).UTC(),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}

	if len(candles) == 0 {
		return nil, ErrUnavailable
	}
	return candles, nil
}

type chartResult struct {
	Meta struct {
		RegularMarketPrice *float64 `json:"regularMarketPrice"`
		ChartPreviousClose *float64 `json:"chartPreviousClose"`
		PreviousClose      *float64 `json:"previousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) fetchChart(ctx context.Context, ticker string, query url.Values) (*chartResult, error) {
	endpoint := y.baseURL + chartPath + url.PathEscape(strings.ToUpper(ticker)) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payloadBytes)))
	}

	var parsed chartResponse
	if err := json.Unmarshal(payloadBytes, &parsed); err != nil {
		return nil, err
	}
	if parsed.Chart.Error != nil {
		y.logger.Debug().Str("ticker", ticker).Str("code", parsed.Chart.Error.Code).Msg("chart api reported error")
		return nil, ErrUnavailable
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, ErrUnavailable
	}

	return &parsed.Chart.Result[0], nil
}

var _ Quoter = (*Yahoo)(nil)
