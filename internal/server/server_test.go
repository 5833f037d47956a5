package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ideaboard/internal/pipeline"
	"ideaboard/internal/prices"
	"ideaboard/internal/source"
	"ideaboard/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	status     pipeline.Status
	startErr   error
	submitErr  error
	hasSession bool
	started    int
	cookies    []storage.SessionCookie
}

func (f *fakeService) Status() pipeline.Status { return f.status }

func (f *fakeService) StartRun() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeService) SubmitSession(ctx context.Context, cookies []storage.SessionCookie) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.cookies = cookies
	return nil
}

func (f *fakeService) HasValidSession(ctx context.Context) (bool, error) {
	return f.hasSession, nil
}

func (f *fakeService) RefreshPrices(ctx context.Context) (prices.RefreshResult, error) {
	return prices.RefreshResult{Updated: 2, Failed: 1, Total: 3}, nil
}

func (f *fakeService) RecomputeMetrics(ctx context.Context) (int, error) {
	return 4, nil
}

type fakeStore struct {
	rows   []storage.LeaderboardRow
	ideas  map[string][]storage.Idea
	prices map[string]decimal.Decimal
	counts storage.Counts
}

func (f *fakeStore) Leaderboard(ctx context.Context, sortKey string, limit, offset int) (storage.LeaderboardPage, error) {
	ranked := append([]storage.LeaderboardRow(nil), f.rows...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return deref(ranked[i].XIRR5Yr) > deref(ranked[j].XIRR5Yr)
	})

	page := storage.LeaderboardPage{Total: len(ranked), Limit: limit, Offset: offset}
	for i := offset; i < len(ranked) && len(page.Rows) < limit; i++ {
		row := ranked[i]
		row.Rank = offset + len(page.Rows) + 1
		page.Rows = append(page.Rows, row)
	}
	return page, nil
}

func (f *fakeStore) SearchAuthors(ctx context.Context, prefix string, limit int) ([]storage.LeaderboardRow, error) {
	var out []storage.LeaderboardRow
	for _, row := range f.rows {
		if strings.HasPrefix(strings.ToLower(row.Username), strings.ToLower(prefix)) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) AuthorMetricsByUsername(ctx context.Context, username string) (storage.LeaderboardRow, error) {
	for _, row := range f.rows {
		if strings.EqualFold(row.Username, username) {
			return row, nil
		}
	}
	return storage.LeaderboardRow{}, storage.ErrNotFound
}

func (f *fakeStore) IdeasForAuthor(ctx context.Context, username string, years int) ([]storage.Idea, error) {
	return f.ideas[strings.ToLower(username)], nil
}

func (f *fakeStore) AllPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.prices, nil
}

func (f *fakeStore) AggregateCounts(ctx context.Context) (storage.Counts, error) {
	return f.counts, nil
}

func deref(value *float64) float64 {
	if value == nil {
		return -1e18
	}
	return *value
}

func f64(value float64) *float64 { return &value }

func newTestRouter(svc *fakeService, store *fakeStore) *gin.Engine {
	return New(svc, store, zerolog.Nop()).Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	decoded := make(map[string]any)
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, decoded
}

func TestLeaderboardRankingAndPagination(t *testing.T) {
	store := &fakeStore{rows: []storage.LeaderboardRow{
		{Username: "alice", XIRR5Yr: f64(30)},
		{Username: "bob", XIRR5Yr: f64(10)},
		{Username: "carol", XIRR5Yr: f64(20)},
	}}
	router := newTestRouter(&fakeService{}, store)

	rec, body := doJSON(t, router, http.MethodGet, "/api/leaderboard?limit=2&offset=0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rows := body["leaderboard"].([]any)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	first := rows[0].(map[string]any)
	second := rows[1].(map[string]any)
	if first["xirr5yr"].(float64) != 30 || second["xirr5yr"].(float64) != 20 {
		t.Fatalf("order wrong: %v then %v", first["xirr5yr"], second["xirr5yr"])
	}
	if first["rank"].(float64) != 1 || second["rank"].(float64) != 2 {
		t.Fatalf("ranks wrong: %v, %v", first["rank"], second["rank"])
	}
	if body["total"].(float64) != 3 {
		t.Fatalf("total = %v, want 3", body["total"])
	}
}

func TestScrapeStartConflict(t *testing.T) {
	svc := &fakeService{startErr: pipeline.ErrRunInProgress}
	router := newTestRouter(svc, &fakeStore{})

	rec, _ := doJSON(t, router, http.MethodPost, "/api/scrape/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestScrapeStartUnauthenticated(t *testing.T) {
	svc := &fakeService{startErr: source.ErrAuthentication}
	router := newTestRouter(svc, &fakeStore{})

	rec, _ := doJSON(t, router, http.MethodPost, "/api/scrape/start", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestScrapeStatusShape(t *testing.T) {
	completed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{status: pipeline.Status{
		RunID:           "run-1",
		Stage:           pipeline.StageComplete,
		ProgressPercent: 100,
		StartedAt:       completed.Add(-time.Hour),
		CompletedAt:     &completed,
		Counts:          storage.Counts{Authors: 3, Ideas: 12, AuthorsWithMetrics: 3},
	}}
	router := newTestRouter(svc, &fakeStore{})

	rec, body := doJSON(t, router, http.MethodGet, "/api/scrape/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["stage"] != "complete" {
		t.Fatalf("stage = %v", body["stage"])
	}
	counts := body["counts"].(map[string]any)
	if counts["ideas"].(float64) != 12 {
		t.Fatalf("counts.ideas = %v", counts["ideas"])
	}
	if _, ok := body["errors"].([]any); !ok {
		t.Fatalf("errors should be an array, got %T", body["errors"])
	}
}

func TestSessionSubmitSavesAndStarts(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc, &fakeStore{})

	payload := map[string]any{
		"cookies":     []map[string]string{{"name": "sid", "value": "abc", "domain": ".example.com"}},
		"startScrape": true,
	}
	rec, body := doJSON(t, router, http.MethodPost, "/api/session", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	if len(svc.cookies) != 1 || svc.cookies[0].Name != "sid" {
		t.Fatalf("cookies not saved: %+v", svc.cookies)
	}
	if svc.started != 1 || body["scrapeStarted"] != true {
		t.Fatalf("scrape not started: started=%d body=%v", svc.started, body)
	}
}

func TestSessionSubmitRejectsInvalid(t *testing.T) {
	svc := &fakeService{submitErr: source.ErrAuthentication}
	router := newTestRouter(svc, &fakeStore{})

	payload := map[string]any{
		"cookies": []map[string]string{{"name": "sid", "value": "bad"}},
	}
	rec, _ := doJSON(t, router, http.MethodPost, "/api/session", payload)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthorDetailWithReturns(t *testing.T) {
	rec100 := decimal.NewFromInt(100)
	store := &fakeStore{
		rows: []storage.LeaderboardRow{{Username: "deepvalue", XIRR5Yr: f64(12.5), TotalPicks: 1}},
		ideas: map[string][]storage.Idea{
			"deepvalue": {{
				Ticker:       "ACME",
				Author:       "deepvalue",
				PositionType: storage.PositionLong,
				PriceAtRec:   &rec100,
				PostedDate:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			}},
		},
		prices: map[string]decimal.Decimal{"ACME": decimal.NewFromInt(150)},
	}
	router := newTestRouter(&fakeService{}, store)

	recw, body := doJSON(t, router, http.MethodGet, "/api/author/deepvalue", nil)
	if recw.Code != http.StatusOK {
		t.Fatalf("status = %d", recw.Code)
	}
	ideas := body["ideas"].([]any)
	if len(ideas) != 1 {
		t.Fatalf("got %d ideas", len(ideas))
	}
	idea := ideas[0].(map[string]any)
	if idea["simpleReturn"].(float64) != 50.0 {
		t.Fatalf("simpleReturn = %v, want 50.0", idea["simpleReturn"])
	}
}

func TestAuthorNotFound(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeStore{})

	rec, _ := doJSON(t, router, http.MethodGet, "/api/author/nobody", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestManualUpdateEndpoints(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeStore{})

	rec, body := doJSON(t, router, http.MethodPost, "/api/update/prices", nil)
	if rec.Code != http.StatusOK || body["updated"].(float64) != 2 {
		t.Fatalf("prices: status=%d body=%v", rec.Code, body)
	}

	rec, body = doJSON(t, router, http.MethodPost, "/api/update/metrics", nil)
	if rec.Code != http.StatusOK || body["authors"].(float64) != 4 {
		t.Fatalf("metrics: status=%d body=%v", rec.Code, body)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeStore{})

	rec, _ := doJSON(t, router, http.MethodGet, "/api/leaderboard/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
