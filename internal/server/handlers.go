package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ideaboard/internal/pipeline"
	"ideaboard/internal/returns"
	"ideaboard/internal/source"
	"ideaboard/internal/storage"
)

const (
	defaultLeaderboardLimit = 25
	maxLeaderboardLimit     = 100
	defaultSearchLimit      = 10
	authorIdeasYears        = 5
)

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.AggregateCounts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"totalAuthors":       counts.Authors,
		"totalIdeas":         counts.Ideas,
		"authorsWithMetrics": counts.AuthorsWithMetrics,
		"lastUpdated":        counts.LastUpdated,
	})
}

func (s *Server) handleSessionStatus(c *gin.Context) {
	valid, err := s.svc.HasValidSession(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasSession": valid})
}

type sessionRequest struct {
	Cookies []struct {
		Name   string `json:"name" binding:"required"`
		Value  string `json:"value" binding:"required"`
		Domain string `json:"domain"`
	} `json:"cookies" binding:"required,min=1"`
	StartScrape bool `json:"startScrape"`
}

func (s *Server) handleSessionSubmit(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cookies := make([]storage.SessionCookie, 0, len(req.Cookies))
	for _, cookie := range req.Cookies {
		cookies = append(cookies, storage.SessionCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: cookie.Domain,
		})
	}

	if err := s.svc.SubmitSession(c.Request.Context(), cookies); err != nil {
		if errors.Is(err, source.ErrAuthentication) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session cookies are not authenticated"})
			return
		}
		s.fail(c, err)
		return
	}

	started := false
	if req.StartScrape {
		switch err := s.svc.StartRun(); {
		case err == nil:
			started = true
		case errors.Is(err, pipeline.ErrRunInProgress):
			// session saved either way, the run just was not started
		default:
			s.fail(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "scrapeStarted": started})
}

func (s *Server) handleScrapeStart(c *gin.Context) {
	switch err := s.svc.StartRun(); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"started": true})
	case errors.Is(err, pipeline.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
	case errors.Is(err, source.ErrAuthentication):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no valid session, submit cookies first"})
	default:
		s.fail(c, err)
	}
}

func (s *Server) handleScrapeStatus(c *gin.Context) {
	status := s.svc.Status()

	errs := status.Errors
	if errs == nil {
		errs = []string{}
	}
	payload := gin.H{
		"runId":           status.RunID,
		"stage":           status.Stage,
		"progressPercent": status.ProgressPercent,
		"currentItem":     status.CurrentItem,
		"errors":          errs,
		"counts": gin.H{
			"authors":            status.Counts.Authors,
			"ideas":              status.Counts.Ideas,
			"authorsWithMetrics": status.Counts.AuthorsWithMetrics,
		},
	}
	if !status.StartedAt.IsZero() {
		payload["startedAt"] = status.StartedAt.Format(time.RFC3339)
	}
	if status.CompletedAt != nil {
		payload["completedAt"] = status.CompletedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	sortKey := c.DefaultQuery("sort", "xirr5yr")
	limit := intQuery(c, "limit", defaultLeaderboardLimit)
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	offset := intQuery(c, "offset", 0)

	page, err := s.store.Leaderboard(c.Request.Context(), sortKey, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}

	rows := make([]gin.H, 0, len(page.Rows))
	for _, row := range page.Rows {
		rows = append(rows, leaderboardJSON(row, true))
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": rows,
		"total":       page.Total,
		"limit":       page.Limit,
		"offset":      page.Offset,
		"sort":        sortKey,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	limit := intQuery(c, "limit", defaultSearchLimit)

	rows, err := s.store.SearchAuthors(c.Request.Context(), query, limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	results := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		results = append(results, leaderboardJSON(row, false))
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleAuthor(c *gin.Context) {
	username := c.Param("username")
	ctx := c.Request.Context()

	metrics, err := s.store.AuthorMetricsByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "author not found"})
			return
		}
		s.fail(c, err)
		return
	}

	ideas, err := s.store.IdeasForAuthor(ctx, username, authorIdeasYears)
	if err != nil {
		s.fail(c, err)
		return
	}
	current, err := s.store.AllPrices(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	ideaRows := make([]gin.H, 0, len(ideas))
	for _, idea := range ideas {
		row := gin.H{
			"ticker":       idea.Ticker,
			"companyName":  idea.CompanyName,
			"postedDate":   idea.PostedDate.Format("2006-01-02"),
			"positionType": idea.PositionType,
			"ideaUrl":      idea.IdeaURL,
		}
		if idea.PriceAtRec != nil && idea.PriceAtRec.Sign() > 0 {
			row["priceAtRec"] = idea.PriceAtRec.String()
		}
		if price, ok := current[idea.Ticker]; ok {
			row["currentPrice"] = price.String()
		}
		if ret, ok := returns.SimpleReturn(idea, current); ok {
			row["simpleReturn"] = round1(ret)
		}
		ideaRows = append(ideaRows, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"author": leaderboardJSON(metrics, false),
		"ideas":  ideaRows,
	})
}

func (s *Server) handleUpdatePrices(c *gin.Context) {
	result, err := s.svc.RefreshPrices(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"updated": result.Updated,
		"failed":  result.Failed,
		"total":   result.Total,
	})
}

func (s *Server) handleUpdateMetrics(c *gin.Context) {
	authors, err := s.svc.RecomputeMetrics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authors": authors})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func leaderboardJSON(row storage.LeaderboardRow, withRank bool) gin.H {
	payload := gin.H{
		"username":       row.Username,
		"xirr5yr":        row.XIRR5Yr,
		"xirr3yr":        row.XIRR3Yr,
		"xirr1yr":        row.XIRR1Yr,
		"totalPicks":     row.TotalPicks,
		"winRate":        row.WinRate,
		"bestPickTicker": row.BestPickTicker,
		"bestPickReturn": row.BestPickReturn,
		"calculatedAt":   row.CalculatedAt.Format(time.RFC3339),
	}
	if withRank {
		payload["rank"] = row.Rank
	}
	return payload
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
