// Package server exposes the REST surface: pipeline control and status,
// session management, leaderboard and author queries.
package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ideaboard/internal/pipeline"
	"ideaboard/internal/prices"
	"ideaboard/internal/storage"
)

// Service is the application surface the HTTP handlers drive.
type Service interface {
	// Status returns the pipeline status snapshot.
	Status() pipeline.Status
	// StartRun launches a background pipeline run. Returns
	// pipeline.ErrRunInProgress on conflict and source.ErrAuthentication
	// when no valid session is available.
	StartRun() error
	// SubmitSession verifies and persists forum session cookies.
	SubmitSession(ctx context.Context, cookies []storage.SessionCookie) error
	// HasValidSession reports whether a session is stored.
	HasValidSession(ctx context.Context) (bool, error)
	// RefreshPrices re-fetches stale current prices.
	RefreshPrices(ctx context.Context) (prices.RefreshResult, error)
	// RecomputeMetrics recomputes metrics for every author and returns how
	// many were processed.
	RecomputeMetrics(ctx context.Context) (int, error)
}

// Store is the read side the query handlers need. *storage.Store satisfies it.
type Store interface {
	Leaderboard(ctx context.Context, sortKey string, limit, offset int) (storage.LeaderboardPage, error)
	SearchAuthors(ctx context.Context, prefix string, limit int) ([]storage.LeaderboardRow, error)
	AuthorMetricsByUsername(ctx context.Context, username string) (storage.LeaderboardRow, error)
	IdeasForAuthor(ctx context.Context, username string, years int) ([]storage.Idea, error)
	AllPrices(ctx context.Context) (map[string]decimal.Decimal, error)
	AggregateCounts(ctx context.Context) (storage.Counts, error)
}

// Server wires the gin router over the service and the read store.
type Server struct {
	svc    Service
	store  Store
	logger zerolog.Logger
}

// New constructs the HTTP server layer.
func New(svc Service, store Store, logger zerolog.Logger) *Server {
	return &Server{
		svc:    svc,
		store:  store,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/session", s.handleSessionStatus)
		api.POST("/session", s.handleSessionSubmit)

		api.POST("/scrape/start", s.handleScrapeStart)
		api.GET("/scrape/status", s.handleScrapeStatus)

		api.GET("/leaderboard", s.handleLeaderboard)
		api.GET("/leaderboard/search", s.handleSearch)
		api.GET("/author/:username", s.handleAuthor)

		api.POST("/update/prices", s.handleUpdatePrices)
		api.POST("/update/metrics", s.handleUpdateMetrics)
	}

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
}
