package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ideaboard/internal/config"
	"ideaboard/internal/notify"
	"ideaboard/internal/pipeline"
	"ideaboard/internal/prices"
	"ideaboard/internal/returns"
	"ideaboard/internal/source"
	"ideaboard/internal/storage"
	"ideaboard/internal/throttle"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	store    *storage.Store
	limiter  *throttle.Limiter
	resolver *prices.Resolver
	runner   *pipeline.Runner
	notifier notify.Notifier

	// rootCtx outlives individual requests so a background run started from
	// the API is not cancelled when the triggering request completes.
	rootCtx context.Context
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// Init connects the store and wires the pipeline components. The returned
// closer releases the database pool.
func (a *App) Init(ctx context.Context) (func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	a.store = storage.NewStore(pool)
	if err := a.store.EnsureSchema(ctx); err != nil {
		a.store.Close()
		return nil, err
	}

	a.limiter = throttle.New(throttle.Options{
		BaseMin:   a.Config.Throttle.BaseMin,
		BaseMax:   a.Config.Throttle.BaseMax,
		JitterMax: a.Config.Throttle.JitterMax,
		LongEvery: a.Config.Throttle.LongEvery,
		LongMin:   a.Config.Throttle.LongMin,
		LongMax:   a.Config.Throttle.LongMax,
	}, a.Logger)

	quoter := prices.NewYahoo(prices.YahooOptions{
		BaseURL:   a.Config.Prices.BaseURL,
		Timeout:   a.Config.Prices.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)

	a.resolver = prices.NewResolver(prices.ResolverOptions{
		Freshness: a.Config.Prices.Freshness,
	}, quoter, a.newCache(), a.limiter, a.Logger)

	a.notifier = a.newNotifier()
	a.runner = pipeline.NewRunner(pipeline.Options{
		HistoryYears:  a.Config.Pipeline.HistoryYears,
		RecPriceBatch: a.Config.Pipeline.RecPriceBatch,
		PriceMaxAge:   time.Duration(a.Config.Prices.MaxAgeHours) * time.Hour,
		OnFinish:      a.onRunFinish,
	}, a.store, a.resolver, a.limiter, a.Logger)

	a.rootCtx = ctx
	return a.store.Close, nil
}

func (a *App) newCache() prices.Cache {
	if a.Config.Cache.RedisAddr == "" {
		return prices.NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:        a.Config.Cache.RedisAddr,
		Password:    a.Config.Cache.RedisPassword,
		DB:          a.Config.Cache.RedisDB,
		DialTimeout: a.Config.Cache.DialTimeout,
	})
	return prices.NewRedisCache(client)
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) onRunFinish(status pipeline.Status) {
	if a.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.notifier.Notify(ctx, notify.ReportFromStatus(status)); err != nil {
		a.Logger.Warn().Err(err).Msg("run notification failed")
	}
}

// sourceClient builds a forum client from the stored session cookies.
func (a *App) sourceClient(ctx context.Context) (*source.Client, error) {
	stored, err := a.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: no stored session", source.ErrAuthentication)
	}

	cookies := make([]source.Cookie, 0, len(stored))
	for _, cookie := range stored {
		cookies = append(cookies, source.Cookie{Name: cookie.Name, Value: cookie.Value, Domain: cookie.Domain})
	}
	return source.NewClient(source.Options{
		BaseURL:   a.Config.Source.BaseURL,
		UserAgent: a.Config.Source.UserAgent,
		Timeout:   a.Config.Source.RequestTimeout,
		Cookies:   cookies,
	}, a.Logger), nil
}

// Status returns the pipeline status snapshot.
func (a *App) Status() pipeline.Status {
	return a.runner.Status()
}

// StartRun launches a background pipeline run using the stored session.
func (a *App) StartRun() error {
	src, err := a.sourceClient(a.rootCtx)
	if err != nil {
		return err
	}
	return a.runner.Start(a.rootCtx, src)
}

// SubmitSession verifies the cookies against the forum and persists them.
func (a *App) SubmitSession(ctx context.Context, cookies []storage.SessionCookie) error {
	probe := make([]source.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		probe = append(probe, source.Cookie{Name: cookie.Name, Value: cookie.Value, Domain: cookie.Domain})
	}

	client := source.NewClient(source.Options{
		BaseURL:   a.Config.Source.BaseURL,
		UserAgent: a.Config.Source.UserAgent,
		Timeout:   a.Config.Source.RequestTimeout,
		Cookies:   probe,
	}, a.Logger)
	if err := client.Verify(ctx); err != nil {
		return err
	}

	return a.store.SaveSession(ctx, cookies)
}

// HasValidSession reports whether session cookies are stored.
func (a *App) HasValidSession(ctx context.Context) (bool, error) {
	return a.store.HasValidSession(ctx)
}

// RefreshPrices re-fetches stale current prices outside a full run.
func (a *App) RefreshPrices(ctx context.Context) (prices.RefreshResult, error) {
	maxAge := time.Duration(a.Config.Prices.MaxAgeHours) * time.Hour
	return a.resolver.RefreshStale(ctx, a.store, maxAge)
}

// RecomputeMetrics recomputes metrics for every author outside a full run.
func (a *App) RecomputeMetrics(ctx context.Context) (int, error) {
	authors, err := a.store.ListAuthors(ctx)
	if err != nil {
		return 0, err
	}
	current, err := a.store.AllPrices(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, author := range authors {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		ideas, err := a.store.IdeasForAuthor(ctx, author.Username, a.Config.Pipeline.HistoryYears)
		if err != nil {
			return 0, err
		}
		value := returns.ComputeMetrics(ideas, current, now)
		if err := a.store.UpsertAuthorMetrics(ctx, author.Username, value); err != nil {
			return 0, err
		}
	}
	return len(authors), nil
}
