// Package pipeline drives the staged ingestion-and-metrics job: discover the
// latest ideas, backfill author histories, resolve prices and recompute
// author metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ideaboard/internal/prices"
	"ideaboard/internal/returns"
	"ideaboard/internal/source"
	"ideaboard/internal/storage"
)

// ErrRunInProgress is returned when a run is requested while another is
// active. The request is rejected, never queued.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

// Stage identifies one phase of a pipeline run.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageDiscovering     Stage = "discovering_ideas"
	StageIngesting       Stage = "ingesting_ideas"
	StageBackfilling     Stage = "backfilling_authors"
	StageResolvingPrices Stage = "resolving_rec_prices"
	StageRefreshing      Stage = "refreshing_current_prices"
	StageComputing       Stage = "computing_metrics"
	StageComplete        Stage = "complete"
	StageFailed          Stage = "failed"
)

// Store bundles the persistence operations a run needs.
type Store interface {
	storage.IdeaStore
	storage.PriceStore
	storage.MetricsStore
	storage.JobLogStore
}

// PriceResolver resolves historical prices and refreshes stale current ones.
type PriceResolver interface {
	HistoricalPrice(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error)
	RefreshStale(ctx context.Context, store storage.PriceStore, maxAge time.Duration) (prices.RefreshResult, error)
}

// Throttler delays the caller before the next external fetch.
type Throttler interface {
	Wait(ctx context.Context) error
}

// Options configure a pipeline runner.
type Options struct {
	// HistoryYears bounds both backfill retention and metric windows.
	HistoryYears int
	// RecPriceBatch caps how many unresolved recommendation prices one run
	// attempts to resolve.
	RecPriceBatch int
	// PriceMaxAge is the staleness window for the current-price refresh.
	PriceMaxAge time.Duration
	// OnFinish, when set, is called with the final status after every run,
	// successful or not.
	OnFinish func(Status)
}

// Runner owns the run guard and the observable status of the pipeline. It is
// long-lived; Status keeps reflecting the most recent run after it finishes.
type Runner struct {
	opts     Options
	store    Store
	resolver PriceResolver
	limiter  Throttler
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	status  Status
}

// NewRunner constructs a pipeline runner.
func NewRunner(opts Options, store Store, resolver PriceResolver, limiter Throttler, logger zerolog.Logger) *Runner {
	if opts.HistoryYears <= 0 {
		opts.HistoryYears = 5
	}
	if opts.RecPriceBatch <= 0 {
		opts.RecPriceBatch = 100
	}
	if opts.PriceMaxAge <= 0 {
		opts.PriceMaxAge = 24 * time.Hour
	}

	return &Runner{
		opts:     opts,
		store:    store,
		resolver: resolver,
		limiter:  limiter,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		status:   Status{Stage: StageIdle},
	}
}

// Run executes one full pipeline cycle against src. A second call while a
// run is active returns ErrRunInProgress. The session is verified before any
// stage starts; an invalid session rejects the whole run.
func (r *Runner) Run(ctx context.Context, src source.ContentSource) error {
	if err := r.acquire(); err != nil {
		return err
	}
	return r.execute(ctx, src)
}

// Start behaves like Run but executes the stages in a background goroutine.
// The guard is acquired synchronously, so a conflicting run is still rejected
// immediately. ctx must outlive the run; pass a long-lived context, not a
// request-scoped one.
func (r *Runner) Start(ctx context.Context, src source.ContentSource) error {
	if err := r.acquire(); err != nil {
		return err
	}
	go func() {
		if err := r.execute(ctx, src); err != nil {
			r.logger.Error().Err(err).Msg("background run failed")
		}
	}()
	return nil
}

func (r *Runner) execute(ctx context.Context, src source.ContentSource) error {
	defer r.release()

	err := src.Verify(ctx)
	if err == nil {
		err = r.runStages(ctx, src)
	}

	if err != nil {
		r.finish(StageFailed, err)
	} else {
		r.finish(StageComplete, nil)
	}
	if r.opts.OnFinish != nil {
		r.opts.OnFinish(r.Status())
	}
	return err
}

func (r *Runner) runStages(ctx context.Context, src source.ContentSource) error {
	records, err := r.discoverIdeas(ctx, src)
	if err != nil {
		return err
	}

	authors, err := r.ingestIdeas(ctx, records)
	if err != nil {
		return err
	}

	if err := r.backfillAuthors(ctx, src, authors); err != nil {
		return err
	}

	if err := r.resolveRecPrices(ctx); err != nil {
		return err
	}

	if err := r.refreshCurrentPrices(ctx); err != nil {
		return err
	}

	return r.computeMetrics(ctx)
}

func (r *Runner) discoverIdeas(ctx context.Context, src source.ContentSource) ([]source.IdeaRecord, error) {
	r.setStage(StageDiscovering)

	records, err := src.LatestIdeas(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover latest ideas: %w", err)
	}

	r.logger.Info().Int("ideas", len(records)).Msg("latest-day ideas discovered")
	r.setProgress(100, "")
	return records, nil
}

// ingestIdeas upserts every discovered idea and returns the distinct authors
// referenced. Existing authors are included: a daily sighting only proves one
// idea exists, so the author set drives backfill unconditionally.
func (r *Runner) ingestIdeas(ctx context.Context, records []source.IdeaRecord) (map[string]struct{}, error) {
	r.setStage(StageIngesting)
	started := time.Now().UTC()

	authors := make(map[string]struct{})
	var inserted int
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := r.store.UpsertIdea(ctx, ideaParams(rec))
		if err != nil {
			return nil, fmt.Errorf("ingest idea %s by %s: %w", rec.Ticker, rec.Author, err)
		}
		if !result.AlreadyExisted {
			inserted++
		}
		authors[rec.Author] = struct{}{}
		r.setProgress(percent(i+1, len(records)), rec.Ticker)
	}

	r.appendJobRun(ctx, "ingest_ideas", nil, storage.JobSuccess, len(records), nil, started)
	r.logger.Info().Int("seen", len(records)).Int("new", inserted).Int("authors", len(authors)).
		Msg("daily ideas ingested")
	return authors, nil
}

// backfillAuthors fetches each referenced author's full history through the
// throttler. Per-author failures are recorded and skipped; they do not abort
// the run. Iteration order is map order and deliberately unspecified.
func (r *Runner) backfillAuthors(ctx context.Context, src source.ContentSource, authors map[string]struct{}) error {
	r.setStage(StageBackfilling)

	cutoff := time.Now().UTC().AddDate(-r.opts.HistoryYears, 0, 0)
	done := 0
	for username := range authors {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now().UTC()
		processed, err := r.backfillOne(ctx, src, username, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msg := err.Error()
			r.addError(fmt.Sprintf("backfill %s: %s", username, msg))
			r.appendJobRun(ctx, "backfill_author", &username, storage.JobFailed, processed, &msg, started)
			r.logger.Warn().Err(err).Str("author", username).Msg("author backfill failed")
		} else {
			r.appendJobRun(ctx, "backfill_author", &username, storage.JobSuccess, processed, nil, started)
		}

		done++
		r.setProgress(percent(done, len(authors)), username)
	}

	return nil
}

func (r *Runner) backfillOne(ctx context.Context, src source.ContentSource, username string, cutoff time.Time) (int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	history, err := src.AuthorHistory(ctx, username)
	if err != nil {
		return 0, err
	}

	if _, err := r.store.UpsertAuthor(ctx, username); err != nil {
		return 0, err
	}

	var processed int
	for _, rec := range history {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if rec.PostedDate.Before(cutoff) {
			continue
		}
		if rec.Author == "" {
			rec.Author = username
		}
		if _, err := r.store.UpsertIdea(ctx, ideaParams(rec)); err != nil {
			return processed, err
		}
		processed++
	}

	if err := r.store.TouchAuthorScraped(ctx, username); err != nil {
		return processed, err
	}
	return processed, nil
}

// resolveRecPrices resolves the price-at-recommendation for one batch of
// unresolved ideas. A failed lookup stores the sentinel so the idea is never
// re-selected.
func (r *Runner) resolveRecPrices(ctx context.Context) error {
	r.setStage(StageResolvingPrices)
	started := time.Now().UTC()

	ideas, err := r.store.IdeasNeedingPrice(ctx, r.opts.HistoryYears, r.opts.RecPriceBatch)
	if err != nil {
		return fmt.Errorf("select unresolved ideas: %w", err)
	}

	var resolved, failed int
	for i, idea := range ideas {
		if err := ctx.Err(); err != nil {
			return err
		}

		price, err := r.resolver.HistoricalPrice(ctx, idea.Ticker, idea.PostedDate)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			price = storage.RecPriceFailed
			failed++
			r.logger.Debug().Str("ticker", idea.Ticker).Time("date", idea.PostedDate).
				Msg("recommendation price unresolved, storing sentinel")
		} else {
			resolved++
		}

		if err := r.store.SetIdeaPrice(ctx, idea.ID, price); err != nil {
			return fmt.Errorf("store recommendation price for idea %d: %w", idea.ID, err)
		}
		r.setProgress(percent(i+1, len(ideas)), idea.Ticker)
	}

	status := storage.JobSuccess
	if failed > 0 {
		status = storage.JobPartial
	}
	r.appendJobRun(ctx, "resolve_rec_prices", nil, status, len(ideas), nil, started)
	r.logger.Info().Int("resolved", resolved).Int("failed", failed).Msg("recommendation prices resolved")
	return nil
}

func (r *Runner) refreshCurrentPrices(ctx context.Context) error {
	r.setStage(StageRefreshing)
	started := time.Now().UTC()

	result, err := r.resolver.RefreshStale(ctx, r.store, r.opts.PriceMaxAge)
	if err != nil {
		return fmt.Errorf("refresh current prices: %w", err)
	}

	status := storage.JobSuccess
	if result.Failed > 0 {
		status = storage.JobPartial
	}
	r.appendJobRun(ctx, "refresh_prices", nil, status, result.Total, nil, started)
	r.setProgress(100, "")
	return nil
}

// computeMetrics recomputes every known author, not just those touched this
// run: a new idea shifts the ranking context, and each author's computation
// is independent, so a global pass is cheap and simple.
func (r *Runner) computeMetrics(ctx context.Context) error {
	r.setStage(StageComputing)
	started := time.Now().UTC()

	authors, err := r.store.ListAuthors(ctx)
	if err != nil {
		return fmt.Errorf("list authors: %w", err)
	}
	current, err := r.store.AllPrices(ctx)
	if err != nil {
		return fmt.Errorf("load current prices: %w", err)
	}

	now := time.Now().UTC()
	var failed int
	for i, author := range authors {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.computeOne(ctx, author.Username, current, now); err != nil {
			failed++
			r.addError(fmt.Sprintf("metrics %s: %s", author.Username, err))
			r.logger.Warn().Err(err).Str("author", author.Username).Msg("metrics computation failed")
		}
		r.setProgress(percent(i+1, len(authors)), author.Username)
	}

	status := storage.JobSuccess
	if failed > 0 {
		status = storage.JobPartial
	}
	r.appendJobRun(ctx, "compute_metrics", nil, status, len(authors), nil, started)
	r.logger.Info().Int("authors", len(authors)).Int("failed", failed).Msg("author metrics recomputed")
	return nil
}

func (r *Runner) computeOne(ctx context.Context, username string, current map[string]decimal.Decimal, now time.Time) error {
	ideas, err := r.store.IdeasForAuthor(ctx, username, r.opts.HistoryYears)
	if err != nil {
		return err
	}

	value := returns.ComputeMetrics(ideas, current, now)
	return r.store.UpsertAuthorMetrics(ctx, username, value)
}

func ideaParams(rec source.IdeaRecord) storage.UpsertIdeaParams {
	params := storage.UpsertIdeaParams{
		AuthorUsername: rec.Author,
		Ticker:         strings.ToUpper(rec.Ticker),
		PostedDate:     rec.PostedDate,
		PositionType:   rec.PositionType,
	}
	if rec.SourceIdeaID != "" {
		id := rec.SourceIdeaID
		params.SourceIdeaID = &id
	}
	if rec.IdeaURL != "" {
		url := rec.IdeaURL
		params.IdeaURL = &url
	}
	if rec.CompanyName != "" {
		name := rec.CompanyName
		params.CompanyName = &name
	}
	return params
}

func (r *Runner) appendJobRun(ctx context.Context, kind string, author *string, status string, items int, errMsg *string, started time.Time) {
	completed := time.Now().UTC()
	run := storage.JobRun{
		Kind:           kind,
		AuthorUsername: author,
		Status:         status,
		ItemsProcessed: items,
		ErrorMessage:   errMsg,
		StartedAt:      started,
		CompletedAt:    &completed,
	}
	if err := r.store.AppendJobRun(ctx, run); err != nil {
		r.logger.Warn().Err(err).Str("kind", kind).Msg("job log append failed")
	}
}

func (r *Runner) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrRunInProgress
	}
	r.running = true
	r.status = Status{
		RunID:     uuid.New().String(),
		Stage:     StageDiscovering,
		StartedAt: time.Now().UTC(),
	}
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Runner) finish(stage Stage, runErr error) {
	counts, err := r.store.AggregateCounts(context.Background())
	if err != nil {
		r.logger.Warn().Err(err).Msg("aggregate counts unavailable")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.status.Stage = stage
	r.status.CompletedAt = &now
	r.status.Counts = counts
	if stage == StageComplete {
		r.status.ProgressPercent = 100
	}
	if runErr != nil {
		r.status.Errors = append(r.status.Errors, runErr.Error())
	}
}

func (r *Runner) setStage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Stage = stage
	r.status.ProgressPercent = 0
	r.status.CurrentItem = ""
}

func (r *Runner) setProgress(pct int, item string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.ProgressPercent = pct
	if item != "" {
		r.status.CurrentItem = item
	}
}

func (r *Runner) addError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Errors = append(r.status.Errors, msg)
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}
