package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Scrape executes one full pipeline run and blocks until it finishes.
func (a *App) Scrape(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := a.sourceClient(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting pipeline run")
	if err := a.runner.Run(ctx, src); err != nil {
		return err
	}

	status := a.runner.Status()
	a.Logger.Info().
		Str("run_id", status.RunID).
		Int64("authors", status.Counts.Authors).
		Int64("ideas", status.Counts.Ideas).
		Msg("pipeline run complete")
	return nil
}
