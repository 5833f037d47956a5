package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"ideaboard/internal/scheduler"
)

// Run drives the scheduled mode: a full pipeline cycle every configured
// interval (daily by default), until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	a.rootCtx = ctx

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting scheduled mode")
	err := sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		src, err := a.sourceClient(ctx)
		if err != nil {
			return err
		}
		return a.runner.Run(ctx, src)
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.Logger.Info().Msg("scheduled mode stopped")
	return nil
}
