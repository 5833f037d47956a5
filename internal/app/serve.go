package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"ideaboard/internal/server"
)

// Serve runs the REST API until the context is cancelled or a shutdown
// signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	a.rootCtx = ctx

	srv := server.New(a, a.store, a.Logger)
	httpServer := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.Config.Server.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	a.Logger.Info().Msg("shutting down http server")
	return httpServer.Shutdown(shutdownCtx)
}
