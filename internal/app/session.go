package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"ideaboard/internal/storage"
)

// SetSession parses name=value cookie pairs, verifies them against the forum
// and stores them for later runs.
func (a *App) SetSession(ctx context.Context, pairs []string, domain string) error {
	cookies := make([]storage.SessionCookie, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid cookie %q, expected name=value", pair)
		}
		cookies = append(cookies, storage.SessionCookie{
			Name:   strings.TrimSpace(name),
			Value:  value,
			Domain: domain,
		})
	}
	if len(cookies) == 0 {
		return fmt.Errorf("at least one cookie is required")
	}

	if err := a.SubmitSession(ctx, cookies); err != nil {
		return err
	}
	a.Logger.Info().Int("cookies", len(cookies)).Msg("session stored")
	return nil
}

// SessionStatus prints whether a session is stored.
func (a *App) SessionStatus(ctx context.Context) error {
	valid, err := a.HasValidSession(ctx)
	if err != nil {
		return err
	}
	if valid {
		fmt.Fprintln(os.Stdout, "session: stored")
	} else {
		fmt.Fprintln(os.Stdout, "session: none")
	}
	return nil
}
