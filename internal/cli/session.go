package cli

import (
	"context"

	"github.com/spf13/cobra"

	"ideaboard/internal/app"
)

var (
	sessionCookies []string
	sessionDomain  string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the stored forum session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if len(sessionCookies) == 0 {
				return a.SessionStatus(ctx)
			}
			return a.SetSession(ctx, sessionCookies, sessionDomain)
		})
	},
}

func init() {
	sessionCmd.Flags().StringArrayVar(&sessionCookies, "cookie", nil, "Session cookie as name=value (repeatable)")
	sessionCmd.Flags().StringVar(&sessionDomain, "domain", "", "Cookie domain")
}
