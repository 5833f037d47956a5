package cli

import (
	"context"

	"github.com/spf13/cobra"

	"ideaboard/internal/app"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Execute one full pipeline run and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Scrape(ctx)
		})
	},
}
