package cli

import (
	"context"

	"github.com/spf13/cobra"

	"ideaboard/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled daily pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Run(ctx)
		})
	},
}
