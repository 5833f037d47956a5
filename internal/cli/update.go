package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ideaboard/internal/app"
)

var updatePricesCmd = &cobra.Command{
	Use:   "update-prices",
	Short: "Refresh stale current prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.RefreshPrices(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated: %d, failed: %d, total: %d\n",
				result.Updated, result.Failed, result.Total)
			return nil
		})
	},
}

var updateMetricsCmd = &cobra.Command{
	Use:   "update-metrics",
	Short: "Recompute metrics for every author",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			authors, err := a.RecomputeMetrics(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed metrics for %d authors\n", authors)
			return nil
		})
	},
}
