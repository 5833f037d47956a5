package cli

import (
	"context"

	"github.com/spf13/cobra"

	"ideaboard/internal/app"
)

var (
	showSort   string
	showLimit  int
	showOffset int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the author leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Show(ctx, app.ShowOptions{
				Sort:   showSort,
				Limit:  showLimit,
				Offset: showOffset,
			})
		})
	},
}

func init() {
	showCmd.Flags().StringVar(&showSort, "sort", "xirr5yr", "Sort key: xirr5yr, xirr3yr or xirr1yr")
	showCmd.Flags().IntVar(&showLimit, "limit", 25, "Number of authors to display")
	showCmd.Flags().IntVar(&showOffset, "offset", 0, "Pagination offset")
}
