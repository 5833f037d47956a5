package cli

import (
	"context"

	"github.com/spf13/cobra"

	"ideaboard/internal/app"
)

var (
	exportCSV  string
	exportPNG  string
	exportSort string
	exportTopN int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the leaderboard as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Export(ctx, app.ExportOptions{
				CSVPath: exportCSV,
				PNGPath: exportPNG,
				Sort:    exportSort,
				TopN:    exportTopN,
			})
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "Path for the CSV export")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "Path for the PNG bar chart")
	exportCmd.Flags().StringVar(&exportSort, "sort", "xirr5yr", "Sort key: xirr5yr, xirr3yr or xirr1yr")
	exportCmd.Flags().IntVar(&exportTopN, "top", 0, "Number of authors to export (default from config)")
}
