package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// ShowOptions control the leaderboard printout.
type ShowOptions struct {
	Sort   string
	Limit  int
	Offset int
}

// Show prints the current leaderboard to stdout.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = a.Config.Export.TopN
	}
	if opts.Sort == "" {
		opts.Sort = "xirr5yr"
	}

	page, err := a.store.Leaderboard(ctx, opts.Sort, opts.Limit, opts.Offset)
	if err != nil {
		return err
	}
	if len(page.Rows) == 0 {
		fmt.Fprintln(os.Stdout, "no metrics computed yet")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Rank\tAuthor\tXIRR 5y\tXIRR 3y\tXIRR 1y\tPicks\tWin%\tBest Pick\tComputed (UTC)")

	for _, row := range page.Rows {
		best := ""
		if row.BestPickTicker != nil && row.BestPickReturn != nil {
			best = fmt.Sprintf("%s %+.1f%%", *row.BestPickTicker, *row.BestPickReturn)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			row.Rank,
			row.Username,
			formatPct(row.XIRR5Yr),
			formatPct(row.XIRR3Yr),
			formatPct(row.XIRR1Yr),
			row.TotalPicks,
			formatPct(row.WinRate),
			best,
			row.CalculatedAt.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}

func formatPct(value *float64) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *value)
}
