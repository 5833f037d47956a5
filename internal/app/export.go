package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ideaboard/internal/storage"
)

// ExportOptions select the export targets.
type ExportOptions struct {
	CSVPath string
	PNGPath string
	Sort    string
	TopN    int
}

// Export writes the leaderboard as CSV and/or a bar chart PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.TopN <= 0 {
		opts.TopN = a.Config.Export.TopN
	}
	if opts.Sort == "" {
		opts.Sort = "xirr5yr"
	}

	page, err := a.store.Leaderboard(ctx, opts.Sort, opts.TopN, 0)
	if err != nil {
		return err
	}
	if len(page.Rows) == 0 {
		a.Logger.Info().Msg("no metrics to export")
		return nil
	}

	a.Logger.Info().Int("rows", len(page.Rows)).Str("sort", opts.Sort).Msg("exporting leaderboard")

	if opts.CSVPath != "" {
		if err := writeLeaderboardCSV(opts.CSVPath, page.Rows); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeLeaderboardPNG(opts.PNGPath, opts.Sort, page.Rows); err != nil {
			return err
		}
	}
	return nil
}

func writeLeaderboardCSV(path string, rows []storage.LeaderboardRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"rank", "username", "xirr_5yr", "xirr_3yr", "xirr_1yr", "total_picks", "win_rate", "best_pick_ticker", "best_pick_return", "calculated_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			fmt.Sprintf("%d", row.Rank),
			row.Username,
			csvFloat(row.XIRR5Yr),
			csvFloat(row.XIRR3Yr),
			csvFloat(row.XIRR1Yr),
			fmt.Sprintf("%d", row.TotalPicks),
			csvFloat(row.WinRate),
			csvString(row.BestPickTicker),
			csvFloat(row.BestPickReturn),
			row.CalculatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeLeaderboardPNG(path, sortKey string, rows []storage.LeaderboardRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(rows))
	for _, row := range rows {
		value := xirrForSort(row, sortKey)
		if value == nil {
			continue
		}
		bars = append(bars, chart.Value{Label: row.Username, Value: *value})
	}
	if len(bars) == 0 {
		return errors.New("no plottable values for the selected sort key")
	}

	graph := chart.BarChart{
		Title:    fmt.Sprintf("Top authors by %s", sortKey),
		Width:    1280,
		Height:   720,
		BarWidth: 40,
		XAxis: chart.Style{
			TextRotationDegrees: 45,
		},
		YAxis: chart.YAxis{
			Name: "Annualized return (%)",
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func xirrForSort(row storage.LeaderboardRow, sortKey string) *float64 {
	switch sortKey {
	case "xirr3yr":
		return row.XIRR3Yr
	case "xirr1yr":
		return row.XIRR1Yr
	default:
		return row.XIRR5Yr
	}
}

func csvFloat(value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *value)
}

func csvString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
