package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"polymarket-pro/internal/fetcher"
	"polymarket-pro/internal/series"
)

// Show resolves a market and prints its recent price history.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	tokenID, _, err := a.resolveToken(ctx, opts.Slug, opts.TokenID)
	if err != nil {
		return err
	}

	raw, err := a.newHistory().FetchHistory(ctx, tokenID, fetcher.IntervalHour)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	points := series.CleanBatch(raw)
	if len(points) == 0 {
		fmt.Fprintln(os.Stdout, "no price history found")
		return nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > len(points) {
		limit = len(points)
	}
	points = points[len(points)-limit:]

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice")
	for _, pt := range points {
		fmt.Fprintf(writer, "%s\t%.3f\n", time.Unix(pt.TS, 0).UTC().Format(time.RFC3339), pt.Value)
	}
	writer.Flush()
	return nil
}
