package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"polymarket-pro/internal/series"
)

// Export fetches a market's price history and renders it as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	tokenID, label, err := a.resolveToken(ctx, opts.Slug, opts.TokenID)
	if err != nil {
		return err
	}

	interval := opts.Interval
	if interval == "" {
		interval = a.Config.Clob.HistoryInterval
	}

	raw, err := a.newHistory().FetchHistory(ctx, tokenID, interval)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if len(raw) == 0 {
		a.Logger.Info().Str("token", tokenID).Msg("no history available for export")
		return nil
	}

	points := series.CleanBatch(raw)
	max := a.Config.ResolveMaxPoints(opts.MaxPoints)
	downsampled := downsamplePoints(points, max)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, tokenID, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, label, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// resolveToken turns a slug or explicit token ID into (tokenID, chart label).
func (a *App) resolveToken(ctx context.Context, slug, tokenID string) (string, string, error) {
	if tokenID != "" {
		return tokenID, tokenID, nil
	}
	if slug == "" {
		return "", "", errors.New("either --slug or --token must be provided")
	}
	market, err := a.newResolver().ResolveBySlug(ctx, slug)
	if err != nil {
		return "", "", fmt.Errorf("resolve market %q: %w", slug, err)
	}
	label := market.Question
	if label == "" {
		label = market.Slug
	}
	return market.TokenID, label, nil
}

func downsamplePoints(points []series.Point, max int) []series.Point {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]series.Point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path, tokenID string, points []series.Point) error {
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

	if err := writer.Write([]string{"timestamp", "token_id", "price"}); err != nil {
		return err
	}

	for _, pt := range points {
		record := []string{
			time.Unix(pt.TS, 0).UTC().Format(time.RFC3339),
			tokenID,
			strconv.FormatFloat(pt.Value, 'f', 3, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePointsPNG(path, label string, points []series.Point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, pt := range points {
		x[i] = time.Unix(pt.TS, 0).UTC()
		y[i] = pt.Value
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    label,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
