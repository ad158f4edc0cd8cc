package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"polymarket-pro/internal/app"
)

var (
	exportSlug      string
	exportToken     string
	exportInterval  string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a market's price history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportSlug == "" && exportToken == "" {
			return errors.New("either --slug or --token must be provided")
		}

		opts := app.ExportOptions{
			Slug:      exportSlug,
			TokenID:   exportToken,
			Interval:  exportInterval,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSlug, "slug", "", "Market slug or URL to export")
	exportCmd.Flags().StringVar(&exportToken, "token", "", "Token ID to export (skips slug resolution)")
	exportCmd.Flags().StringVar(&exportInterval, "interval", "", "History interval (1h or 1d, defaults to config)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
