package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"polymarket-pro/internal/app"
)

var (
	showSlug  string
	showToken string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display a market's recent prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showSlug == "" && showToken == "" {
			return errors.New("either --slug or --token must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Slug:    showSlug,
			TokenID: showToken,
			Limit:   showLimit,
		}
		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSlug, "slug", "", "Market slug or URL to display")
	showCmd.Flags().StringVar(&showToken, "token", "", "Token ID to display (skips slug resolution)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of points to display")
}
