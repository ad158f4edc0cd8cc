package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"polymarket-pro/internal/alerting"
)

var (
	simulateDirection string
	simulateThreshold float64
	simulatePrice     float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Fire one synthetic alert evaluation against the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := alerting.Direction(simulateDirection)
		if direction != alerting.DirectionAbove && direction != alerting.DirectionBelow {
			return fmt.Errorf("--direction must be above or below, got %q", simulateDirection)
		}
		if simulateThreshold < 0 || simulateThreshold > 1 {
			return fmt.Errorf("--threshold must be within [0, 1]")
		}

		return getApp().SimulateAlert(cmd.Context(), direction, simulateThreshold, simulatePrice)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateDirection, "direction", "below", "Rule direction (above or below)")
	simulateCmd.Flags().Float64Var(&simulateThreshold, "threshold", 0.5, "Rule threshold in [0, 1]")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Synthetic price to evaluate")
}
