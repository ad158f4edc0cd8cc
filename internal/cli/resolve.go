package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <slug-or-url>",
	Short: "Resolve a market slug or URL to its token metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return errors.New("slug must not be empty")
		}
		return getApp().Resolve(cmd.Context(), args[0])
	},
}
