package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pricetool/internal/app"
)

var (
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Display recent pipeline runs recorded in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: runsLimit,
		}

		return getApp().ShowRuns(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to display")
}
