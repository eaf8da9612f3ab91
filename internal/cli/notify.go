package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pricetool/internal/app"
)

var (
	notifyPipeline string
	notifySkipped  int
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a synthetic run summary through the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if notifyPipeline != app.PipelineConvert && notifyPipeline != app.PipelineStdev {
			return errors.New("--pipeline must be convert or stdev")
		}
		if notifySkipped < 0 {
			return errors.New("--skipped cannot be negative")
		}
		return getApp().SimulateNotification(cmd.Context(), notifyPipeline, notifySkipped)
	},
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyPipeline, "pipeline", app.PipelineConvert, "Pipeline name shown in the message")
	notifyTestCmd.Flags().IntVar(&notifySkipped, "skipped", 1, "Skipped row count shown in the message")
}
