package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pricetool/internal/app"
	"pricetool/internal/config"
)

var stdevFlags config.StdevConfig

var stdevCmd = &cobra.Command{
	Use:   "stdev",
	Short: "Compute rolling standard deviations over hourly-contiguous windows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getApp().Config.Stdev
		overrideStdev(cmd.Flags(), &cfg)

		opts, err := app.StdevDefaults(cfg)
		if err != nil {
			return err
		}

		summary, err := getApp().Stdev(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printSummary(cmd, summary)
		return nil
	},
}

func overrideStdev(flags *pflag.FlagSet, cfg *config.StdevConfig) {
	overrideString(flags, "data-dir", &cfg.DataDir, stdevFlags.DataDir)
	overrideString(flags, "output-dir", &cfg.OutputDir, stdevFlags.OutputDir)
	overrideString(flags, "input", &cfg.InputFile, stdevFlags.InputFile)
	overrideString(flags, "output", &cfg.OutputFile, stdevFlags.OutputFile)
	overrideString(flags, "png", &cfg.ChartFile, stdevFlags.ChartFile)
	overrideString(flags, "start", &cfg.Start, stdevFlags.Start)
	overrideString(flags, "end", &cfg.End, stdevFlags.End)
	if flags.Changed("window") {
		cfg.Window = stdevFlags.Window
	}
	if flags.Changed("interval") {
		cfg.Interval = stdevFlags.Interval
	}
	if flags.Changed("population") {
		cfg.Population = stdevFlags.Population
	}
	if flags.Changed("add-gap-flag") {
		cfg.AddGapFlag = stdevFlags.AddGapFlag
	}
}

func init() {
	f := stdevCmd.Flags()
	f.StringVar(&stdevFlags.DataDir, "data-dir", "", "Directory holding the input file (defaults to config)")
	f.StringVar(&stdevFlags.OutputDir, "output-dir", "", "Directory for output files (defaults to config)")
	f.StringVar(&stdevFlags.InputFile, "input", "", "Price snapshot table (CSV, Parquet or JSON)")
	f.StringVar(&stdevFlags.OutputFile, "output", "", "Rolling stdev output (.csv or .parquet)")
	f.StringVar(&stdevFlags.ChartFile, "png", "", "Optional PNG chart of mid stdev per security")
	f.StringVar(&stdevFlags.Start, "start", "", "Range start (inclusive)")
	f.StringVar(&stdevFlags.End, "end", "", "Range end (exclusive)")
	f.IntVar(&stdevFlags.Window, "window", 0, "Rows per window, current row included (defaults to config)")
	f.DurationVar(&stdevFlags.Interval, "interval", 0, "Required spacing between rows in a window (defaults to config)")
	f.BoolVar(&stdevFlags.Population, "population", false, "Use population instead of sample standard deviation")
	f.BoolVar(&stdevFlags.AddGapFlag, "add-gap-flag", false, "Add a gap_blocked column to the output")
}
