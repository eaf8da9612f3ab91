package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pricetool/internal/app"
	"pricetool/internal/config"
)

var convertFlags config.ConvertConfig

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert prices with spot rates and currency rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getApp().Config.Convert
		overrideConvert(cmd.Flags(), &cfg)

		opts, err := app.ConvertDefaults(cfg)
		if err != nil {
			return err
		}

		summary, err := getApp().Convert(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printSummary(cmd, summary)
		return nil
	},
}

func overrideConvert(flags *pflag.FlagSet, cfg *config.ConvertConfig) {
	overrideString(flags, "data-dir", &cfg.DataDir, convertFlags.DataDir)
	overrideString(flags, "output-dir", &cfg.OutputDir, convertFlags.OutputDir)
	overrideString(flags, "ccy", &cfg.CcyFile, convertFlags.CcyFile)
	overrideString(flags, "spot", &cfg.SpotFile, convertFlags.SpotFile)
	overrideString(flags, "price", &cfg.PriceFile, convertFlags.PriceFile)
	overrideString(flags, "output", &cfg.OutputFile, convertFlags.OutputFile)
	overrideString(flags, "rejects", &cfg.RejectsFile, convertFlags.RejectsFile)
	overrideString(flags, "start", &cfg.Start, convertFlags.Start)
	overrideString(flags, "end", &cfg.End, convertFlags.End)
	if flags.Changed("spot-tolerance") {
		cfg.SpotTolerance = convertFlags.SpotTolerance
	}
}

func init() {
	f := convertCmd.Flags()
	f.StringVar(&convertFlags.DataDir, "data-dir", "", "Directory holding input files (defaults to config)")
	f.StringVar(&convertFlags.OutputDir, "output-dir", "", "Directory for output files (defaults to config)")
	f.StringVar(&convertFlags.CcyFile, "ccy", "", "Currency rule table (CSV, Parquet or JSON)")
	f.StringVar(&convertFlags.SpotFile, "spot", "", "Spot rate table")
	f.StringVar(&convertFlags.PriceFile, "price", "", "Price table")
	f.StringVar(&convertFlags.OutputFile, "output", "", "Converted prices output (.csv or .parquet)")
	f.StringVar(&convertFlags.RejectsFile, "rejects", "", "Optional output for rows that could not be converted")
	f.StringVar(&convertFlags.Start, "start", "", "Range start (inclusive)")
	f.StringVar(&convertFlags.End, "end", "", "Range end (exclusive)")
	f.DurationVar(&convertFlags.SpotTolerance, "spot-tolerance", 0, "Use the latest earlier spot rate up to this age; 0 requires exact timestamps")
}
