package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pricetool/internal/app"
)

func overrideString(flags *pflag.FlagSet, name string, dst *string, v string) {
	if flags.Changed(name) {
		*dst = v
	}
}

func printCounts(out io.Writer, counts map[string]int) {
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(out, "  %s: %d\n", reason, counts[reason])
	}
}

func printSummary(cmd *cobra.Command, s *app.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s) range %s\n", s.RunID, s.Pipeline, s.Range)
	fmt.Fprintf(out, "processed %d, written %d, skipped %d\n", s.Processed, s.Written, s.Skipped)
	printCounts(out, s.SkipCounts)
	if len(s.Unavailable) > 0 {
		n := 0
		for _, v := range s.Unavailable {
			n += v
		}
		fmt.Fprintf(out, "without statistics %d\n", n)
		printCounts(out, s.Unavailable)
	}

	fmt.Fprintf(out, "output: %s\n", s.OutputPath)
	if s.RejectsPath != "" && s.Skipped > 0 {
		fmt.Fprintf(out, "rejects: %s\n", s.RejectsPath)
	}
	if s.ChartPath != "" {
		fmt.Fprintf(out, "chart: %s\n", s.ChartPath)
	}
}
