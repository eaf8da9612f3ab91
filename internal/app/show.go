package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"pricetool/internal/storage"
)

// ShowRuns prints the most recent pipeline runs recorded in the database.
func (a *App) ShowRuns(ctx context.Context, out io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	defer closeStore()

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return renderRuns(out, runs)
}

func renderRuns(out io.Writer, runs []storage.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no runs found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tRun\tPipeline\tRange\tInput\tOutput\tSkipped\tPath")

	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.RunID.String()[:8],
			run.Pipeline,
			formatRange(run.RangeStart, run.RangeEnd),
			run.InputRows,
			run.OutputRows,
			run.SkippedRows,
			sanitizeInline(run.OutputPath),
		)
	}

	return writer.Flush()
}

func formatRange(start, end *time.Time) string {
	lo, hi := "-inf", "+inf"
	if start != nil {
		lo = start.UTC().Format(time.RFC3339)
	}
	if end != nil {
		hi = end.UTC().Format(time.RFC3339)
	}
	return "[" + lo + ", " + hi + ")"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
