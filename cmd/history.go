package cmd

import (
	"fmt"
	"io"
	"sitegen/core"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// History prints the most recent generator runs
func History(ctx *core.Context, w io.Writer) error {
	if ctx.History == nil {
		return core.ErrHistoryDisabled
	}

	records, err := ctx.History.Recent(ctx.Config.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to read build history: %w", err)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tGENERATOR\tTRIGGER\tSTATUS\tITEMS\tERRORS\tDURATION\tRUN")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			humanize.Time(rec.StartedAt),
			rec.Generator,
			rec.Trigger,
			rec.Status,
			rec.Items,
			rec.ItemErrors,
			rec.Duration.Round(time.Millisecond),
			shortID(rec.RunID))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
