package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	service "github.com/okian/rubric/internal/app"
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}

func printNormalization(w io.Writer, rep service.Report) {
	t := rep.Target
	fmt.Fprintf(w, "Run %s  target mean %.1f range [%.1f, %.1f]\n", rep.RunID, t.Mean, t.Min, t.Max)
	fmt.Fprintf(w, "Source: %s\n", rep.Source)
	fmt.Fprintf(w, "Before: mean %.2f  min %.2f  max %.2f  (%d records)\n",
		rep.Before.Mean, rep.Before.Min, rep.Before.Max, rep.Before.Count)
	if rep.NoOp {
		fmt.Fprintln(w, "Cohort already within target; nothing changed.")
		return
	}
	fmt.Fprintf(w, "After:  mean %.2f  min %.2f  max %.2f\n", rep.After.Mean, rep.After.Min, rep.After.Max)
	if rep.Degenerate {
		fmt.Fprintln(w, "All totals were identical; every record was set to the target mean.")
	}
	fmt.Fprintf(w, "Backup: %s\n\n", rep.Backup)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tSTATUS\tORIGINAL\tTARGET\tACHIEVED\tFACTOR\tNOTE")
	for _, o := range rep.Outcomes {
		note := o.Error
		if len(o.Clamped) > 0 {
			note = "clamped: " + strings.Join(o.Clamped, ", ")
		}
		if o.Status != service.StatusNormalized {
			fmt.Fprintf(tw, "%s\t%s\t%.1f\t\t\t\t%s\n", o.RecordID, o.Status, o.OriginalTotal, note)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.1f\t%.1f\t%.4f\t%s\n",
			o.RecordID, o.Status, o.OriginalTotal, o.TargetTotal, o.AchievedTotal, o.Factor, note)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d normalized, %d skipped, %d failed in %s\n",
		rep.Succeeded, rep.Skipped, rep.Failed, formatDuration(rep.Duration))
}

func printGrading(w io.Writer, rep service.GradingReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tSTATUS\tTOTAL\tTOOK\tNOTE")
	for _, g := range rep.Groups {
		note := g.Error
		if len(g.Failed) > 0 {
			note = "failed: " + strings.Join(g.Failed, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n", g.ID, g.Status, g.Total, formatDuration(g.Took), note)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d graded, %d partial, %d skipped, %d failed\n", rep.Graded, rep.Partial, rep.Skipped, rep.Failed)
}

func printRefinement(w io.Writer, rep service.RefineReport) {
	fmt.Fprintf(w, "%d records: %d comments refined, %d kept, %d records skipped, %d failed\n",
		rep.Records, rep.Refined, rep.Kept, rep.Skipped, rep.Failed)
	fmt.Fprintf(w, "Refined records: %s\n", rep.Location)
}
