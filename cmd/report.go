package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"db-migrate/internal/engine"
)

// maxListed caps the per-table failure and finding lines on the console.
// The JSON report keeps everything.
const maxListed = 10

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
	failColor = color.New(color.FgRed).SprintFunc()
	dimColor  = color.New(color.Faint).SprintFunc()
)

// printReport writes the console summary of a run.
func printReport(w io.Writer, run *engine.RunOutcome) {
	title := "Migration Report"
	if run.DryRun {
		title = "Migration Plan (dry run)"
	}
	fmt.Fprintf(w, "\n📊 %s %s\n", title, dimColor("run "+run.ID))

	for _, msg := range run.Warnings {
		fmt.Fprintf(w, "%s %s\n", warnColor("!"), msg)
	}

	total := len(run.Tables)
	for i, t := range run.Tables {
		icon := okColor("✓")
		switch {
		case t.Status == engine.TableRolledBack:
			icon = failColor("✗")
		case !t.Clean():
			icon = warnColor("!")
		}

		fmt.Fprintf(w, "[%s] [%02d/%02d] %-24s : %s read, %s written, %s failed (%s, %s)\n",
			icon, i+1, total, tableLabel(t),
			humanize.Comma(int64(t.Read)), humanize.Comma(int64(t.Written)), humanize.Comma(int64(t.Failed)),
			t.Status, t.Duration.Round(time.Millisecond))

		if t.Error != "" {
			fmt.Fprintf(w, "    └ %s\n", failColor(t.Error))
		}
		for j, f := range t.Failures {
			if j == maxListed {
				fmt.Fprintf(w, "    └ ... and %d more failed rows\n", len(t.Failures)-maxListed)
				break
			}
			fmt.Fprintf(w, "    └ row %s %s: %s\n", f.Row, f.Column, f.Reason)
		}
		for _, c := range t.Conversions {
			note := ""
			if c.Unsupported {
				note = warnColor(" (unsupported, copied as is)")
			}
			fmt.Fprintf(w, "    └ %s: %s → %s on %d rows%s\n", c.Column, c.From, c.To, c.Count, note)
		}
		if t.WarningCount > 0 {
			fmt.Fprintf(w, "    └ %s\n", warnColor(fmt.Sprintf("%d soft warnings", t.WarningCount)))
		}
		if copies := countActions(t, engine.ActionCopy); copies > 0 {
			fmt.Fprintf(w, "    └ %d attachments copied\n", copies)
		}
		for j, f := range t.Findings {
			if j == maxListed {
				fmt.Fprintf(w, "    └ ... and %d more attachment findings\n", len(t.Findings)-maxListed)
				break
			}
			fmt.Fprintf(w, "    └ attachment %s: %s\n", f.Path, f.Reason)
		}
		if n := len(t.Orphans); n > 0 {
			fmt.Fprintf(w, "    └ %s\n", dimColor(fmt.Sprintf("%d orphaned attachment files, first: %s", n, t.Orphans[0])))
		}
	}

	read, written, failed := run.Totals()
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Status: %s (read %s, written %s, failed %s) in %s\n",
		statusLabel(run.Status),
		humanize.Comma(int64(read)), humanize.Comma(int64(written)), humanize.Comma(int64(failed)),
		run.Finished.Sub(run.Started).Round(time.Millisecond))
	if run.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", run.Reason)
	}
}

func tableLabel(t *engine.TableOutcome) string {
	if t.Source != "" && t.Source != t.Table {
		return t.Source + " → " + t.Table
	}
	return t.Table
}

func statusLabel(s engine.Status) string {
	switch s {
	case engine.StatusCompleted:
		return okColor(s.String())
	case engine.StatusPartiallyFailed:
		return warnColor(s.String())
	}
	return failColor(s.String())
}

func countActions(t *engine.TableOutcome, kind engine.ActionKind) int {
	n := 0
	for _, a := range t.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// writeJSONReport stores the full outcome at path.
func writeJSONReport(path string, run *engine.RunOutcome) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
