package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"db-migrate/internal/dialect"
	"db-migrate/internal/pseudotype"
	"db-migrate/internal/resize"
	"db-migrate/internal/schema"
)

var describeTables []string

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show how the source and target schemas differ for each declared table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		desc, _, err := cfg.LoadDescriptor()
		if err != nil {
			return err
		}

		source, err := cfg.OpenSource()
		if err != nil {
			return err
		}
		defer source.Close()
		target, err := cfg.OpenTarget()
		if err != nil {
			return err
		}
		defer target.Close()

		plans, err := desc.Select(cfg.TableFilter(describeTables))
		if err != nil {
			return err
		}
		if err := describe(cmd.Context(), os.Stdout, source, target, cfg.Dialect(), plans); err != nil {
			return err
		}

		if cfg.Attachments.Enabled() {
			for _, root := range []string{cfg.Attachments.Source, cfg.Attachments.Target} {
				sizes, err := resize.Summarize(root)
				if err != nil {
					return err
				}
				printSizes(os.Stdout, root, sizes)
			}
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringSliceVarP(&describeTables, "table", "t", []string{}, "target tables to describe (comma-separated, default all declared)")
}

func describe(ctx context.Context, w io.Writer, source, target schema.Queryer, d dialect.Dialect, plans []*schema.TablePlan) error {
	for i, plan := range plans {
		src, err := schema.AnalyzeTable(ctx, source, d, plan.SourceName)
		if err != nil {
			return err
		}
		tgt, err := schema.AnalyzeTable(ctx, target, d, plan.Name)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "\n[%02d/%02d] %s\n", i+1, len(plans), okColor(planLabel(plan)))

		if serr := schema.Compare(plan, src, tgt); serr != nil {
			fmt.Fprintf(w, "    %s %s\n", failColor("✗"), strings.Join(serr.Problems, "; "))
		}
		if src == nil || tgt == nil {
			continue
		}
		if diff := schema.DiffColumns(plan.Name, src, tgt); !diff.Empty() {
			fmt.Fprintf(w, "    columns: %s\n", diff)
		}

		srcKinds, err := pseudotype.Resolve(ctx, source, d, plan.SourceName)
		if err != nil {
			return err
		}
		tgtKinds, err := pseudotype.Resolve(ctx, target, d, plan.Name)
		if err != nil {
			return err
		}
		for _, e := range plan.Mapping.Entries {
			fmt.Fprintf(w, "    %-28s ← %s\n", e.Target, describeEntry(e, srcKinds, tgtKinds))
		}
	}
	return nil
}

func planLabel(plan *schema.TablePlan) string {
	if plan.SourceName != plan.Name {
		return plan.SourceName + " → " + plan.Name
	}
	return plan.Name
}

func describeEntry(e schema.MappingEntry, srcKinds, tgtKinds pseudotype.Map) string {
	var s string
	switch e.Kind {
	case schema.MapCopy:
		s = e.Source
		if from, to := srcKinds.Kind(e.Source), tgtKinds.Kind(e.Target); from != to {
			s += warnColor(fmt.Sprintf(" (%s → %s)", from, to))
		}
	case schema.MapLiteral:
		s = fmt.Sprintf("%v", e.Literal)
		if e.Literal == nil {
			s = "NULL"
		}
	case schema.MapTransform:
		s = fmt.Sprintf("%s(%s)", e.Transform, strings.Join(e.Columns, ", "))
	}
	if e.Implicit {
		s += dimColor(" [auto]")
	}
	return s
}

func printSizes(w io.Writer, root string, sizes []resize.DirSize) {
	fmt.Fprintf(w, "\nAttachments under %s:\n", root)
	fmt.Fprintf(w, "%-24s %-10s %-12s %-12s\n", "Table", "Files", "Total", "Average")
	var files int
	var bytes int64
	for _, s := range sizes {
		fmt.Fprintf(w, "%-24s %-10d %-12s %-12s\n", s.Table, s.Files, humanize.IBytes(uint64(s.Bytes)), humanize.IBytes(uint64(s.Average())))
		files += s.Files
		bytes += s.Bytes
	}
	total := resize.DirSize{Table: "TOTAL", Files: files, Bytes: bytes}
	fmt.Fprintf(w, "%-24s %-10d %-12s %-12s\n", total.Table, total.Files, humanize.IBytes(uint64(total.Bytes)), humanize.IBytes(uint64(total.Average())))
}
