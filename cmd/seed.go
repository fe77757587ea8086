package cmd

import (
	"fmt"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"db-migrate/internal/logging"
	"db-migrate/internal/schema"
	"db-migrate/internal/seed"
)

var (
	seedCount  int
	seedTables []string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the source database with synthetic rows for a rehearsal run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logging.FromContext(ctx)

		cfg, err := LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		d := cfg.Dialect()
		db, err := cfg.OpenSourceForWrite()
		if err != nil {
			return err
		}
		defer db.Close()

		// Flag > config > declared source tables > every table.
		names := cfg.TableFilter(seedTables)
		if len(names) == 0 && cfg.Descriptor != "" {
			desc, _, err := cfg.LoadDescriptor()
			if err != nil {
				return err
			}
			for _, p := range desc.Tables {
				names = append(names, p.SourceName)
			}
		}
		if len(names) == 0 {
			if names, err = schema.ListTables(ctx, db, d); err != nil {
				return err
			}
		}

		count := cfg.Settings.SeedCount
		fmt.Printf("🌱 Seeding %d tables of %s with %d rows each\n", len(names), cfg.Source.Path, count)
		start := time.Now()

		uiprogress.Start()
		bar := uiprogress.AddBar(max(len(names)*count, 1)).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return "Seeding: "
		})

		s := &seed.Seeder{
			DB:        db,
			Dialect:   d,
			Generator: seed.NewGenerator(cfg.Settings.Seed),
			Logger:    logger,
			OnRow:     func(string) { bar.Incr() },
		}
		results, err := s.Seed(ctx, names, count)
		uiprogress.Stop()
		if err != nil {
			return err
		}

		fmt.Println("\n📊 Seed Report (parents first):")
		total, failed := 0, 0
		for i, r := range results {
			icon := okColor("✓")
			if r.Status() != "OK" {
				icon = warnColor("!")
				failed++
			}
			fmt.Printf("[%s] [%02d/%02d] %-24s : %d rows (target: %d) - %s\n",
				icon, i+1, len(results), r.Table, r.Inserted, r.Requested, r.Status())
			if r.Err != nil {
				fmt.Printf("    └ Error: %v\n", r.Err)
			}
			total += r.Inserted
		}
		fmt.Println("--------------------------------------------------")
		fmt.Printf("Total rows: %d in %s\n", total, time.Since(start).Round(time.Millisecond))

		if failed > 0 {
			return fmt.Errorf("%d of %d tables were not fully seeded", failed, len(results))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedCount, "count", 0, "rows to generate per table (overrides settings.seed_count)")
	seedCmd.Flags().Int64("seed", 0, "random seed (overrides settings.seed)")
	seedCmd.Flags().StringSliceVarP(&seedTables, "table", "t", []string{}, "source tables to seed (comma-separated)")

	_ = viper.BindPFlag("settings.seed_count", seedCmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("settings.seed", seedCmd.Flags().Lookup("seed"))
}
