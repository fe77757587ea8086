package cmd

import (
	"fmt"
	"os"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"db-migrate/internal/engine"
	"db-migrate/internal/logging"
	"db-migrate/internal/resize"
)

var (
	migrateTables     []string
	migrateDryRun     bool
	migrateReport     string
	migrateLimit      int
	migrateNoProgress bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy rows from the source database into the target database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logging.FromContext(ctx)

		cfg, err := LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		desc, reg, err := cfg.LoadDescriptor()
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

		limit := cfg.Settings.Limit
		if migrateLimit > 0 {
			limit = migrateLimit
		}
		opts := engine.Options{
			Tables: cfg.TableFilter(migrateTables),
			Limit:  limit,
			DryRun: migrateDryRun,
			Logger: logger,
		}

		if cfg.Attachments.Enabled() {
			ceiling, _ := cfg.Attachments.Ceiling()
			opts.Reconciler = &engine.Reconciler{
				SourceRoot: cfg.Attachments.Source,
				TargetRoot: cfg.Attachments.Target,
				MaxBytes:   ceiling,
			}
			opts.Applier = resize.NewFileApplier(resize.Options{
				MaxDimension: cfg.Attachments.MaxDimension,
				Quality:      cfg.Attachments.Quality,
				MaxBytes:     ceiling,
				BackupDir:    cfg.Attachments.Backup,
				Logger:       logger,
			})
		} else {
			logger.Info("attachment trees not configured, skipping attachments")
		}

		// Log lines would tear the bars apart.
		if !migrateNoProgress && !migrateDryRun && !verbose && !debug {
			p := newProgressObserver()
			defer p.stop()
			opts.Observer = p
		}

		o := &engine.Orchestrator{
			Source:     source,
			Target:     target,
			Dialect:    cfg.Dialect(),
			Descriptor: desc,
			Registry:   reg,
		}
		run := o.Run(ctx, opts)
		if p, ok := opts.Observer.(*progressObserver); ok {
			p.stop()
		}

		printReport(os.Stdout, run)
		if migrateReport != "" {
			if err := writeJSONReport(migrateReport, run); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", migrateReport)
		}

		if run.Status != engine.StatusCompleted {
			return &exitError{code: run.Status.ExitCode()}
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringSliceVarP(&migrateTables, "table", "t", []string{}, "target tables to migrate (comma-separated, default all declared)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "validate and count rows without writing")
	migrateCmd.Flags().StringVar(&migrateReport, "report", "", "write the full JSON report to this file")
	migrateCmd.Flags().IntVar(&migrateLimit, "limit", 0, "rows per table, overrides settings.limit")
	migrateCmd.Flags().BoolVar(&migrateNoProgress, "no-progress", false, "disable progress bars")
}

var _ engine.Observer = (*progressObserver)(nil)

// progressObserver draws one bar per table.
type progressObserver struct {
	progress *uiprogress.Progress
	bars     map[string]*uiprogress.Bar
	stopped  bool
}

func newProgressObserver() *progressObserver {
	p := uiprogress.New()
	p.Start()
	return &progressObserver{progress: p, bars: make(map[string]*uiprogress.Bar)}
}

func (p *progressObserver) TableStarted(table string, total int) {
	bar := p.progress.AddBar(max(total, 1)).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("%-24s", table)
	})
	p.bars[table] = bar
}

func (p *progressObserver) RowDone(table string) {
	if bar, ok := p.bars[table]; ok {
		bar.Incr()
	}
}

func (p *progressObserver) TableFinished(outcome *engine.TableOutcome) {
	if bar, ok := p.bars[outcome.Table]; ok && outcome.Status == engine.TableCommitted {
		_ = bar.Set(bar.Total)
	}
}

func (p *progressObserver) stop() {
	if !p.stopped {
		p.stopped = true
		p.progress.Stop()
	}
}
