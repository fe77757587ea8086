package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"db-migrate/internal/dialect"
	"db-migrate/internal/logging"
)

var cleanTablesFlag []string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete all rows of the declared target tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		desc, _, err := cfg.LoadDescriptor()
		if err != nil {
			return err
		}
		plans, err := desc.Select(cfg.TableFilter(cleanTablesFlag))
		if err != nil {
			return err
		}

		target, err := cfg.OpenTarget()
		if err != nil {
			return err
		}
		defer target.Close()

		names := make([]string, len(plans))
		for i, p := range plans {
			names[i] = p.Name
		}
		deleted, err := cleanTables(ctx, target, cfg.Dialect(), names, logging.FromContext(ctx))
		if err != nil {
			return err
		}

		var total int64
		for _, n := range deleted {
			total += n
		}
		fmt.Printf("🧹 Cleaned %d tables of %s (%d rows deleted)\n", len(names), cfg.Target.Path, total)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringSliceVarP(&cleanTablesFlag, "table", "t", []string{}, "target tables to clean (comma-separated, default all declared)")
}

// cleanTables deletes every row of the tables in reverse order inside one
// transaction and returns the rows deleted per table. Foreign keys are
// checked once all deletes are done; any violation rolls everything back.
func cleanTables(ctx context.Context, db *sql.DB, d dialect.Dialect, tables []string, logger *slog.Logger) (map[string]int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	deleted := make(map[string]int64, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		table := tables[i]
		if err := d.BeforeTable(ctx, tx, table); err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, d.DeleteQuery(table))
		if err != nil {
			return nil, fmt.Errorf("clean %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		deleted[table] = n
		logger.Info("table cleaned", "table", table, "rows", n)
	}

	for _, table := range tables {
		if err := d.AfterTable(ctx, tx, table); err != nil {
			return nil, fmt.Errorf("clean %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		_, _ = db.ExecContext(ctx, "ROLLBACK")
		return nil, fmt.Errorf("failed to commit cleaning transaction: %w", err)
	}
	committed = true
	return deleted, nil
}
