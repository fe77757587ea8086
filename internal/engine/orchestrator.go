package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"db-migrate/internal/dialect"
	"db-migrate/internal/logging"
	"db-migrate/internal/pseudotype"
	"db-migrate/internal/schema"
	"db-migrate/internal/transform"
)

// Observer follows a run table by table, typically to drive a progress bar.
type Observer interface {
	TableStarted(table string, total int)
	RowDone(table string)
	TableFinished(outcome *TableOutcome)
}

// Options tunes one run.
type Options struct {
	Tables     []string // empty means every declared table
	Limit      int      // rows per table, 0 for all; a table's own limit wins
	DryRun     bool
	Reconciler *Reconciler // nil skips attachments
	Applier    Applier     // nil leaves actions unapplied
	Observer   Observer
	Logger     *slog.Logger
}

// Orchestrator runs a descriptor against a source and a target database.
type Orchestrator struct {
	Source     *sql.DB
	Target     *sql.DB
	Dialect    dialect.Dialect
	Descriptor *schema.Descriptor
	Registry   *transform.Registry
}

type preparedTable struct {
	job     TableJob
	outcome *TableOutcome
	ready   bool
}

// Run validates the requested tables, then migrates them one after another
// in declaration order. It always returns a finished outcome.
func (o *Orchestrator) Run(ctx context.Context, opts Options) *RunOutcome {
	run := &RunOutcome{
		ID:      uuid.NewString(),
		State:   StatePending,
		Started: time.Now(),
		DryRun:  opts.DryRun,
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger = logger.With("run", run.ID)
	ctx = logging.ContextWithLogger(ctx, logger)
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	plans, err := o.Descriptor.Select(opts.Tables)
	if err != nil {
		logger.Error("invalid table selection", "error", err)
		run.abort(err)
		run.finish()
		return run
	}

	run.State = StateValidating
	prepared, err := o.validate(ctx, plans, opts, run)
	if err != nil {
		logger.Error("validation failed", "error", err)
		run.abort(err)
		run.finish()
		return run
	}

	run.State = StateMigrating
	for i, p := range prepared {
		if !p.ready {
			continue
		}
		if ctx.Err() != nil {
			for _, rest := range prepared[i:] {
				if rest.ready {
					rest.outcome.skip(ErrInterrupted)
				}
			}
			logger.Warn("run interrupted", "remaining", len(prepared)-i)
			run.abort(ErrInterrupted)
			break
		}
		// An open table transaction always runs to commit or rollback.
		o.migrateOne(context.WithoutCancel(ctx), p, opts, observer, logger)
	}

	run.finish()
	read, written, failed := run.Totals()
	logger.Info("run finished", "status", run.Status, "read", read, "written", written, "failed", failed)
	return run
}

// validate checks every plan against the live databases. All tables are
// examined so the report lists every mismatch; any required table that
// fails makes the returned error non-nil.
func (o *Orchestrator) validate(ctx context.Context, plans []*schema.TablePlan, opts Options, run *RunOutcome) ([]*preparedTable, error) {
	logger := logging.FromContext(ctx)
	d := o.Dialect

	var (
		prepared []*preparedTable
		fatal    []error
		order    []string
	)
	live := make(map[string]*schema.Table)

	for _, plan := range plans {
		p := &preparedTable{outcome: newTableOutcome(plan.Name, plan.SourceName)}
		prepared = append(prepared, p)
		run.Tables = append(run.Tables, p.outcome)

		source, err := schema.AnalyzeTable(ctx, o.Source, d, plan.SourceName)
		if err != nil {
			return prepared, fmt.Errorf("analyze source %s: %w", plan.SourceName, err)
		}
		target, err := schema.AnalyzeTable(ctx, o.Target, d, plan.Name)
		if err != nil {
			return prepared, fmt.Errorf("analyze target %s: %w", plan.Name, err)
		}

		if serr := schema.Compare(plan, source, target); serr != nil {
			p.outcome.skip(serr)
			if plan.Optional {
				logger.Warn("optional table skipped", "table", plan.Name, "error", serr)
				continue
			}
			fatal = append(fatal, serr)
			continue
		}

		srcKinds, err := pseudotype.Resolve(ctx, o.Source, d, plan.SourceName)
		if err != nil {
			return prepared, err
		}
		tgtKinds, err := pseudotype.Resolve(ctx, o.Target, d, plan.Name)
		if err != nil {
			return prepared, err
		}

		p.job = TableJob{
			Plan:        plan,
			Live:        target,
			OrderBy:     orderingKey(plan, source),
			Limit:       rowLimit(plan, opts.Limit),
			SourceKinds: srcKinds,
			TargetKinds: tgtKinds,
		}
		p.ready = true
		live[plan.Name] = target
		order = append(order, plan.Name)
	}

	for _, v := range schema.CheckDeclarationOrder(order, live) {
		msg := fmt.Sprintf("table %s is declared before %s, which it references", v.Table, v.References)
		logger.Warn("declaration order", "table", v.Table, "references", v.References)
		run.Warnings = append(run.Warnings, msg)
	}

	if len(fatal) > 0 {
		for _, p := range prepared {
			if p.ready {
				p.ready = false
				p.outcome.skip(errors.New("run aborted during validation"))
			}
		}
		return prepared, errors.Join(fatal...)
	}
	return prepared, nil
}

func (o *Orchestrator) migrateOne(ctx context.Context, p *preparedTable, opts Options, observer Observer, logger *slog.Logger) {
	plan := p.job.Plan
	out := p.outcome
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		observer.TableFinished(out)
	}()

	total, err := o.SourceRowCount(ctx, plan, p.job.Limit)
	if err != nil {
		logger.Warn("cannot count source rows", "table", plan.Name, "error", err)
	}

	if opts.DryRun {
		if err != nil {
			out.skip(&DatabaseError{Table: plan.Name, Op: "read", Err: err})
			return
		}
		out.Read = total
		out.Status = TablePlanned
		return
	}

	observer.TableStarted(plan.Name, total)
	m := &Migrator{
		Source:   o.Source,
		Target:   o.Target,
		Dialect:  o.Dialect,
		Registry: o.Registry,
		Logger:   logger,
		OnRow:    observer.RowDone,
	}
	rows, err := m.MigrateTable(ctx, p.job, out)
	if err != nil {
		logger.Error("table rolled back", "table", plan.Name, "error", err)
		out.rollBack(err)
		return
	}
	out.Status = TableCommitted

	if opts.Reconciler != nil {
		o.reconcile(ctx, plan, rows, out, opts, logger)
	}
}

// reconcile computes attachment actions for the committed rows and hands
// copy and oversized actions to the applier. Every problem stays a
// finding on the table. Unreferenced source files are listed as orphans.
func (o *Orchestrator) reconcile(ctx context.Context, plan *schema.TablePlan, rows []MigratedRow, out *TableOutcome, opts Options, logger *slog.Logger) {
	out.Actions = opts.Reconciler.Reconcile(plan, rows)

	for _, a := range out.Actions {
		var err error
		switch {
		case a.Kind == ActionMissing:
			err = fmt.Errorf("%w: %s", ErrAttachmentMissing, a.Reason)
		case opts.Applier != nil:
			err = opts.Applier.Apply(ctx, a)
		case a.Kind == ActionOversized:
			err = fmt.Errorf("%w: %s", ErrAttachmentOversized, humanize.IBytes(uint64(a.Size)))
		}
		if err == nil {
			continue
		}
		logger.Warn("attachment finding", "error", &AttachmentError{Table: plan.Name, Row: a.Row, Path: a.displayPath(), Err: err})
		out.addFinding(a, err)
	}

	orphans, err := opts.Reconciler.Orphans(plan, out.Actions)
	if err != nil {
		logger.Warn("orphan scan failed", "table", plan.Name, "error", err)
		return
	}
	if len(orphans) > 0 {
		logger.Info("orphaned attachments", "table", plan.Name, "files", len(orphans))
	}
	out.Orphans = orphans
}

// SourceRowCount counts the rows a table will read, capped by limit.
func (o *Orchestrator) SourceRowCount(ctx context.Context, plan *schema.TablePlan, limit int) (int, error) {
	var n int
	if err := o.Source.QueryRowContext(ctx, o.Dialect.CountQuery(plan.SourceName)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", plan.SourceName, err)
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

// orderingKey prefers the declared key, then the live primary key, then rowid.
func orderingKey(plan *schema.TablePlan, source *schema.Table) []string {
	if len(plan.Key) > 0 {
		return plan.Key
	}
	if pk := source.PrimaryKey(); len(pk) > 0 {
		return pk
	}
	return []string{RowIDColumn}
}

func rowLimit(plan *schema.TablePlan, fallback int) int {
	if plan.Limit > 0 {
		return plan.Limit
	}
	return fallback
}

type nopObserver struct{}

func (nopObserver) TableStarted(string, int)    {}
func (nopObserver) RowDone(string)              {}
func (nopObserver) TableFinished(*TableOutcome) {}
