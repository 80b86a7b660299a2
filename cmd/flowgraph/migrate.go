package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/config"
	"github.com/rendis/flowgraph/internal/migration"
	"github.com/rendis/flowgraph/internal/scheduler"
)

func newMigrateCmd(a *app) *cobra.Command {
	var selectExpr string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade every stored flow version through the schema migration chain",
		Long: `migrate pages through the stored flow versions whose schema version has a
registered migration, applies the chain to each one on a bounded worker pool and
writes the result back with a compare-and-swap on the schema version. A record
that fails is reported and left untouched; the rest of the batch continues.

The run report is printed as JSON. The command exits non-zero when any record failed.
With --schedule the run repeats until interrupted and each report is one JSON line.`,
		Example: `  flowgraph migrate --dry-run
  flowgraph migrate --select '.flowId == "orders"' --pool-size 8
  flowgraph migrate --select 'cel: schemaVersion == "1" && flowId.startsWith("billing")'
  flowgraph migrate --schedule "@every 10m"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Schedule != "" {
				if _, err := scheduler.ParseSchedule(a.cfg.Schedule); err != nil {
					return err
				}
			}
			cfg := a.runnerConfig()
			if selectExpr != "" {
				sel, err := migration.NewSelector(selectExpr)
				if err != nil {
					return err
				}
				cfg.Selector = sel
			}

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			runner := migration.NewRunner(s, migration.DefaultChain(), a.logger, cfg)

			if a.cfg.Schedule != "" {
				return a.migrateOnSchedule(cmd, runner)
			}

			report, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			if err := writeOutput(cmd, "", append(data, '\n')); err != nil {
				return err
			}
			return reportError(report)
		},
	}

	d := config.Defaults()
	f := cmd.Flags()
	f.Bool("dry-run", d.DryRun, "migrate in memory only and report what would change")
	f.StringVar(&selectExpr, "select", "", "selector expression (jq, or prefixed cel: or expr:); only flow versions it accepts are migrated")
	f.Int("pool-size", d.PoolSize, "number of flow versions migrated concurrently")
	f.Int("page-size", d.PageSize, "flow versions read per store page")
	f.Bool("verify-graph", d.VerifyGraph, "check every compiled graph's invariants before writing it")
	f.String("schedule", d.Schedule, `repeat the run on this cron schedule (e.g. "@every 10m") until interrupted`)

	cmd.AddCommand(newMigrateReportCmd(a))
	return cmd
}

// migrateOnSchedule repeats the run until the process is interrupted, printing
// one JSON report per line.
func (a *app) migrateOnSchedule(cmd *cobra.Command, runner *migration.Runner) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.New(a.cfg.Schedule, func(ctx context.Context) error {
		report, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		if err := writeOutput(cmd, "", append(data, '\n')); err != nil {
			return err
		}
		return reportError(report)
	}, a.logger)
	if err != nil {
		return err
	}
	return sched.Run(ctx)
}

func reportError(report *migration.Report) error {
	if report.Failed > 0 {
		return fmt.Errorf("%d flow version(s) failed to migrate (run %s)", report.Failed, report.RunID)
	}
	return nil
}

func newMigrateReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "Show a recorded migration run and its failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetMigrationRun(ctx, args[0])
			if err != nil {
				return err
			}
			failures, err := s.ListMigrationFailures(ctx, args[0])
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(map[string]any{
				"run":      run,
				"failures": failures,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			return writeOutput(cmd, "", append(data, '\n'))
		},
	}
}
