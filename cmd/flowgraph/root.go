package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/config"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/migration"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
)

// app carries what every subcommand needs once the root pre-run has loaded it.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	defaults := config.Defaults()

	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Convert legacy flow versions into node/edge graphs",
		Long: `flowgraph compiles legacy flow versions, where steps are linked through
trigger/nextAction chains, router children and loop bodies, into a normalized
graph of nodes and edges.

It can compile and check single documents, render them as diagrams, and migrate
every flow version stored in a libSQL database through the schema migration chain.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "settings file (default is ./settings.yaml or ~/.flowgraph/settings.yaml)")
	pf.String("db-path", defaults.DBPath, "flow version database path")
	pf.String("log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	pf.String("log-format", defaults.LogFormat, "log format: text or json")

	root.AddCommand(
		newCompileCmd(a),
		newCheckCmd(a),
		newDiagramCmd(a),
		newImportCmd(a),
		newMigrateCmd(a),
		newInitCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// load resolves the configuration against the command's flags and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if cfg.File != "" {
		a.logger.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

// openStore opens the configured database and applies pending DB migrations.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if !strings.Contains(a.cfg.DBPath, "://") {
		path := strings.TrimPrefix(a.cfg.DBPath, "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	s, err := store.NewLibSQLStore(a.cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	a.logger.Debug("store opened", "db_path", a.cfg.DBPath)
	return s, nil
}

// runnerConfig maps the loaded configuration onto the batch driver's settings.
func (a *app) runnerConfig() migration.RunnerConfig {
	return migration.RunnerConfig{
		PoolSize:    a.cfg.PoolSize,
		PageSize:    a.cfg.PageSize,
		VerifyGraph: a.cfg.VerifyGraph,
		DryRun:      a.cfg.DryRun,
	}
}

func newValidator() (*validation.FlowValidator, error) {
	v, err := validation.NewFlowValidator()
	if err != nil {
		return nil, fmt.Errorf("load legacy schema: %w", err)
	}
	return v, nil
}

// readInput reads the named file, or standard input when name is "-".
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// writeOutput writes data to path, or to the command's stdout when path is empty.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
