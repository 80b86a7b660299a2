package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file and create the flow version database",
		Long: `init writes the effective configuration (defaults, environment and the
global flags given to this command) to a settings file, then opens the database
so its tables exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = filepath.Join(config.Dir(), "settings.yaml")
			}
			if err := config.Write(a.cfg, path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)

			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s\n", a.cfg.DBPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "settings file to write (default ~/.flowgraph/settings.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")
	return cmd
}
