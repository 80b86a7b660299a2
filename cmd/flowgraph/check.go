package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check <file|->",
		Short: "Validate a flow version and report every issue",
		Long: `check validates a legacy flow version (structure, compilation and the
compiled graph's invariants) or an already compiled graph document. It exits
non-zero when any error is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			v, err := newValidator()
			if err != nil {
				return err
			}

			_, result := v.Check(raw)
			a.logger.Debug("flow version checked", "file", args[0],
				"errors", len(result.Errors), "warnings", len(result.Warnings))
			if asJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				if err := writeOutput(cmd, "", append(data, '\n')); err != nil {
					return err
				}
			} else {
				printIssues(cmd, result)
			}

			if !result.Valid() {
				return fmt.Errorf("%s: %d error(s)", args[0], len(result.Errors))
			}
			if !asJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the validation result as JSON")
	return cmd
}
