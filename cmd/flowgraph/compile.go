package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/migration"
	"github.com/rendis/flowgraph/pkg/schema"
)

func newCompileCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compile <file|->",
		Short: "Compile a legacy flow version and print the graph document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			v, err := newValidator()
			if err != nil {
				return err
			}

			doc, result := migration.Preview(v, raw)
			printIssues(cmd, result)
			if doc == nil {
				return result.ToError()
			}

			a.logger.Debug("flow version compiled", "nodes", len(doc.Graph.Nodes), "edges", len(doc.Graph.Edges))
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			return writeOutput(cmd, out, append(data, '\n'))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the compiled document to this file instead of stdout")
	return cmd
}

// printIssues writes one line per validation issue to stderr.
func printIssues(cmd *cobra.Command, result *schema.ValidationResult) {
	w := cmd.ErrOrStderr()
	for _, issue := range result.Issues() {
		fmt.Fprintln(w, issue)
	}
}
