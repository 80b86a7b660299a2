package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/pkg/schema"
)

func newDiagramCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
		title  string
		fromDB bool
	)
	cmd := &cobra.Command{
		Use:   "diagram <file|-|flow-version-id>",
		Short: "Render a flow version as a diagram",
		Example: `  flowgraph diagram flow.json --format mermaid
  flowgraph diagram flow.json --format png --out flow.png
  flowgraph diagram --from-db fv-123 --format ascii`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if diagram.IsBinary(format) && out == "" {
				return fmt.Errorf("--format %s requires --out", format)
			}

			raw, err := a.loadDocument(cmd, args[0], fromDB)
			if err != nil {
				return err
			}
			v, err := newValidator()
			if err != nil {
				return err
			}

			doc, result := v.Check(raw)
			if doc == nil || doc.Graph == nil {
				printIssues(cmd, result)
				return result.ToError()
			}

			model, err := diagram.Build(doc.Graph, title)
			if err != nil {
				return err
			}
			data, err := diagram.Render(cmd.Context(), model, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, data)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", diagram.FormatMermaid,
		"output format: "+strings.Join(diagram.Formats, ", "))
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the diagram to this file instead of stdout")
	cmd.Flags().StringVar(&title, "title", "", "diagram title")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "treat the argument as a stored flow version id")
	return cmd
}

// loadDocument returns the raw document named by arg: a file, stdin, or a stored
// flow version when fromDB is set.
func (a *app) loadDocument(cmd *cobra.Command, arg string, fromDB bool) ([]byte, error) {
	if !fromDB {
		return readInput(cmd, arg)
	}
	s, err := a.openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer s.Close()

	fv, err := s.GetFlowVersion(cmd.Context(), arg)
	if err != nil {
		return nil, err
	}
	return schemaJSON(fv.Document)
}

func schemaJSON(doc *schema.Document) ([]byte, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}
