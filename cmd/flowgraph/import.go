package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

func newImportCmd(a *app) *cobra.Command {
	var flowID string
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Insert flow version documents into the store",
		Long: `import stores each document as a new flow version. The flow version id is
the document's "id" field, or a generated UUID. The flow id is --flow-id, the
document's "flowId" field, or the file name without its extension.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, name := range args {
				raw, err := readInput(cmd, name)
				if err != nil {
					return err
				}
				fv, err := newFlowVersion(name, flowID, raw)
				if err != nil {
					return err
				}
				if err := s.CreateFlowVersion(ctx, fv); err != nil {
					return fmt.Errorf("import %s: %w", name, err)
				}
				a.logger.InfoContext(logging.WithFlowVersionID(ctx, fv.ID), "flow version imported",
					"file", name, "flow_id", fv.FlowID, "schema_version", fv.SchemaVersion)
				fmt.Fprintln(cmd.OutOrStdout(), fv.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flowID, "flow-id", "", "flow id for every imported document")
	return cmd
}

// newFlowVersion builds the record for one imported document.
func newFlowVersion(name, flowID string, raw []byte) (*store.FlowVersion, error) {
	doc, err := schema.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	fv := &store.FlowVersion{
		ID:          extraString(doc, "id"),
		FlowID:      flowID,
		DisplayName: extraString(doc, "displayName"),
		Document:    doc,
	}
	if fv.ID == "" {
		fv.ID = uuid.New().String()
	}
	if fv.FlowID == "" {
		fv.FlowID = extraString(doc, "flowId")
	}
	if fv.FlowID == "" {
		base := filepath.Base(name)
		fv.FlowID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return fv, nil
}

// extraString returns a pass-through field of doc when it holds a JSON string.
func extraString(doc *schema.Document, key string) string {
	raw, ok := doc.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
