package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/migration"
)

// --- Tool handlers ---

// handleCompile converts a legacy document into the graph shape it would be migrated to.
func (s *FlowgraphServer) handleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := s.documentArg(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	doc, result := migration.Preview(s.validator, raw)
	if doc == nil {
		return marshalResult(map[string]any{
			"valid":  false,
			"errors": result.Errors,
		})
	}
	return marshalResult(map[string]any{
		"valid":    true,
		"warnings": result.Warnings,
		"document": doc,
	})
}

// handleCheck reports every validation issue without converting anything.
func (s *FlowgraphServer) handleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := s.documentArg(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	_, result := s.validator.Check(raw)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleDiagram renders a flow version in the requested format.
func (s *FlowgraphServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if !slices.Contains(diagram.Formats, format) {
		return mcp.NewToolResultError("format must be one of " + strings.Join(diagram.Formats, ", ")), nil
	}

	raw, errResult := s.documentArg(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	doc, result := s.validator.Check(raw)
	if doc == nil || doc.Graph == nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", result.ToError())), nil
	}

	model, buildErr := diagram.Build(doc.Graph, req.GetString("title", ""))
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	out, renderErr := diagram.Render(ctx, model, format)
	if renderErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s render failed: %v", format, renderErr)), nil
	}
	if diagram.IsBinary(format) {
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// handleMigrate runs the batch migration over the configured store.
func (s *FlowgraphServer) handleMigrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("migrate requires a store"), nil
	}

	cfg := s.runnerCfg
	cfg.DryRun = req.GetBool("dry_run", cfg.DryRun)
	if expr := req.GetString("select", ""); expr != "" {
		sel, err := migration.NewSelector(expr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid select expression: %v", err)), nil
		}
		cfg.Selector = sel
	}

	report, err := migration.NewRunner(s.store, s.chain, s.logger, cfg).Run(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("migration run failed: %v", err)), nil
	}
	s.notifyRunFinished(ctx, report)
	return marshalResult(report)
}

// --- Helpers ---

// documentArg returns the raw JSON of the document argument, or of the stored flow
// version named by flow_version_id. A non-nil result is the tool error to return.
func (s *FlowgraphServer) documentArg(ctx context.Context, req mcp.CallToolRequest) ([]byte, *mcp.CallToolResult) {
	if id := req.GetString("flow_version_id", ""); id != "" {
		if s.store == nil {
			return nil, mcp.NewToolResultError("flow_version_id requires a store")
		}
		fv, err := s.store.GetFlowVersion(ctx, id)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("flow version lookup failed: %v", err))
		}
		ctx = logging.WithFlowVersionID(ctx, id)
		raw, err := json.Marshal(fv.Document)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("failed to encode flow version: %v", err))
		}
		s.logger.DebugContext(ctx, "loaded flow version")
		return raw, nil
	}

	doc := mcp.ParseStringMap(req, "document", nil)
	if doc == nil {
		return nil, mcp.NewToolResultError("one of document or flow_version_id is required")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err))
	}
	return raw, nil
}

// marshalResult JSON-encodes v into a tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
