// Package mcp exposes the flow version compiler, checker, diagram renderer and
// migration runner as Model Context Protocol tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgraph/internal/migration"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
)

// ServerDeps holds the dependencies for creating a FlowgraphServer.
// Store is optional; without it the store-backed tools and arguments report an error.
type ServerDeps struct {
	Store     store.Store
	Validator *validation.FlowValidator
	Chain     *migration.Chain
	Runner    migration.RunnerConfig
	Version   string
	Logger    *slog.Logger
}

// FlowgraphServer wraps an MCP server with flowgraph tool handlers.
type FlowgraphServer struct {
	store     store.Store
	validator *validation.FlowValidator
	chain     *migration.Chain
	runnerCfg migration.RunnerConfig
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowgraphServer creates a FlowgraphServer with all tools registered.
func NewFlowgraphServer(deps ServerDeps) (*FlowgraphServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	v := deps.Validator
	if v == nil {
		var err error
		if v, err = validation.NewFlowValidator(); err != nil {
			return nil, err
		}
	}
	chain := deps.Chain
	if chain == nil {
		chain = migration.DefaultChain()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowgraphServer{
		store:     deps.Store,
		validator: v,
		chain:     chain,
		runnerCfg: deps.Runner,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowgraph",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowgraph converts legacy linked-list flow versions (trigger/nextAction steps) into node/edge graphs. Use flowgraph.compile to convert a document, flowgraph.check to validate one, flowgraph.diagram to render it, and flowgraph.migrate to upgrade every stored flow version."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowgraphServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowgraphServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowgraphServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: compileTool(), Handler: s.handleCompile},
		{Tool: checkTool(), Handler: s.handleCheck},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: migrateTool(), Handler: s.handleMigrate},
	}
}

// --- Tool definitions ---

func compileTool() mcp.Tool {
	return mcp.NewTool("flowgraph.compile",
		mcp.WithDescription("Compile a legacy flow version into its node/edge graph form"),
		mcp.WithObject("document", mcp.Description("Legacy flow version document (with trigger)")),
		mcp.WithString("flow_version_id", mcp.Description("ID of a stored flow version to compile instead of document")),
	)
}

func checkTool() mcp.Tool {
	return mcp.NewTool("flowgraph.check",
		mcp.WithDescription("Validate a flow version and report structural, compilation and graph invariant issues"),
		mcp.WithObject("document", mcp.Description("Flow version document, legacy (trigger) or compiled (graph)")),
		mcp.WithString("flow_version_id", mcp.Description("ID of a stored flow version to check instead of document")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowgraph.diagram",
		mcp.WithDescription("Render a flow version as a diagram. Returns ASCII art, Mermaid flowchart syntax, DOT, SVG, or a base64-encoded PNG image"),
		mcp.WithObject("document", mcp.Description("Flow version document, legacy (trigger) or compiled (graph)")),
		mcp.WithString("flow_version_id", mcp.Description("ID of a stored flow version to render instead of document")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "dot", "svg", "png"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), dot or svg (graphviz), or png (base64)"),
		),
		mcp.WithString("title", mcp.Description("Diagram title")),
	)
}

func migrateTool() mcp.Tool {
	return mcp.NewTool("flowgraph.migrate",
		mcp.WithDescription("Upgrade every stored flow version through the schema migration chain"),
		mcp.WithBoolean("dry_run", mcp.Description("Migrate in memory only and report what would change")),
		mcp.WithString("select", mcp.Description("jq expression; only flow versions it accepts are migrated")),
	)
}
