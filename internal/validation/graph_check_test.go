package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/compiler"
	"github.com/rendis/flowgraph/pkg/schema"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// compiledGraph compiles validLegacyDoc: trigger -> router{Yes: loop{step_1}, Otherwise: empty}.
func compiledGraph(t *testing.T) *schema.Graph {
	t.Helper()
	doc, err := schema.ParseDocument([]byte(validLegacyDoc))
	require.NoError(t, err)
	out, err := compiler.Compile(doc)
	require.NoError(t, err)
	return out.Graph
}

func TestCheckGraph_CompiledGraphIsValid(t *testing.T) {
	result := CheckGraph(compiledGraph(t))
	assert.True(t, result.Valid(), "%v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestCheckGraph_Nil(t *testing.T) {
	result := CheckGraph(nil)
	require.Len(t, result.Errors, 1)
}

func TestCheckGraph_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *schema.Graph)
		code   string
	}{
		{
			name:   "duplicate node",
			mutate: func(g *schema.Graph) { g.Nodes = append(g.Nodes, g.Nodes[1]) },
			code:   schema.ErrCodeDuplicateStep,
		},
		{
			name:   "no trigger",
			mutate: func(g *schema.Graph) { g.Nodes[0].Type = schema.NodeTypeAction },
			code:   schema.ErrCodeValidation,
		},
		{
			name:   "dangling target",
			mutate: func(g *schema.Graph) { g.Edges[0].Target = strPtr("ghost") },
			code:   schema.ErrCodeNotFound,
		},
		{
			name: "unknown source",
			mutate: func(g *schema.Graph) {
				g.Edges = append(g.Edges, schema.GraphEdge{ID: "x", Source: "ghost", Target: strPtr("router"), Type: schema.EdgeTypeDefault})
			},
			code: schema.ErrCodeNotFound,
		},
		{
			name:   "duplicate edge id",
			mutate: func(g *schema.Graph) { g.Edges[1].ID = g.Edges[0].ID },
			code:   schema.ErrCodeValidation,
		},
		{
			name: "default shadows branch",
			mutate: func(g *schema.Graph) {
				g.Edges = append(g.Edges, schema.GraphEdge{ID: "router->loop", Source: "router", Target: strPtr("loop"), Type: schema.EdgeTypeDefault})
			},
			code: schema.ErrCodeValidation,
		},
		{
			name: "router keeps branches",
			mutate: func(g *schema.Graph) {
				g.Node("router").Data.Settings = map[string]any{"branches": []any{}}
			},
			code: schema.ErrCodeValidation,
		},
		{
			name: "missing loop edge",
			mutate: func(g *schema.Graph) {
				kept := g.Edges[:0]
				for _, e := range g.Edges {
					if e.Type != schema.EdgeTypeLoop {
						kept = append(kept, e)
					}
				}
				g.Edges = kept
			},
			code: schema.ErrCodeValidation,
		},
		{
			name: "branch index gap",
			mutate: func(g *schema.Graph) {
				for i := range g.Edges {
					if g.Edges[i].Type == schema.EdgeTypeBranch && *g.Edges[i].BranchIndex == 1 {
						g.Edges[i].BranchIndex = intPtr(5)
					}
				}
			},
			code: schema.ErrCodeBranchMismatch,
		},
		{
			name: "branch edge from action",
			mutate: func(g *schema.Graph) {
				g.Edges = append(g.Edges, schema.GraphEdge{ID: "step_1#branch-0", Source: "step_1", Type: schema.EdgeTypeBranch, BranchIndex: intPtr(0)})
			},
			code: schema.ErrCodeBranchMismatch,
		},
		{
			name: "default edge without target",
			mutate: func(g *schema.Graph) {
				g.Edges = append(g.Edges, schema.GraphEdge{ID: "step_1->", Source: "step_1", Type: schema.EdgeTypeDefault})
			},
			code: schema.ErrCodeValidation,
		},
		{
			name: "cycle",
			mutate: func(g *schema.Graph) {
				g.Edges = append(g.Edges, schema.GraphEdge{ID: "step_1->router", Source: "step_1", Target: strPtr("router"), Type: schema.EdgeTypeDefault})
			},
			code: schema.ErrCodeCycleDetected,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := compiledGraph(t)
			tc.mutate(g)

			result := CheckGraph(g)
			require.False(t, result.Valid())
			assert.True(t, result.HasCode(tc.code), "want %s in %v", tc.code, result.Errors)
		})
	}
}

func TestCheckGraph_UnreachableWarning(t *testing.T) {
	g := compiledGraph(t)
	g.Nodes = append(g.Nodes, schema.GraphNode{ID: "orphan", Type: schema.NodeTypeAction, Data: schema.NodeData{Kind: schema.StepKindCode}})

	result := CheckGraph(g)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "nodes[orphan]", result.Warnings[0].Path)
}
