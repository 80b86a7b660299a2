package diagram

import (
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// emptyPrefix starts the ID of every virtual empty-slot node.
const emptyPrefix = "__empty_"

// Build converts a compiled graph into a DiagramModel.
// Edges with a null target get their own virtual empty node so every slot is visible.
func Build(g *schema.Graph, title string) (*DiagramModel, error) {
	if g == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "diagram: graph is nil")
	}

	model := &DiagramModel{Title: title}
	known := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := graphNode(&g.Nodes[i])
		if known[n.ID] {
			return nil, schema.NewErrorf(schema.ErrCodeDuplicateStep, "diagram: duplicate node %q", n.ID)
		}
		known[n.ID] = true
		model.Nodes = append(model.Nodes, n)
	}

	for _, e := range g.Edges {
		if !known[e.Source] {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "diagram: edge %q source %q does not exist", e.ID, e.Source)
		}
		to := e.TargetID()
		if to == "" {
			to = emptyPrefix + mermaidSafeID(e.ID)
			model.Nodes = append(model.Nodes, &Node{ID: to, Label: "(empty)", Kind: NodeKindEmpty})
			known[to] = true
		} else if !known[to] {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "diagram: edge %q target %q does not exist", e.ID, to)
		}
		model.Edges = append(model.Edges, Edge{
			From:  e.Source,
			To:    to,
			Label: edgeLabel(e),
			Style: EdgeStyle(e.Type),
		})
	}

	model.Levels = buildLevels(model)
	return model, nil
}

func graphNode(n *schema.GraphNode) *Node {
	out := &Node{
		ID:       n.ID,
		Label:    n.Data.DisplayName,
		StepKind: string(n.Data.Kind),
		Invalid:  !n.Data.Valid,
		Skipped:  n.Data.Skip != nil && *n.Data.Skip,
	}
	if out.Label == "" {
		out.Label = n.ID
	}
	switch {
	case n.Type == schema.NodeTypeTrigger:
		out.Kind = NodeKindTrigger
	case n.Data.Kind == schema.StepKindRouter:
		out.Kind = NodeKindRouter
	case n.Data.Kind == schema.StepKindLoopOnItems:
		out.Kind = NodeKindLoop
	default:
		out.Kind = NodeKindAction
	}
	return out
}

func edgeLabel(e schema.GraphEdge) string {
	switch e.Type {
	case schema.EdgeTypeBranch:
		if e.BranchName != "" {
			return e.BranchName
		}
		if e.BranchIndex != nil {
			return fmt.Sprintf("branch %d", *e.BranchIndex)
		}
		return "branch"
	case schema.EdgeTypeLoop:
		return "loop"
	default:
		return ""
	}
}

// buildLevels layers nodes by longest path from the sources of the graph.
// Nodes on a cycle, which a compiled graph never has, end up in a final level.
func buildLevels(model *DiagramModel) [][]string {
	if len(model.Nodes) == 0 {
		return nil
	}
	indeg := make(map[string]int, len(model.Nodes))
	out := make(map[string][]string, len(model.Nodes))
	for _, e := range model.Edges {
		indeg[e.To]++
		out[e.From] = append(out[e.From], e.To)
	}

	level := make(map[string]int, len(model.Nodes))
	var queue []string
	for _, n := range model.Nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	placed := 0
	depth := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		placed++
		if level[id] > depth {
			depth = level[id]
		}
		for _, to := range out[id] {
			if level[id]+1 > level[to] {
				level[to] = level[id] + 1
			}
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	levels := make([][]string, depth+1)
	if placed < len(model.Nodes) {
		levels = append(levels, nil)
	}
	for _, n := range model.Nodes {
		if indeg[n.ID] > 0 {
			levels[len(levels)-1] = append(levels[len(levels)-1], n.ID)
			continue
		}
		levels[level[n.ID]] = append(levels[level[n.ID]], n.ID)
	}
	return levels
}
