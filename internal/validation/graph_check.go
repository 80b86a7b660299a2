package validation

import (
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// CheckGraph verifies the structural invariants of a compiled graph:
// unique node and edge ids, a single trigger, no dangling edges, exactly the expected
// structural edges per router and loop, no default edge shadowing a structural edge,
// routers without a branches setting, and acyclicity. Nodes the trigger cannot reach
// are reported as warnings.
func CheckGraph(g *schema.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if g == nil {
		result.AddError("/", schema.ErrCodeValidation, "graph is nil")
		return result
	}

	nodes := checkNodes(g, result)
	checkEdges(g, nodes, result)
	if !result.Valid() {
		return result // topology checks assume well-formed nodes and edges
	}

	checkAcyclic(g, nodes, result)
	if result.Valid() {
		checkReachable(g, result)
	}
	return result
}

// checkNodes indexes nodes by id and reports id and trigger problems.
func checkNodes(g *schema.Graph, result *schema.ValidationResult) map[string]*schema.GraphNode {
	nodes := make(map[string]*schema.GraphNode, len(g.Nodes))
	triggers := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			result.AddError(path, schema.ErrCodeMalformedStep, "node has no id")
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			result.AddError(path, schema.ErrCodeDuplicateStep, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodes[n.ID] = n

		switch n.Type {
		case schema.NodeTypeTrigger:
			triggers++
		case schema.NodeTypeAction:
		default:
			result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
		}

		if n.Data.Kind == schema.StepKindRouter {
			if _, ok := n.Data.Settings[schema.RouterBranchesKey]; ok {
				result.AddError(path+".data.settings", schema.ErrCodeValidation,
					fmt.Sprintf("router %q still carries settings.branches", n.ID))
			}
		}
	}
	if triggers != 1 {
		result.AddError("nodes", schema.ErrCodeValidation,
			fmt.Sprintf("graph must have exactly one trigger node, found %d", triggers))
	}
	return nodes
}

// checkEdges validates each edge against the node index and the per-kind
// structural edge counts.
func checkEdges(g *schema.Graph, nodes map[string]*schema.GraphNode, result *schema.ValidationResult) {
	edgeIDs := make(map[string]bool, len(g.Edges))
	structural := make(map[[2]string]string)
	branchIdx := make(map[string][]int)
	loopEdges := make(map[string]int)

	for i, e := range g.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if e.ID == "" {
			result.AddError(path, schema.ErrCodeValidation, "edge has no id")
		} else if edgeIDs[e.ID] {
			result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = true

		src, ok := nodes[e.Source]
		if !ok {
			result.AddError(path, schema.ErrCodeNotFound, fmt.Sprintf("edge %q source %q does not exist", e.ID, e.Source))
			continue
		}
		if e.Target != nil {
			if _, ok := nodes[*e.Target]; !ok {
				result.AddError(path, schema.ErrCodeNotFound, fmt.Sprintf("edge %q target %q does not exist", e.ID, *e.Target))
				continue
			}
		}

		switch e.Type {
		case schema.EdgeTypeDefault:
			if e.Target == nil {
				result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("default edge %q has no target", e.ID))
			}
		case schema.EdgeTypeBranch:
			if src.Data.Kind != schema.StepKindRouter {
				result.AddError(path, schema.ErrCodeBranchMismatch,
					fmt.Sprintf("branch edge %q leaves non-router node %q", e.ID, e.Source))
			}
			if e.BranchIndex == nil {
				result.AddError(path, schema.ErrCodeBranchMismatch, fmt.Sprintf("branch edge %q has no branchIndex", e.ID))
			} else {
				branchIdx[e.Source] = append(branchIdx[e.Source], *e.BranchIndex)
			}
			if e.Target != nil {
				structural[[2]string{e.Source, *e.Target}] = e.ID
			}
		case schema.EdgeTypeLoop:
			if src.Data.Kind != schema.StepKindLoopOnItems {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("loop edge %q leaves non-loop node %q", e.ID, e.Source))
			}
			loopEdges[e.Source]++
			if e.Target != nil {
				structural[[2]string{e.Source, *e.Target}] = e.ID
			}
		default:
			result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("edge %q has unknown type %q", e.ID, e.Type))
		}
	}

	for i, e := range g.Edges {
		if e.Type != schema.EdgeTypeDefault || e.Target == nil {
			continue
		}
		if id, ok := structural[[2]string{e.Source, *e.Target}]; ok {
			result.AddError(fmt.Sprintf("edges[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("default edge %q duplicates structural edge %q", e.ID, id))
		}
	}

	for _, n := range g.Nodes {
		switch n.Data.Kind {
		case schema.StepKindLoopOnItems:
			if c := loopEdges[n.ID]; c != 1 {
				result.AddError(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeValidation,
					fmt.Sprintf("loop %q has %d loop edges, want 1", n.ID, c))
			}
		case schema.StepKindRouter:
			seen := make([]bool, len(branchIdx[n.ID]))
			for _, idx := range branchIdx[n.ID] {
				if idx < 0 || idx >= len(seen) || seen[idx] {
					result.AddError(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeBranchMismatch,
						fmt.Sprintf("router %q branch indexes are not 0..%d", n.ID, len(seen)-1))
					break
				}
				seen[idx] = true
			}
		}
	}
}

// checkAcyclic runs Kahn's algorithm over the non-null edges.
func checkAcyclic(g *schema.Graph, nodes map[string]*schema.GraphNode, result *schema.ValidationResult) {
	inDegree := make(map[string]int, len(nodes))
	out := make(map[string][]string, len(nodes))
	for id := range nodes {
		inDegree[id] = 0
	}
	for _, e := range g.Edges {
		if e.Target == nil {
			continue
		}
		out[e.Source] = append(out[e.Source], *e.Target)
		inDegree[*e.Target]++
	}

	for _, n := range g.Nodes {
		if n.Type != schema.NodeTypeTrigger && inDegree[n.ID] > 1 {
			result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeValidation,
				fmt.Sprintf("node %q has %d incoming edges", n.ID, inDegree[n.ID]))
		}
	}

	queue := make([]string, 0, len(nodes))
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range out[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(nodes) {
		result.AddError("edges", schema.ErrCodeCycleDetected, "graph contains a cycle")
	}
}

// checkReachable warns about nodes the trigger cannot reach.
func checkReachable(g *schema.Graph, result *schema.ValidationResult) {
	trigger := g.Trigger()
	if trigger == nil {
		return
	}

	out := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if e.Target != nil {
			out[e.Source] = append(out[e.Source], *e.Target)
		}
	}

	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range out[id] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, n := range g.Nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the trigger", n.ID))
		}
	}
}
