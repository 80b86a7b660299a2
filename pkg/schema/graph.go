package schema

// NodeType distinguishes the trigger node from action nodes.
type NodeType string

const (
	NodeTypeTrigger NodeType = "trigger"
	NodeTypeAction  NodeType = "action"
)

// EdgeType enumerates the transitions of a compiled graph.
type EdgeType string

const (
	EdgeTypeDefault EdgeType = "default"
	EdgeTypeBranch  EdgeType = "branch"
	EdgeTypeLoop    EdgeType = "loop"
)

// Graph is the normalized node/edge representation of a flow version.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode is a trigger or action. ID equals the legacy step name.
type GraphNode struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data"`
}

// NodeData carries the step payload. For routers, Settings has no branches key.
type NodeData struct {
	Kind        StepKind       `json:"kind"`
	DisplayName string         `json:"displayName"`
	Valid       bool           `json:"valid"`
	Skip        *bool          `json:"skip,omitempty"`
	Settings    map[string]any `json:"settings"`
}

// GraphEdge is a transition between nodes. A nil Target is an empty successor slot
// (an empty branch or an empty loop body). The branch fields are set on branch edges only.
type GraphEdge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target *string  `json:"target"`
	Type   EdgeType `json:"type"`

	BranchIndex *int       `json:"branchIndex,omitempty"`
	BranchName  string     `json:"branchName,omitempty"`
	BranchType  BranchType `json:"branchType,omitempty"`
	Conditions  any        `json:"conditions,omitempty"`
}

// TargetID returns the target node id, or "" for an empty slot.
func (e GraphEdge) TargetID() string {
	if e.Target == nil {
		return ""
	}
	return *e.Target
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *GraphNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// EdgesFrom returns the edges whose source is id, in emission order.
func (g *Graph) EdgesFrom(id string) []GraphEdge {
	var out []GraphEdge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Trigger returns the trigger node, or nil if the graph has none.
func (g *Graph) Trigger() *GraphNode {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeTrigger {
			return &g.Nodes[i]
		}
	}
	return nil
}
