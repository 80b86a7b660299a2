package diagram

// NodeKind classifies a diagram node by the role of its step in the flow.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
	NodeKindRouter  NodeKind = "router"
	NodeKindLoop    NodeKind = "loop"
	// NodeKindEmpty marks a virtual sink standing in for an empty branch or loop body.
	NodeKindEmpty NodeKind = "empty"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
	// Levels groups node IDs by longest distance from the trigger.
	Levels [][]string
}

// Node is a single graph node, or a virtual empty-slot sink.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	StepKind string
	Skipped  bool
	Invalid  bool
}

// EdgeStyle distinguishes the three compiled edge types.
type EdgeStyle string

const (
	EdgeStyleDefault EdgeStyle = "default"
	EdgeStyleBranch  EdgeStyle = "branch"
	EdgeStyleLoop    EdgeStyle = "loop"
)

// Edge connects two diagram nodes.
type Edge struct {
	From  string
	To    string
	Label string
	Style EdgeStyle
}

// Node returns the node with the given ID, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
