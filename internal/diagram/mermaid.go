package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("flowchart TD\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		switch edge.Style {
		case EdgeStyleLoop:
			arrow = "-.->"
		case EdgeStyleBranch:
			arrow = "==>"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s %s%s %s\n",
			mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef trigger fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef empty fill:#fff,stroke:#999,color:#999,stroke-dasharray:4 4\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")
	b.WriteString("    classDef invalid fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")

	for _, node := range model.Nodes {
		if cls := mermaidClass(node); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case NodeKindTrigger:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case NodeKindRouter:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case NodeKindLoop:
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case NodeKindEmpty:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier: every rune
// outside [A-Za-z0-9_] becomes an underscore.
func mermaidSafeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

// mermaidEscapeLabel replaces characters that terminate a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "|", "#124;").Replace(s)
}

// mermaidClass picks the style class of a node. Invalid wins over skipped.
func mermaidClass(node *Node) string {
	switch {
	case node.Kind == NodeKindEmpty:
		return "empty"
	case node.Invalid:
		return "invalid"
	case node.Skipped:
		return "skipped"
	case node.Kind == NodeKindTrigger:
		return "trigger"
	default:
		return ""
	}
}
