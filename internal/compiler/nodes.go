package compiler

import (
	"fmt"
	"strings"

	"github.com/rendis/flowgraph/pkg/schema"
)

func triggerNode(s *schema.LegacyStep) schema.GraphNode {
	return schema.GraphNode{
		ID:   s.Name,
		Type: schema.NodeTypeTrigger,
		Data: nodeData(s, s.Settings),
	}
}

// actionNode builds the node for a non-trigger step. Router settings lose their
// branches key; branch topology lives on the branch edges instead.
func actionNode(s *schema.LegacyStep) schema.GraphNode {
	settings := s.Settings
	if s.IsRouter() {
		settings = withoutKey(s.Settings, schema.RouterBranchesKey)
	}
	return schema.GraphNode{
		ID:   s.Name,
		Type: schema.NodeTypeAction,
		Data: nodeData(s, settings),
	}
}

func nodeData(s *schema.LegacyStep, settings map[string]any) schema.NodeData {
	return schema.NodeData{
		Kind:        s.Type,
		DisplayName: s.DisplayName,
		Valid:       s.Valid,
		Skip:        s.Skip,
		Settings:    settings,
	}
}

func withoutKey(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// Edge ids are derived from the endpoints and the edge role, which makes them unique
// whenever step names are: a step has at most one chain successor, one edge per
// branch slot and one loop edge. Names are escaped so a step called "a->b" or
// "b#loop" cannot produce another edge's id.

var idEscaper = strings.NewReplacer("%", "%25", "#", "%23", ">", "%3E")

func defaultEdgeID(source, target string) string {
	return idEscaper.Replace(source) + "->" + idEscaper.Replace(target)
}

func branchEdgeID(source string, index int) string {
	return fmt.Sprintf("%s#branch-%d", idEscaper.Replace(source), index)
}

func loopEdgeID(source string) string { return idEscaper.Replace(source) + "#loop" }

func defaultEdge(source, target string) schema.GraphEdge {
	return schema.GraphEdge{
		ID:     defaultEdgeID(source, target),
		Source: source,
		Target: &target,
		Type:   schema.EdgeTypeDefault,
	}
}

func branchEdge(source string, index int, br schema.BranchDescriptor, head *schema.LegacyStep) schema.GraphEdge {
	idx := index
	return schema.GraphEdge{
		ID:          branchEdgeID(source, index),
		Source:      source,
		Target:      targetOf(head),
		Type:        schema.EdgeTypeBranch,
		BranchIndex: &idx,
		BranchName:  br.BranchName,
		BranchType:  br.BranchType,
		Conditions:  br.Conditions,
	}
}

func loopEdge(source string, head *schema.LegacyStep) schema.GraphEdge {
	return schema.GraphEdge{
		ID:     loopEdgeID(source),
		Source: source,
		Target: targetOf(head),
		Type:   schema.EdgeTypeLoop,
	}
}

func targetOf(head *schema.LegacyStep) *string {
	if head == nil {
		return nil
	}
	name := head.Name
	return &name
}
