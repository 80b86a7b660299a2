// Package compiler turns the legacy linked-list flow representation into the
// normalized node/edge graph.
package compiler

import "github.com/rendis/flowgraph/pkg/schema"

// Compile converts a legacy flow version document into its graph form.
// The result carries every field of doc except trigger and steps, which are
// replaced by graph. doc itself is not modified.
func Compile(doc *schema.Document) (*schema.Document, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "flow version document is nil")
	}
	if doc.Trigger == nil {
		return nil, schema.NewError(schema.ErrCodeMalformedStep, "flow version has no trigger")
	}

	g, err := CompileTrigger(doc.Trigger)
	if err != nil {
		return nil, err
	}

	out := doc.Clone()
	out.Trigger = nil
	out.Steps = nil
	out.Graph = g
	return out, nil
}

// CompileTrigger walks the step tree rooted at trigger and returns the graph.
//
// Nodes are emitted depth-first: a step, then the subtrees it contains (router
// branches in order, or the loop body), then the rest of its chain. Edges follow
// the same order. The walk uses an explicit stack, so nesting depth is not bounded
// by the goroutine stack.
//
// The tree must be well formed: every step named, names unique, each step owned by a
// single parent, and routers carrying one branch descriptor per child slot. Any
// violation fails the whole compilation.
func CompileTrigger(trigger *schema.LegacyStep) (*schema.Graph, error) {
	if trigger == nil {
		return nil, schema.NewError(schema.ErrCodeMalformedStep, "trigger is nil")
	}

	b := newBuilder()
	if err := b.claim(trigger); err != nil {
		return nil, err
	}
	b.nodes = append(b.nodes, triggerNode(trigger))
	if trigger.NextAction != nil {
		b.push(frame{step: trigger.NextAction, prev: trigger.Name})
	}

	for len(b.stack) > 0 {
		if err := b.visit(b.pop()); err != nil {
			return nil, err
		}
	}

	return &schema.Graph{Nodes: b.nodes, Edges: b.edges}, nil
}
