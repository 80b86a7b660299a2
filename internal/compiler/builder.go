package compiler

import (
	"github.com/go-viper/mapstructure/v2"

	"github.com/rendis/flowgraph/pkg/schema"
)

// frame is a pending step together with the node it hangs off.
// A structural frame is the head of a branch or loop body: its in-edge is the
// branch/loop edge already emitted by the container, so no default edge is added.
type frame struct {
	step       *schema.LegacyStep
	prev       string
	structural bool
}

// builder accumulates the graph for a single compilation. Not safe for concurrent use.
type builder struct {
	nodes []schema.GraphNode
	edges []schema.GraphEdge
	stack []frame

	owned map[*schema.LegacyStep]struct{}
	names map[string]struct{}
}

func newBuilder() *builder {
	return &builder{
		owned: make(map[*schema.LegacyStep]struct{}),
		names: make(map[string]struct{}),
	}
}

func (b *builder) push(f frame) { b.stack = append(b.stack, f) }

func (b *builder) pop() frame {
	f := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return f
}

// claim records s as visited. A step reached twice means a cycle or a step shared
// by two parents; both would make the walk emit it more than once.
func (b *builder) claim(s *schema.LegacyStep) error {
	if s.Name == "" {
		return schema.NewError(schema.ErrCodeMalformedStep, "step has no name").
			WithDetails(map[string]any{"type": string(s.Type), "display_name": s.DisplayName})
	}
	if _, ok := b.owned[s]; ok {
		return schema.NewErrorf(schema.ErrCodeCycleDetected,
			"step %q is reachable more than once", s.Name).WithStep(s.Name)
	}
	if _, ok := b.names[s.Name]; ok {
		return schema.NewErrorf(schema.ErrCodeDuplicateStep,
			"step name %q is used more than once", s.Name).WithStep(s.Name)
	}
	b.owned[s] = struct{}{}
	b.names[s.Name] = struct{}{}
	return nil
}

// visit emits the node for f.step and its in-edge, then schedules its chain
// successor and, for containers, its structural children on top of it.
func (b *builder) visit(f frame) error {
	s := f.step
	if err := b.claim(s); err != nil {
		return err
	}

	b.nodes = append(b.nodes, actionNode(s))
	if !f.structural {
		b.edges = append(b.edges, defaultEdge(f.prev, s.Name))
	}

	// Pushed first so the whole subtree is emitted before the chain continues.
	if s.NextAction != nil {
		b.push(frame{step: s.NextAction, prev: s.Name})
	}

	switch {
	case s.IsRouter():
		return b.router(s)
	case s.IsLoop():
		b.edges = append(b.edges, loopEdge(s.Name, s.FirstLoopAction))
		if s.FirstLoopAction != nil {
			b.push(frame{step: s.FirstLoopAction, prev: s.Name, structural: true})
		}
	}
	return nil
}

func (b *builder) router(s *schema.LegacyStep) error {
	branches, err := routerBranches(s)
	if err != nil {
		return err
	}
	if len(branches) != len(s.Children) {
		return schema.NewErrorf(schema.ErrCodeBranchMismatch,
			"router has %d branches but %d children", len(branches), len(s.Children)).
			WithStep(s.Name).
			WithDetails(map[string]any{"branches": len(branches), "children": len(s.Children)})
	}

	for i, br := range branches {
		b.edges = append(b.edges, branchEdge(s.Name, i, br, s.Children[i]))
	}
	for i := len(s.Children) - 1; i >= 0; i-- {
		if head := s.Children[i]; head != nil {
			b.push(frame{step: head, prev: s.Name, structural: true})
		}
	}
	return nil
}

// routerBranches decodes settings.branches. A router without the key has no branches.
func routerBranches(s *schema.LegacyStep) ([]schema.BranchDescriptor, error) {
	raw, ok := s.Settings[schema.RouterBranchesKey]
	if !ok || raw == nil {
		return nil, nil
	}

	var branches []schema.BranchDescriptor
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &branches,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, schema.NewError(schema.ErrCodeMalformedStep, "router settings.branches is malformed").
			WithStep(s.Name).
			WithCause(err)
	}
	for i, br := range branches {
		// null and {} both decode to the zero descriptor.
		if br.BranchName == "" && br.BranchType == "" {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedStep,
				"router settings.branches[%d] is empty", i).
				WithStep(s.Name).
				WithDetails(map[string]any{"branchIndex": i})
		}
	}
	return branches, nil
}
