// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reflexion

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/events"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// =============================================================================
// Nodes
// =============================================================================

// DeleteFromArchitecture removes an architecture node.
//
// Description:
//
//	Every Maps_To edge targeting the node is deleted first, which withdraws
//	all dependencies propagated onto it. Then its specified edges are
//	deleted. The children of the node move to its parent unless
//	orphansBecomeRoots is set.
func (r *Reflexion) DeleteFromArchitecture(n *graph.Node, orphansBecomeRoots bool) error {
	return recordOperation("delete_from_architecture", r.checkedDeleteFromArchitecture(n, orphansBecomeRoots))
}

func (r *Reflexion) checkedDeleteFromArchitecture(n *graph.Node, orphansBecomeRoots bool) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireNode(n, graph.SubgraphArchitecture); err != nil {
		return err
	}
	return r.deleteFromArchitecture(n, orphansBecomeRoots)
}

func (r *Reflexion) deleteFromArchitecture(n *graph.Node, orphansBecomeRoots bool) error {
	for _, m := range n.Incomings() {
		if !m.IsMapsTo() || !r.full.ContainsEdge(m) {
			continue
		}
		if err := r.deleteFromMapping(m.Source(), n); err != nil {
			return err
		}
	}

	incident := append(n.Outgoings(), n.Incomings()...)
	for _, e := range incident {
		if isPropagated(e) {
			return corrupt("propagated %v remains after unmapping %v", e, n)
		}
	}
	for _, e := range incident {
		if !e.IsSpecified() || !r.full.ContainsEdge(e) {
			continue
		}
		if err := r.deleteEdgeFromArchitecture(e); err != nil {
			return err
		}
	}

	children := n.Children()
	for _, c := range children {
		if err := r.unparentInArchitecture(c); err != nil {
			return err
		}
	}
	if parent := n.Parent(); parent != nil {
		if err := r.unparentInArchitecture(n); err != nil {
			return err
		}
		if !orphansBecomeRoots {
			for _, c := range children {
				if err := r.addChildInArchitecture(c, parent); err != nil {
					return err
				}
			}
		}
	}

	r.notify(events.NewNodeEvent(n, events.Removal, graph.SubgraphArchitecture))
	if err := r.full.RemoveNode(n); err != nil {
		return corrupt("removing %v: %v", n, err)
	}
	return nil
}

// =============================================================================
// Specified Edges
// =============================================================================

// AddEdgeToArchitecture adds a specified edge and lifts every propagated
// edge it covers.
//
// Outputs:
//
//	*graph.Edge - The specified edge, Convergent or Absent.
//	error       - NotInSubgraphError, RedundantSpecifiedEdgeError, or
//	              ErrNotSupported for Maps_To.
func (r *Reflexion) AddEdgeToArchitecture(from, to *graph.Node, edgeType string) (*graph.Edge, error) {
	e, err := r.checkedAddEdgeToArchitecture(graph.NewEdge("", from, to, edgeType))
	return e, recordOperation("add_edge_to_architecture", err)
}

func (r *Reflexion) checkedAddEdgeToArchitecture(e *graph.Edge) (*graph.Edge, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if err := r.requireNewEdge(e); err != nil {
		return nil, err
	}
	if err := r.requireNode(e.Source(), graph.SubgraphArchitecture); err != nil {
		return nil, err
	}
	if err := r.requireNode(e.Target(), graph.SubgraphArchitecture); err != nil {
		return nil, err
	}
	if e.IsMapsTo() {
		return nil, fmt.Errorf("%w: Maps_To edge inside the architecture", ErrNotSupported)
	}
	if existing := r.findRedundant(e.Source(), e.Target(), e.Type()); existing != nil {
		return nil, &RedundantSpecifiedEdgeError{First: existing, Second: e}
	}
	return e, r.addEdgeToArchitecture(e)
}

func (r *Reflexion) addEdgeToArchitecture(e *graph.Edge) error {
	covered := r.coveredBy(e.Source(), e.Target(), e.Type())

	if err := r.full.AddEdge(e); err != nil {
		return corrupt("adding %v: %v", e, err)
	}
	if err := e.SetSubgraph(graph.SubgraphArchitecture); err != nil {
		return corrupt("tagging %v: %v", e, err)
	}
	e.SetCounter(0)
	r.notify(events.NewEdgeEvent(e, events.Addition, graph.SubgraphArchitecture))
	r.transition(e, graph.StateSpecified)

	if err := r.reevaluate(covered); err != nil {
		return err
	}
	if e.Counter() == 0 {
		r.transition(e, r.absentState(e))
	}
	return nil
}

// findRedundant returns a specified edge that covers, or is covered by, a
// hypothetical specified edge from -> to of type typ.
func (r *Reflexion) findRedundant(from, to *graph.Node, typ string) *graph.Edge {
	for _, a := range from.Ascendants() {
		for _, s := range a.Outgoings() {
			if s.IsSpecified() && to.IsDescendantOrSelf(s.Target()) && r.options.Types.IsSubtypeOf(typ, s.Type()) {
				return s
			}
		}
	}
	for _, d := range from.Descendants() {
		for _, s := range d.Outgoings() {
			if s.IsSpecified() && s.Target().IsDescendantOrSelf(to) && r.options.Types.IsSubtypeOf(s.Type(), typ) {
				return s
			}
		}
	}
	return nil
}

// coveredBy returns the propagated edges a specified edge from -> to of
// type typ would allow.
func (r *Reflexion) coveredBy(from, to *graph.Node, typ string) []*graph.Edge {
	var result []*graph.Edge
	for _, d := range from.Descendants() {
		for _, p := range d.Outgoings() {
			if isPropagated(p) && p.Target().IsDescendantOrSelf(to) && r.options.Types.IsSubtypeOf(p.Type(), typ) {
				result = append(result, p)
			}
		}
	}
	return result
}

// DeleteEdgeFromArchitecture removes a specified edge. The propagated edges
// it allowed are lifted anew and typically become divergent.
//
// Outputs:
//
//	error - NotInSubgraphError, ExpectedSpecifiedEdgeError.
func (r *Reflexion) DeleteEdgeFromArchitecture(e *graph.Edge) error {
	return recordOperation("delete_edge_from_architecture", r.checkedDeleteEdgeFromArchitecture(e))
}

func (r *Reflexion) checkedDeleteEdgeFromArchitecture(e *graph.Edge) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireEdge(e, graph.SubgraphArchitecture); err != nil {
		return err
	}
	if !e.IsSpecified() {
		return &ExpectedSpecifiedEdgeError{Edge: e}
	}
	return r.deleteEdgeFromArchitecture(e)
}

func (r *Reflexion) deleteEdgeFromArchitecture(e *graph.Edge) error {
	var affected []*graph.Edge
	for _, p := range r.full.Edges() {
		if r.allowing[p.ID()] == e {
			affected = append(affected, p)
		}
	}
	r.notify(events.NewEdgeEvent(e, events.Removal, graph.SubgraphArchitecture))
	if err := r.full.RemoveEdge(e); err != nil {
		return corrupt("removing %v: %v", e, err)
	}
	return r.reevaluate(affected)
}

// =============================================================================
// Hierarchy
// =============================================================================

// AddChildInArchitecture links child below parent and re-lifts every
// propagated edge touching the subtree of child.
//
// Outputs:
//
//	error - NotInSubgraphError, NotAnOrphanError, CyclicHierarchyError,
//	        RedundantSpecifiedEdgeError.
func (r *Reflexion) AddChildInArchitecture(child, parent *graph.Node) error {
	return recordOperation("add_child_in_architecture", r.checkedAddChildInArchitecture(child, parent))
}

func (r *Reflexion) checkedAddChildInArchitecture(child, parent *graph.Node) error {
	if err := r.checkLink(child, parent, graph.SubgraphArchitecture); err != nil {
		return err
	}
	if first, second := r.findRedundantLink(child, parent); first != nil {
		return &RedundantSpecifiedEdgeError{First: first, Second: second}
	}
	return r.addChildInArchitecture(child, parent)
}

func (r *Reflexion) addChildInArchitecture(child, parent *graph.Node) error {
	affected := r.partition(child)
	if err := parent.AddChild(child); err != nil {
		return corrupt("linking %v below %v: %v", child, parent, err)
	}
	r.notify(events.NewHierarchyChangeEvent(parent, child, events.Addition, graph.SubgraphArchitecture))
	return affected.reevaluate(r)
}

// UnparentInArchitecture detaches child from its parent and re-lifts
// every propagated edge touching the subtree of child.
//
// Outputs:
//
//	error - NotInSubgraphError, IsAnOrphanError.
func (r *Reflexion) UnparentInArchitecture(child *graph.Node) error {
	return recordOperation("unparent_in_architecture", r.checkedUnparentInArchitecture(child))
}

func (r *Reflexion) checkedUnparentInArchitecture(child *graph.Node) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireNode(child, graph.SubgraphArchitecture); err != nil {
		return err
	}
	if child.Parent() == nil {
		return &IsAnOrphanError{Node: child}
	}
	return r.unparentInArchitecture(child)
}

func (r *Reflexion) unparentInArchitecture(child *graph.Node) error {
	affected := r.partition(child)
	r.notify(events.NewHierarchyChangeEvent(child.Parent(), child, events.Removal, graph.SubgraphArchitecture))
	child.Unparent()
	return affected.reevaluate(r)
}

// crossing groups the propagated edges touching a subtree.
type crossing struct {
	outgoing []*graph.Edge
	incoming []*graph.Edge
	inner    []*graph.Edge
}

// partition collects the propagated edges with at least one end in the
// subtree of root, split by direction.
func (r *Reflexion) partition(root *graph.Node) crossing {
	var c crossing
	for _, p := range r.full.Edges() {
		if !isPropagated(p) {
			continue
		}
		sourceIn := p.Source().IsDescendantOrSelf(root)
		targetIn := p.Target().IsDescendantOrSelf(root)
		switch {
		case sourceIn && targetIn:
			c.inner = append(c.inner, p)
		case sourceIn:
			c.outgoing = append(c.outgoing, p)
		case targetIn:
			c.incoming = append(c.incoming, p)
		}
	}
	r.logger.Debug("architecture hierarchy change",
		slog.String("subtree", root.ID()),
		slog.Int("outgoing", len(c.outgoing)),
		slog.Int("incoming", len(c.incoming)),
		slog.Int("inner", len(c.inner)),
	)
	return c
}

func (c crossing) reevaluate(r *Reflexion) error {
	for _, group := range [][]*graph.Edge{c.outgoing, c.incoming, c.inner} {
		if err := r.reevaluate(group); err != nil {
			return err
		}
	}
	return nil
}

// findRedundantLink reports a pair of specified edges that would become
// redundant if child were linked below parent.
func (r *Reflexion) findRedundantLink(child, parent *graph.Node) (*graph.Edge, *graph.Edge) {
	limit := r.full.NodeCount() + 2
	descendsOrSelf := func(n, ancestor *graph.Node) bool {
		cursor := n
		for steps := 0; cursor != nil && steps < limit; steps++ {
			if cursor == ancestor {
				return true
			}
			if cursor == child {
				cursor = parent
			} else {
				cursor = cursor.Parent()
			}
		}
		return false
	}
	covers := func(outer, inner *graph.Edge) bool {
		return descendsOrSelf(inner.Source(), outer.Source()) &&
			descendsOrSelf(inner.Target(), outer.Target()) &&
			r.options.Types.IsSubtypeOf(inner.Type(), outer.Type())
	}

	var specified []*graph.Edge
	for _, e := range r.full.Edges() {
		if e.IsSpecified() {
			specified = append(specified, e)
		}
	}
	for _, s := range specified {
		if !s.Source().IsDescendantOrSelf(child) && !s.Target().IsDescendantOrSelf(child) {
			continue
		}
		for _, t := range specified {
			if t == s {
				continue
			}
			if covers(s, t) || covers(t, s) {
				return t, s
			}
		}
	}
	return nil, nil
}
