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
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/events"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// =============================================================================
// Preconditions
// =============================================================================

// requireNode checks that n is contained and tagged with subgraph s.
func (r *Reflexion) requireNode(n *graph.Node, s graph.Subgraph) error {
	if n == nil {
		return graph.ErrNilElement
	}
	if !r.full.ContainsNode(n) || n.Subgraph() != s {
		return &NotInSubgraphError{Expected: s, Element: n}
	}
	return nil
}

// requireEdge checks that e is contained and tagged with subgraph s.
func (r *Reflexion) requireEdge(e *graph.Edge, s graph.Subgraph) error {
	if e == nil {
		return graph.ErrNilElement
	}
	if !r.full.ContainsEdge(e) || e.Subgraph() != s {
		return &NotInSubgraphError{Expected: s, Element: e}
	}
	return nil
}

// requireNewEdge checks that a caller supplied edge can be added.
func (r *Reflexion) requireNewEdge(e *graph.Edge) error {
	if e == nil || e.Source() == nil || e.Target() == nil {
		return graph.ErrNilElement
	}
	if e.Graph() != nil {
		return &AlreadyContainedError{Element: e}
	}
	if e.ID() != "" {
		if _, taken := r.full.GetEdge(e.ID()); taken {
			return &AlreadyContainedError{Element: e}
		}
	}
	return nil
}

// =============================================================================
// Mapping Helpers
// =============================================================================

// mappedSubtree returns n and every descendant that inherits its mapping
// through n, i.e. the subtree of n without explicitly mapped descendants
// and their subtrees.
func (r *Reflexion) mappedSubtree(n *graph.Node) []*graph.Node {
	result := []*graph.Node{n}
	var walk func(*graph.Node)
	walk = func(cur *graph.Node) {
		for _, c := range cur.Children() {
			if r.IsExplicitlyMapped(c) {
				continue
			}
			result = append(result, c)
			walk(c)
		}
	}
	walk(n)
	return result
}

// incidentEdges returns the implementation edges touching any node of
// nodes, each once, in discovery order.
func incidentEdges(nodes []*graph.Node) []*graph.Edge {
	seen := make(map[*graph.Edge]struct{})
	var result []*graph.Edge
	add := func(e *graph.Edge) {
		if !e.IsInImplementation() {
			return
		}
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		result = append(result, e)
	}
	for _, n := range nodes {
		for _, e := range n.Outgoings() {
			add(e)
		}
		for _, e := range n.Incomings() {
			add(e)
		}
	}
	return result
}

// changeMap assigns target as the implicit mapping of every node of
// subtree. A nil target removes the mapping.
func (r *Reflexion) changeMap(subtree []*graph.Node, target *graph.Node) {
	for _, n := range subtree {
		if target == nil {
			delete(r.implicitMapsTo, n.ID())
		} else {
			r.implicitMapsTo[n.ID()] = target
		}
	}
}

// unmapSubtree withdraws every dependency incident to subtree. It runs
// before the mapping of subtree changes.
func (r *Reflexion) unmapSubtree(subtree []*graph.Node) error {
	for _, e := range incidentEdges(subtree) {
		if err := r.unpropagate(e, true); err != nil {
			return err
		}
	}
	return nil
}

// mapSubtree propagates every dependency incident to subtree. It runs
// after the mapping of subtree changed.
func (r *Reflexion) mapSubtree(subtree []*graph.Node) error {
	for _, e := range incidentEdges(subtree) {
		if err := r.propagateAndLift(e); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Mapping Operations
// =============================================================================

// AddToMapping maps the implementation node from explicitly onto the
// architecture node to and returns the new Maps_To edge.
//
// Description:
//
//	All dependencies of the nodes that inherit their mapping through from
//	are withdrawn from their previous targets and propagated anew. With
//	override set, an existing explicit mapping of from is replaced.
//
// Outputs:
//
//	*graph.Edge - The Maps_To edge.
//	error       - NotInSubgraphError, AlreadyExplicitlyMappedError.
func (r *Reflexion) AddToMapping(from, to *graph.Node, override bool) (*graph.Edge, error) {
	edge, err := r.checkedAddToMapping(from, to, nil, override)
	return edge, recordOperation("add_to_mapping", err)
}

func (r *Reflexion) checkedAddToMapping(from, to *graph.Node, edge *graph.Edge, override bool) (*graph.Edge, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if err := r.requireNode(from, graph.SubgraphImplementation); err != nil {
		return nil, err
	}
	if err := r.requireNode(to, graph.SubgraphArchitecture); err != nil {
		return nil, err
	}
	if edge != nil {
		if err := r.requireNewEdge(edge); err != nil {
			return nil, err
		}
	}
	if current := r.ExplicitMapping(from); current != nil && !override {
		return nil, &AlreadyExplicitlyMappedError{Node: from, Target: current}
	}
	return r.addToMapping(from, to, edge)
}

func (r *Reflexion) addToMapping(from, to *graph.Node, edge *graph.Edge) (*graph.Edge, error) {
	if current := r.ExplicitMapping(from); current != nil {
		if err := r.deleteFromMapping(from, current); err != nil {
			return nil, err
		}
	}

	subtree := r.mappedSubtree(from)
	if r.MapsTo(from) != nil {
		if err := r.unmapSubtree(subtree); err != nil {
			return nil, err
		}
	}

	if edge == nil {
		edge = graph.NewEdge("", from, to, graph.MapsToType)
	}
	if err := r.full.AddEdge(edge); err != nil {
		return nil, corrupt("adding mapping %v: %v", edge, err)
	}
	r.explicitMapsTo[from.ID()] = to
	r.notify(events.NewMapsToChange(edge, events.Addition))

	r.changeMap(subtree, to)
	if err := r.mapSubtree(subtree); err != nil {
		return nil, err
	}
	return edge, nil
}

// DeleteFromMapping removes the explicit mapping of from onto to. The
// nodes that inherited their mapping through from fall back to the
// mapping of the parent of from, if any.
//
// Outputs:
//
//	error - NotInSubgraphError, NotExplicitlyMappedError.
func (r *Reflexion) DeleteFromMapping(from, to *graph.Node) error {
	return recordOperation("delete_from_mapping", r.checkedDeleteFromMapping(from, to))
}

func (r *Reflexion) checkedDeleteFromMapping(from, to *graph.Node) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireNode(from, graph.SubgraphImplementation); err != nil {
		return err
	}
	if err := r.requireNode(to, graph.SubgraphArchitecture); err != nil {
		return err
	}
	if r.ExplicitMapping(from) != to {
		return &NotExplicitlyMappedError{Node: from, Target: to}
	}
	return r.deleteFromMapping(from, to)
}

func (r *Reflexion) deleteFromMapping(from, to *graph.Node) error {
	subtree := r.mappedSubtree(from)
	if err := r.unmapSubtree(subtree); err != nil {
		return err
	}
	delete(r.explicitMapsTo, from.ID())
	for _, m := range r.full.FromTo(from, to, graph.MapsToType) {
		r.notify(events.NewMapsToChange(m, events.Removal))
		if err := r.full.RemoveEdge(m); err != nil {
			return corrupt("removing mapping %v: %v", m, err)
		}
	}

	var inherited *graph.Node
	if parent := from.Parent(); parent != nil {
		inherited = r.MapsTo(parent)
	}
	r.changeMap(subtree, inherited)
	if inherited == nil {
		return nil
	}
	return r.mapSubtree(subtree)
}
