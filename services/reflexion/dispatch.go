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

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// =============================================================================
// Subgraph Resolution
// =============================================================================

// DetermineSubgraph returns the subgraph an element belongs to.
//
// Description:
//
//	A node uses its own tag, falling back to the nearest tagged ascendant.
//	A Maps_To edge belongs to the mapping. Any other edge uses its tag,
//	falling back to the common subgraph of its endpoints.
//
// Inputs:
//
//	element - A *graph.Node or *graph.Edge.
//
// Outputs:
//
//	graph.Subgraph - The subgraph.
//	error          - ErrNotSupported when the subgraph cannot be decided.
func DetermineSubgraph(element any) (graph.Subgraph, error) {
	switch el := element.(type) {
	case *graph.Node:
		if el == nil {
			return graph.SubgraphNone, graph.ErrNilElement
		}
		for _, a := range el.Ascendants() {
			if s := a.Subgraph(); s != graph.SubgraphNone {
				return s, nil
			}
		}
		return graph.SubgraphNone, fmt.Errorf("%w: %v has no subgraph", ErrNotSupported, el)
	case *graph.Edge:
		if el == nil {
			return graph.SubgraphNone, graph.ErrNilElement
		}
		if s := el.Subgraph(); s != graph.SubgraphNone {
			return s, nil
		}
		source, err := DetermineSubgraph(el.Source())
		if err != nil {
			return graph.SubgraphNone, err
		}
		target, err := DetermineSubgraph(el.Target())
		if err != nil {
			return graph.SubgraphNone, err
		}
		if source != target {
			return graph.SubgraphNone, fmt.Errorf("%w: %v connects the %s and the %s", ErrNotSupported, el, source, target)
		}
		return source, nil
	default:
		return graph.SubgraphNone, fmt.Errorf("%w: %T is not a graph element", ErrNotSupported, element)
	}
}

// =============================================================================
// Generic Operations
// =============================================================================

// AddNode adds a tagged, detached node. After Run it is routed to
// AddNodeToImplementation or AddNodeToArchitecture.
func (rg *ReflexionGraph) AddNode(n *graph.Node) error {
	s, err := DetermineSubgraph(n)
	if err != nil {
		return recordOperation("add_node", err)
	}
	if !rg.initialized {
		return recordOperation("add_node", rg.passThrough(func() error { return rg.full.AddNode(n) }))
	}
	switch s {
	case graph.SubgraphImplementation:
		return rg.AddNodeToImplementation(n)
	case graph.SubgraphArchitecture:
		return rg.AddNodeToArchitecture(n)
	default:
		return recordOperation("add_node", fmt.Errorf("%w: node in the %s", ErrNotSupported, s))
	}
}

// Add connects from and to with a new edge of the given type. An empty type
// from the implementation to the architecture creates a Maps_To edge.
func (rg *ReflexionGraph) Add(from, to *graph.Node, edgeType string) (*graph.Edge, error) {
	if from == nil || to == nil {
		return nil, recordOperation("add_edge", graph.ErrNilElement)
	}
	if edgeType == "" && from.IsInImplementation() && to.IsInArchitecture() {
		edgeType = graph.MapsToType
	}
	e := graph.NewEdge("", from, to, edgeType)
	if err := rg.AddEdge(e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddEdge adds a detached edge between contained nodes.
//
// Description:
//
//	Before Run the edge is added and tagged as is. Afterwards Maps_To
//	edges go to AddToMapping and all others to the edge operation of their
//	subgraph. Edges between implementation and architecture that are not
//	Maps_To, and edges from the architecture to the implementation, are
//	not supported.
func (rg *ReflexionGraph) AddEdge(e *graph.Edge) error {
	return recordOperation("add_edge", rg.addEdge(e))
}

func (rg *ReflexionGraph) addEdge(e *graph.Edge) error {
	if e == nil || e.Source() == nil || e.Target() == nil {
		return graph.ErrNilElement
	}
	source, err := DetermineSubgraph(e.Source())
	if err != nil {
		return err
	}
	target, err := DetermineSubgraph(e.Target())
	if err != nil {
		return err
	}

	var s graph.Subgraph
	switch {
	case e.IsMapsTo():
		if source != graph.SubgraphImplementation || target != graph.SubgraphArchitecture {
			return fmt.Errorf("%w: Maps_To from the %s to the %s", ErrNotSupported, source, target)
		}
		s = graph.SubgraphMapping
	case source == target:
		s = source
	default:
		return fmt.Errorf("%w: %s edge from the %s to the %s", ErrNotSupported, e.Type(), source, target)
	}

	if !rg.initialized {
		return rg.passThrough(func() error {
			if err := rg.full.AddEdge(e); err != nil {
				return err
			}
			if s == graph.SubgraphMapping {
				return nil
			}
			return e.SetSubgraph(s)
		})
	}
	switch s {
	case graph.SubgraphImplementation:
		_, err = rg.checkedAddEdgeToImplementation(e)
	case graph.SubgraphArchitecture:
		_, err = rg.checkedAddEdgeToArchitecture(e)
	default:
		_, err = rg.checkedAddToMapping(e.Source(), e.Target(), e, false)
	}
	return err
}

// RemoveNode removes a node. After Run it is routed to
// DeleteFromImplementation or DeleteFromArchitecture.
func (rg *ReflexionGraph) RemoveNode(n *graph.Node, orphansBecomeRoots bool) error {
	s, err := DetermineSubgraph(n)
	if err != nil {
		return recordOperation("remove_node", err)
	}
	if !rg.initialized {
		return recordOperation("remove_node", rg.passThrough(func() error { return rg.full.RemoveNode(n) }))
	}
	switch s {
	case graph.SubgraphImplementation:
		return rg.DeleteFromImplementation(n, orphansBecomeRoots)
	case graph.SubgraphArchitecture:
		return rg.DeleteFromArchitecture(n, orphansBecomeRoots)
	default:
		return recordOperation("remove_node", fmt.Errorf("%w: node in the %s", ErrNotSupported, s))
	}
}

// RemoveEdge removes an edge. Propagated edges are owned by the analysis
// and cannot be removed.
func (rg *ReflexionGraph) RemoveEdge(e *graph.Edge) error {
	s, err := DetermineSubgraph(e)
	if err != nil {
		return recordOperation("remove_edge", err)
	}
	if !rg.initialized {
		return recordOperation("remove_edge", rg.passThrough(func() error { return rg.full.RemoveEdge(e) }))
	}
	switch {
	case s == graph.SubgraphMapping:
		return rg.DeleteFromMapping(e.Source(), e.Target())
	case s == graph.SubgraphImplementation:
		return rg.DeleteEdgeFromImplementation(e)
	case isPropagated(e):
		return recordOperation("remove_edge", fmt.Errorf("%w: %v is a propagated edge", ErrNotSupported, e))
	default:
		return rg.DeleteEdgeFromArchitecture(e)
	}
}

// AddChild links child below parent within one subgraph.
func (rg *ReflexionGraph) AddChild(child, parent *graph.Node) error {
	s, err := rg.sameSubgraph(child, parent)
	if err != nil {
		return recordOperation("add_child", err)
	}
	if !rg.initialized {
		return recordOperation("add_child", rg.passThrough(func() error { return parent.AddChild(child) }))
	}
	if s == graph.SubgraphImplementation {
		return rg.AddChildInImplementation(child, parent)
	}
	return rg.AddChildInArchitecture(child, parent)
}

// Unparent detaches child from its parent.
func (rg *ReflexionGraph) Unparent(child *graph.Node) error {
	s, err := DetermineSubgraph(child)
	if err != nil {
		return recordOperation("unparent", err)
	}
	if !rg.initialized {
		return recordOperation("unparent", rg.passThrough(func() error {
			child.Unparent()
			return nil
		}))
	}
	if s == graph.SubgraphImplementation {
		return rg.UnparentInImplementation(child)
	}
	return rg.UnparentInArchitecture(child)
}

func (rg *ReflexionGraph) sameSubgraph(child, parent *graph.Node) (graph.Subgraph, error) {
	cs, err := DetermineSubgraph(child)
	if err != nil {
		return graph.SubgraphNone, err
	}
	ps, err := DetermineSubgraph(parent)
	if err != nil {
		return graph.SubgraphNone, err
	}
	if cs != ps {
		return graph.SubgraphNone, fmt.Errorf("%w: hierarchy between the %s and the %s", ErrNotSupported, cs, ps)
	}
	return cs, nil
}

// passThrough runs a plain graph mutation before initialization.
func (rg *ReflexionGraph) passThrough(mutate func() error) error {
	if rg.obs.Notifying() {
		return ErrReentrantMutation
	}
	return mutate()
}
