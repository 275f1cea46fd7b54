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

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/events"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// =============================================================================
// Nodes
// =============================================================================

// AddNodeToImplementation adds a detached node to the implementation. The
// node is unmapped until it is mapped or linked below a mapped parent.
func (r *Reflexion) AddNodeToImplementation(n *graph.Node) error {
	return recordOperation("add_node_to_implementation", r.addNode(n, graph.SubgraphImplementation))
}

// AddNodeToArchitecture adds a detached node to the architecture.
func (r *Reflexion) AddNodeToArchitecture(n *graph.Node) error {
	return recordOperation("add_node_to_architecture", r.addNode(n, graph.SubgraphArchitecture))
}

func (r *Reflexion) addNode(n *graph.Node, s graph.Subgraph) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if n == nil {
		return graph.ErrNilElement
	}
	if n.Graph() != nil {
		return &AlreadyContainedError{Element: n}
	}
	if _, taken := r.full.GetNode(n.ID()); taken {
		return &AlreadyContainedError{Element: n}
	}
	if n.Parent() != nil || n.NumChildren() > 0 {
		return &NotAnOrphanError{Node: n}
	}
	if err := r.full.AddNode(n); err != nil {
		return err
	}
	if err := n.SetSubgraph(s); err != nil {
		return corrupt("tagging %v: %v", n, err)
	}
	r.notify(events.NewNodeEvent(n, events.Addition, s))
	return nil
}

// DeleteFromImplementation removes an implementation node.
//
// Description:
//
//	Incident dependencies are deleted and the explicit mapping of the node
//	is removed first. The children of the node are moved to its parent
//	unless orphansBecomeRoots is set, in which case they become roots.
func (r *Reflexion) DeleteFromImplementation(n *graph.Node, orphansBecomeRoots bool) error {
	return recordOperation("delete_from_implementation", r.checkedDeleteFromImplementation(n, orphansBecomeRoots))
}

func (r *Reflexion) checkedDeleteFromImplementation(n *graph.Node, orphansBecomeRoots bool) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireNode(n, graph.SubgraphImplementation); err != nil {
		return err
	}
	return r.deleteFromImplementation(n, orphansBecomeRoots)
}

func (r *Reflexion) deleteFromImplementation(n *graph.Node, orphansBecomeRoots bool) error {
	for _, e := range incidentEdges([]*graph.Node{n}) {
		if err := r.deleteEdgeFromImplementation(e); err != nil {
			return err
		}
	}

	children := n.Children()
	for _, c := range children {
		if err := r.unparentInImplementation(c); err != nil {
			return err
		}
	}
	if target := r.ExplicitMapping(n); target != nil {
		if err := r.deleteFromMapping(n, target); err != nil {
			return err
		}
	}

	parent := n.Parent()
	if parent != nil {
		if err := r.unparentInImplementation(n); err != nil {
			return err
		}
		if !orphansBecomeRoots {
			for _, c := range children {
				if err := r.addChildInImplementation(c, parent); err != nil {
					return err
				}
			}
		}
	}

	r.notify(events.NewNodeEvent(n, events.Removal, graph.SubgraphImplementation))
	if err := r.full.RemoveNode(n); err != nil {
		return corrupt("removing %v: %v", n, err)
	}
	return nil
}

// =============================================================================
// Dependencies
// =============================================================================

// AddEdgeToImplementation adds a dependency of the given type and
// propagates it right away.
//
// Outputs:
//
//	*graph.Edge - The new implementation edge.
//	error       - NotInSubgraphError, or ErrNotSupported for Maps_To.
func (r *Reflexion) AddEdgeToImplementation(from, to *graph.Node, edgeType string) (*graph.Edge, error) {
	e, err := r.checkedAddEdgeToImplementation(graph.NewEdge("", from, to, edgeType))
	return e, recordOperation("add_edge_to_implementation", err)
}

func (r *Reflexion) checkedAddEdgeToImplementation(e *graph.Edge) (*graph.Edge, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if err := r.requireNewEdge(e); err != nil {
		return nil, err
	}
	if err := r.requireNode(e.Source(), graph.SubgraphImplementation); err != nil {
		return nil, err
	}
	if err := r.requireNode(e.Target(), graph.SubgraphImplementation); err != nil {
		return nil, err
	}
	if e.IsMapsTo() {
		return nil, fmt.Errorf("%w: Maps_To edge inside the implementation", ErrNotSupported)
	}

	if err := r.full.AddEdge(e); err != nil {
		return nil, err
	}
	if err := e.SetSubgraph(graph.SubgraphImplementation); err != nil {
		return nil, corrupt("tagging %v: %v", e, err)
	}
	r.notify(events.NewEdgeEvent(e, events.Addition, graph.SubgraphImplementation))
	if err := r.propagateAndLift(e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEdgeFromImplementation withdraws and removes a dependency.
func (r *Reflexion) DeleteEdgeFromImplementation(e *graph.Edge) error {
	return recordOperation("delete_edge_from_implementation", r.checkedDeleteEdgeFromImplementation(e))
}

func (r *Reflexion) checkedDeleteEdgeFromImplementation(e *graph.Edge) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireEdge(e, graph.SubgraphImplementation); err != nil {
		return err
	}
	return r.deleteEdgeFromImplementation(e)
}

func (r *Reflexion) deleteEdgeFromImplementation(e *graph.Edge) error {
	if err := r.unpropagate(e, false); err != nil {
		return err
	}
	r.notify(events.NewEdgeEvent(e, events.Removal, graph.SubgraphImplementation))
	if err := r.full.RemoveEdge(e); err != nil {
		return corrupt("removing %v: %v", e, err)
	}
	return nil
}

// =============================================================================
// Hierarchy
// =============================================================================

// AddChildInImplementation links child below parent. When child is not
// explicitly mapped, it and the nodes inheriting through it take over the
// mapping of parent.
//
// Outputs:
//
//	error - NotInSubgraphError, NotAnOrphanError, CyclicHierarchyError.
func (r *Reflexion) AddChildInImplementation(child, parent *graph.Node) error {
	return recordOperation("add_child_in_implementation", r.checkedAddChildInImplementation(child, parent))
}

func (r *Reflexion) checkedAddChildInImplementation(child, parent *graph.Node) error {
	if err := r.checkLink(child, parent, graph.SubgraphImplementation); err != nil {
		return err
	}
	return r.addChildInImplementation(child, parent)
}

// checkLink validates a hierarchy link in subgraph s.
func (r *Reflexion) checkLink(child, parent *graph.Node, s graph.Subgraph) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireNode(child, s); err != nil {
		return err
	}
	if err := r.requireNode(parent, s); err != nil {
		return err
	}
	if child.Parent() != nil {
		return &NotAnOrphanError{Node: child}
	}
	if parent == child || parent.IsDescendantOf(child) {
		return &CyclicHierarchyError{Child: child, Parent: parent}
	}
	return nil
}

func (r *Reflexion) addChildInImplementation(child, parent *graph.Node) error {
	if err := parent.AddChild(child); err != nil {
		return corrupt("linking %v below %v: %v", child, parent, err)
	}
	r.notify(events.NewHierarchyChangeEvent(parent, child, events.Addition, graph.SubgraphImplementation))

	target := r.MapsTo(parent)
	if r.IsExplicitlyMapped(child) || target == nil {
		return nil
	}
	subtree := r.mappedSubtree(child)
	r.changeMap(subtree, target)
	return r.mapSubtree(subtree)
}

// UnparentInImplementation detaches child from its parent. A child that
// was only implicitly mapped becomes unmapped together with the nodes
// inheriting through it.
//
// Outputs:
//
//	error - NotInSubgraphError, IsAnOrphanError.
func (r *Reflexion) UnparentInImplementation(child *graph.Node) error {
	return recordOperation("unparent_in_implementation", r.checkedUnparentInImplementation(child))
}

func (r *Reflexion) checkedUnparentInImplementation(child *graph.Node) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.requireNode(child, graph.SubgraphImplementation); err != nil {
		return err
	}
	if child.Parent() == nil {
		return &IsAnOrphanError{Node: child}
	}
	return r.unparentInImplementation(child)
}

func (r *Reflexion) unparentInImplementation(child *graph.Node) error {
	if !r.IsExplicitlyMapped(child) && r.MapsTo(child) != nil {
		subtree := r.mappedSubtree(child)
		if err := r.unmapSubtree(subtree); err != nil {
			return err
		}
		r.changeMap(subtree, nil)
	}
	r.notify(events.NewHierarchyChangeEvent(child.Parent(), child, events.Removal, graph.SubgraphImplementation))
	child.Unparent()
	return nil
}
