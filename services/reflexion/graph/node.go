// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"math"
	"slices"
)

// Node is a vertex of a Graph.
//
// Description:
//
//	A node has an immutable ID and type, named attributes, a subgraph tag,
//	at most one parent and an ordered list of children. Incident edges are
//	kept in insertion order so that traversals are deterministic.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Node struct {
	Attributes

	id       string
	nodeType string
	subgraph Subgraph

	parent   *Node
	children []*Node

	outgoing []*Edge
	incoming []*Edge

	graph *Graph
}

// NewNode creates a detached node.
func NewNode(id, nodeType string) *Node {
	return &Node{id: id, nodeType: nodeType}
}

// ID returns the unique node ID.
func (n *Node) ID() string { return n.id }

// Type returns the node type.
func (n *Node) Type() string { return n.nodeType }

// Graph returns the graph the node belongs to, or nil.
func (n *Node) Graph() *Graph { return n.graph }

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "<nil node>"
	}
	return fmt.Sprintf("%s[%s]", n.id, n.nodeType)
}

// Subgraph returns the subgraph tag of the node.
func (n *Node) Subgraph() Subgraph { return n.subgraph }

// SetSubgraph tags the node. A node is in at most one of implementation and
// architecture; tagging it replaces the previous tag. Nodes can never be
// tagged as mapping.
func (n *Node) SetSubgraph(s Subgraph) error {
	switch s {
	case SubgraphNone, SubgraphImplementation, SubgraphArchitecture:
		n.subgraph = s
		return nil
	default:
		return fmt.Errorf("%w: %s on node %s", ErrInvalidSubgraph, s, n.id)
	}
}

// IsInImplementation reports whether n is tagged as implementation.
func (n *Node) IsInImplementation() bool { return n.subgraph == SubgraphImplementation }

// IsInArchitecture reports whether n is tagged as architecture.
func (n *Node) IsInArchitecture() bool { return n.subgraph == SubgraphArchitecture }

// =============================================================================
// Edges
// =============================================================================

// Outgoings returns a copy of the outgoing edges in insertion order.
func (n *Node) Outgoings() []*Edge { return slices.Clone(n.outgoing) }

// Incomings returns a copy of the incoming edges in insertion order.
func (n *Node) Incomings() []*Edge { return slices.Clone(n.incoming) }

// OutDegree returns the number of outgoing edges.
func (n *Node) OutDegree() int { return len(n.outgoing) }

// InDegree returns the number of incoming edges.
func (n *Node) InDegree() int { return len(n.incoming) }

// =============================================================================
// Hierarchy
// =============================================================================

// Parent returns the parent node or nil for roots.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the children in insertion order.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// NumChildren returns the number of children.
func (n *Node) NumChildren() int { return len(n.children) }

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// AddChild makes child a child of n.
//
// Description:
//
//	The child must be an orphan and must not be n or one of its ascendants.
//	Both nodes must belong to the same graph, or both be detached.
//
// Outputs:
//
//	error - ErrNotAnOrphan, ErrCyclicHierarchy or ErrForeignNode.
func (n *Node) AddChild(child *Node) error {
	if n == nil || child == nil {
		return ErrNilElement
	}
	if n.graph != child.graph {
		return fmt.Errorf("%w: %s and %s", ErrForeignNode, n.id, child.id)
	}
	if child.parent != nil {
		return fmt.Errorf("%w: %s is a child of %s", ErrNotAnOrphan, child.id, child.parent.id)
	}
	if n.IsDescendantOf(child) || n == child {
		return fmt.Errorf("%w: %s below %s", ErrCyclicHierarchy, child.id, n.id)
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// Unparent detaches n from its parent. It is a no-op for roots.
func (n *Node) Unparent() {
	if n.parent == nil {
		return
	}
	p := n.parent
	p.children = slices.DeleteFunc(p.children, func(c *Node) bool { return c == n })
	n.parent = nil
}

// Reparent moves n below newParent. A nil parent makes n a root.
func (n *Node) Reparent(newParent *Node) error {
	if newParent == nil {
		n.Unparent()
		return nil
	}
	if newParent == n || newParent.IsDescendantOf(n) {
		return fmt.Errorf("%w: %s below %s", ErrCyclicHierarchy, n.id, newParent.id)
	}
	if newParent.graph != n.graph {
		return fmt.Errorf("%w: %s and %s", ErrForeignNode, newParent.id, n.id)
	}
	n.Unparent()
	n.parent = newParent
	newParent.children = append(newParent.children, n)
	return nil
}

// ascendantLimit bounds hierarchy walks so a corrupted hierarchy can never
// loop forever.
func (n *Node) ascendantLimit() int {
	if n.graph != nil {
		return len(n.graph.nodes) + 1
	}
	return math.MaxInt
}

// Ascendants returns n followed by its parent, grandparent and so on up to
// the root.
func (n *Node) Ascendants() []*Node {
	var result []*Node
	limit := n.ascendantLimit()
	for cursor := n; cursor != nil && len(result) < limit; cursor = cursor.parent {
		result = append(result, cursor)
	}
	return result
}

// IsDescendantOf reports whether n is a proper descendant of ancestor.
func (n *Node) IsDescendantOf(ancestor *Node) bool {
	if n == nil || ancestor == nil {
		return false
	}
	limit := n.ascendantLimit()
	steps := 0
	for cursor := n.parent; cursor != nil && steps < limit; cursor = cursor.parent {
		if cursor == ancestor {
			return true
		}
		steps++
	}
	return false
}

// IsDescendantOrSelf reports whether n is ancestor or one of its descendants.
func (n *Node) IsDescendantOrSelf(ancestor *Node) bool {
	return n == ancestor || n.IsDescendantOf(ancestor)
}

// Descendants returns the subtree rooted at n in post-order; n comes last.
func (n *Node) Descendants() []*Node {
	var result []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.children {
			walk(c)
		}
		result = append(result, cur)
	}
	walk(n)
	return result
}

// Level returns the depth of n; roots have level 0.
func (n *Node) Level() int {
	return len(n.Ascendants()) - 1
}
