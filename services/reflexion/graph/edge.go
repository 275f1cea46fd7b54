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

import "fmt"

// Edge is a directed, typed connection between two nodes.
//
// Description:
//
//	Source, target, type and ID are fixed at construction. An empty ID is
//	replaced by a generated UUID when the edge is added to a graph. The
//	reflexion state and counter are typed fields rather than attributes.
type Edge struct {
	Attributes

	id       string
	edgeType string
	source   *Node
	target   *Node
	subgraph Subgraph

	state   State
	counter int

	graph *Graph
}

// NewEdge creates a detached edge. Pass an empty id to have one generated.
func NewEdge(id string, source, target *Node, edgeType string) *Edge {
	return &Edge{id: id, source: source, target: target, edgeType: edgeType}
}

// ID returns the edge ID.
func (e *Edge) ID() string { return e.id }

// Type returns the edge type.
func (e *Edge) Type() string { return e.edgeType }

// Source returns the source node.
func (e *Edge) Source() *Node { return e.source }

// Target returns the target node.
func (e *Edge) Target() *Node { return e.target }

// Graph returns the graph the edge belongs to, or nil.
func (e *Edge) Graph() *Graph { return e.graph }

// IsMapsTo reports whether the edge is a mapping edge.
func (e *Edge) IsMapsTo() bool { return e.edgeType == MapsToType }

// String implements fmt.Stringer.
func (e *Edge) String() string {
	if e == nil {
		return "<nil edge>"
	}
	return fmt.Sprintf("%s(%s -%s-> %s)", e.id, e.source.ID(), e.edgeType, e.target.ID())
}

// Subgraph returns the tag of the edge. Maps_To edges are always mapping.
func (e *Edge) Subgraph() Subgraph {
	if e.IsMapsTo() {
		return SubgraphMapping
	}
	return e.subgraph
}

// SetSubgraph tags the edge as implementation or architecture. The mapping
// tag is derived from the type, so Maps_To edges reject every tag.
func (e *Edge) SetSubgraph(s Subgraph) error {
	if e.IsMapsTo() {
		return fmt.Errorf("%w: mapping edge %s cannot be retagged", ErrInvalidSubgraph, e.id)
	}
	switch s {
	case SubgraphNone, SubgraphImplementation, SubgraphArchitecture:
		e.subgraph = s
		return nil
	default:
		return fmt.Errorf("%w: %s on edge %s", ErrInvalidSubgraph, s, e.id)
	}
}

// IsInImplementation reports whether e is tagged as implementation.
func (e *Edge) IsInImplementation() bool { return e.Subgraph() == SubgraphImplementation }

// IsInArchitecture reports whether e is tagged as architecture.
func (e *Edge) IsInArchitecture() bool { return e.Subgraph() == SubgraphArchitecture }

// State returns the reflexion state.
func (e *Edge) State() State { return e.state }

// SetState overwrites the reflexion state. Reserved for the reflexion engine.
func (e *Edge) SetState(s State) { e.state = s }

// Counter returns the number of dependencies propagated onto the edge.
func (e *Edge) Counter() int { return e.counter }

// SetCounter overwrites the counter. Reserved for the reflexion engine.
func (e *Edge) SetCounter(c int) { e.counter = c }

// IsSpecified reports whether the edge is a specified architecture edge.
func (e *Edge) IsSpecified() bool {
	return e.IsInArchitecture() && IsSpecifiedState(e.state)
}
