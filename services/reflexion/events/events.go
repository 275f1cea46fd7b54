// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events defines the change notifications emitted by the reflexion
// analysis and the synchronous bus that delivers them.
//
// Every atomic change made by the analysis is reported as a ChangeEvent:
// state transitions of edges, the lifecycle of propagated edges, additions
// and removals of nodes, edges and mappings, and hierarchy changes. Events
// carry ID snapshots in addition to the element pointers, so an observer can
// rebuild its own view of the analysis without touching the graph (see
// Replayer).
//
// # Delivery
//
// Observable.Notify calls every subscriber synchronously, in subscription
// order, in the goroutine that caused the change. Nothing is buffered.
//
// # Thread Safety
//
// The subscription list is guarded by a mutex. Delivery itself runs in the
// caller's goroutine, which for the reflexion engine is the single goroutine
// that owns the graph.
package events

import (
	"fmt"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// ChangeType distinguishes additions from removals.
type ChangeType int

const (
	// Addition means an element was added.
	Addition ChangeType = iota

	// Removal means an element was removed.
	Removal
)

// String returns "addition" or "removal".
func (c ChangeType) String() string {
	if c == Removal {
		return "removal"
	}
	return "addition"
}

// EventKind identifies the concrete ChangeEvent variant.
type EventKind int

const (
	KindEdgeChange EventKind = iota
	KindPropagatedEdge
	KindEdge
	KindNode
	KindMapsTo
	KindHierarchy
)

var kindNames = map[EventKind]string{
	KindEdgeChange:     "edge_change",
	KindPropagatedEdge: "propagated_edge",
	KindEdge:           "edge",
	KindNode:           "node",
	KindMapsTo:         "maps_to",
	KindHierarchy:      "hierarchy",
}

// String returns the snake_case name of the kind.
func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ChangeEvent is a single atomic change of the reflexion graph.
type ChangeEvent interface {
	// Kind identifies the variant.
	Kind() EventKind

	// Affected names the subgraph the change happened in.
	Affected() graph.Subgraph

	String() string
}

// =============================================================================
// Edge State Transition
// =============================================================================

// EdgeChange reports a state transition of an edge.
type EdgeChange struct {
	Edge     *graph.Edge
	EdgeID   string
	OldState graph.State
	NewState graph.State
}

// NewEdgeChange creates an EdgeChange.
func NewEdgeChange(e *graph.Edge, oldState, newState graph.State) *EdgeChange {
	return &EdgeChange{Edge: e, EdgeID: e.ID(), OldState: oldState, NewState: newState}
}

func (e *EdgeChange) Kind() EventKind { return KindEdgeChange }

func (e *EdgeChange) Affected() graph.Subgraph { return e.Edge.Subgraph() }

func (e *EdgeChange) String() string {
	return fmt.Sprintf("EdgeChange(%s: %s -> %s)", e.EdgeID, e.OldState, e.NewState)
}

// =============================================================================
// Propagated Edge Lifecycle
// =============================================================================

// PropagatedEdgeEvent reports that a propagated architecture edge came into
// existence or was removed because its counter dropped to zero.
type PropagatedEdgeEvent struct {
	Edge     *graph.Edge
	EdgeID   string
	SourceID string
	TargetID string
	Type     string
	Change   ChangeType
}

// NewPropagatedEdgeEvent creates a PropagatedEdgeEvent.
func NewPropagatedEdgeEvent(e *graph.Edge, change ChangeType) *PropagatedEdgeEvent {
	return &PropagatedEdgeEvent{
		Edge:     e,
		EdgeID:   e.ID(),
		SourceID: e.Source().ID(),
		TargetID: e.Target().ID(),
		Type:     e.Type(),
		Change:   change,
	}
}

func (e *PropagatedEdgeEvent) Kind() EventKind { return KindPropagatedEdge }

func (e *PropagatedEdgeEvent) Affected() graph.Subgraph { return graph.SubgraphArchitecture }

func (e *PropagatedEdgeEvent) String() string {
	return fmt.Sprintf("PropagatedEdge(%s %s -%s-> %s, %s)", e.EdgeID, e.SourceID, e.Type, e.TargetID, e.Change)
}

// =============================================================================
// Structural Changes
// =============================================================================

// EdgeEvent reports the addition or removal of an implementation or
// specified architecture edge.
type EdgeEvent struct {
	Edge     *graph.Edge
	EdgeID   string
	SourceID string
	TargetID string
	Type     string
	Change   ChangeType
	Subgraph graph.Subgraph
}

// NewEdgeEvent creates an EdgeEvent.
func NewEdgeEvent(e *graph.Edge, change ChangeType, subgraph graph.Subgraph) *EdgeEvent {
	return &EdgeEvent{
		Edge:     e,
		EdgeID:   e.ID(),
		SourceID: e.Source().ID(),
		TargetID: e.Target().ID(),
		Type:     e.Type(),
		Change:   change,
		Subgraph: subgraph,
	}
}

func (e *EdgeEvent) Kind() EventKind { return KindEdge }

func (e *EdgeEvent) Affected() graph.Subgraph { return e.Subgraph }

func (e *EdgeEvent) String() string {
	return fmt.Sprintf("EdgeEvent(%s %s -%s-> %s, %s in %s)", e.EdgeID, e.SourceID, e.Type, e.TargetID, e.Change, e.Subgraph)
}

// NodeEvent reports the addition or removal of a node.
type NodeEvent struct {
	Node     *graph.Node
	NodeID   string
	Type     string
	Change   ChangeType
	Subgraph graph.Subgraph
}

// NewNodeEvent creates a NodeEvent.
func NewNodeEvent(n *graph.Node, change ChangeType, subgraph graph.Subgraph) *NodeEvent {
	return &NodeEvent{Node: n, NodeID: n.ID(), Type: n.Type(), Change: change, Subgraph: subgraph}
}

func (e *NodeEvent) Kind() EventKind { return KindNode }

func (e *NodeEvent) Affected() graph.Subgraph { return e.Subgraph }

func (e *NodeEvent) String() string {
	return fmt.Sprintf("NodeEvent(%s, %s in %s)", e.NodeID, e.Change, e.Subgraph)
}

// MapsToChange reports that an explicit mapping was added or removed.
type MapsToChange struct {
	Edge     *graph.Edge
	EdgeID   string
	SourceID string
	TargetID string
	Change   ChangeType
}

// NewMapsToChange creates a MapsToChange for the given Maps_To edge.
func NewMapsToChange(e *graph.Edge, change ChangeType) *MapsToChange {
	return &MapsToChange{
		Edge:     e,
		EdgeID:   e.ID(),
		SourceID: e.Source().ID(),
		TargetID: e.Target().ID(),
		Change:   change,
	}
}

func (e *MapsToChange) Kind() EventKind { return KindMapsTo }

func (e *MapsToChange) Affected() graph.Subgraph { return graph.SubgraphMapping }

func (e *MapsToChange) String() string {
	return fmt.Sprintf("MapsToChange(%s -> %s, %s)", e.SourceID, e.TargetID, e.Change)
}

// HierarchyChangeEvent reports a parent/child link that was created or cut.
type HierarchyChangeEvent struct {
	ParentID string
	ChildID  string
	Change   ChangeType
	Subgraph graph.Subgraph
}

// NewHierarchyChangeEvent creates a HierarchyChangeEvent.
func NewHierarchyChangeEvent(parent, child *graph.Node, change ChangeType, subgraph graph.Subgraph) *HierarchyChangeEvent {
	return &HierarchyChangeEvent{ParentID: parent.ID(), ChildID: child.ID(), Change: change, Subgraph: subgraph}
}

func (e *HierarchyChangeEvent) Kind() EventKind { return KindHierarchy }

func (e *HierarchyChangeEvent) Affected() graph.Subgraph { return e.Subgraph }

func (e *HierarchyChangeEvent) String() string {
	return fmt.Sprintf("HierarchyChange(%s > %s, %s in %s)", e.ParentID, e.ChildID, e.Change, e.Subgraph)
}
