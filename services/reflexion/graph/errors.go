// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the attributed, hierarchical graph model used by the
// reflexion analysis.
//
// A Graph holds nodes and edges identified by unique string IDs. Every element
// carries a type, named attributes (string, int, float and toggles) and a
// subgraph tag marking it as part of the implementation or the architecture.
// Edges of type MapsToType always belong to the mapping subgraph. Nodes form a
// strict tree: each node has at most one parent and the hierarchy never
// contains a cycle.
//
// # Ownership Model
//
// Nodes and edges are owned by at most one graph. Adding an element that is
// already part of a graph fails. Copy and SubgraphBy produce independent
// elements with the same IDs, so results of one graph can be correlated with
// another by ID.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use. Callers that share a graph between
// goroutines must serialize access or work on copies.
//
// # Edge State
//
// The State and Counter fields on edges are owned by the reflexion engine.
// SetState and SetCounter are exported for that engine only; other code must
// treat them as read-only.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNilElement is returned when a nil node or edge is passed.
	ErrNilElement = errors.New("nil graph element")

	// ErrNodeNotFound is returned when a node is not contained in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when an edge is not contained in the graph.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrDuplicateNode is returned when a node ID is already taken.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrDuplicateEdge is returned when an edge ID is already taken.
	ErrDuplicateEdge = errors.New("duplicate edge ID")

	// ErrForeignNode is returned when an edge references a node of another graph.
	ErrForeignNode = errors.New("edge endpoint is not part of this graph")

	// ErrAlreadyOwned is returned when an element already belongs to a graph.
	ErrAlreadyOwned = errors.New("element already belongs to a graph")

	// ErrCyclicHierarchy is returned when a hierarchy change would create a cycle.
	ErrCyclicHierarchy = errors.New("hierarchy change would create a cycle")

	// ErrNotAnOrphan is returned when a node that must be a root has a parent.
	ErrNotAnOrphan = errors.New("node already has a parent")

	// ErrIsAnOrphan is returned when a node that must have a parent has none.
	ErrIsAnOrphan = errors.New("node has no parent")

	// ErrInvalidSubgraph is returned for subgraph tags that cannot be set.
	ErrInvalidSubgraph = errors.New("invalid subgraph tag")

	// ErrTypeCycle is returned when a type declaration would make the type
	// hierarchy cyclic.
	ErrTypeCycle = errors.New("type hierarchy would become cyclic")
)
