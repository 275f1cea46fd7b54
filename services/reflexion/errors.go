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
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// Sentinel errors.
var (
	// ErrArchitectureAnalysis matches every typed precondition or invariant
	// error below through errors.Is.
	ErrArchitectureAnalysis = errors.New("architecture analysis error")

	// ErrNotSupported is returned for operations the engine cannot route,
	// such as an architecture to implementation edge.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNotInitialized is returned by incremental operations before Run.
	ErrNotInitialized = errors.New("reflexion analysis not initialized")

	// ErrReentrantMutation is returned when an observer tries to mutate the
	// graph while a change is being delivered.
	ErrReentrantMutation = errors.New("mutation from within a change observer")

	// ErrNodeIDOverlap is returned when implementation and architecture
	// share a node ID.
	ErrNodeIDOverlap = errors.New("implementation and architecture node IDs overlap")
)

// analysisError gives every typed error errors.Is(err, ErrArchitectureAnalysis).
type analysisError struct{}

func (analysisError) Is(target error) bool { return target == ErrArchitectureAnalysis }

// CyclicHierarchyError is returned when a hierarchy change would introduce
// a cycle.
type CyclicHierarchyError struct {
	analysisError
	Child  *graph.Node
	Parent *graph.Node
}

func (e *CyclicHierarchyError) Error() string {
	return fmt.Sprintf("making %v a child of %v would create a cycle", e.Child, e.Parent)
}

// CorruptStateError signals a broken internal invariant. It indicates a bug
// in the analysis and is not meant to be handled by callers.
type CorruptStateError struct {
	analysisError
	Reason string
}

func (e *CorruptStateError) Error() string {
	return "corrupt reflexion state: " + e.Reason
}

func corrupt(format string, args ...any) error {
	return &CorruptStateError{Reason: fmt.Sprintf(format, args...)}
}

// RedundantSpecifiedEdgeError is returned when a specified architecture edge
// would be covered by, or would cover, another specified edge.
type RedundantSpecifiedEdgeError struct {
	analysisError
	First  *graph.Edge
	Second *graph.Edge
}

func (e *RedundantSpecifiedEdgeError) Error() string {
	return fmt.Sprintf("specified edges %v and %v are redundant", e.First, e.Second)
}

// NotInSubgraphError is returned when an element is not contained in the
// expected subgraph.
type NotInSubgraphError struct {
	analysisError
	Expected graph.Subgraph
	Element  fmt.Stringer
}

func (e *NotInSubgraphError) Error() string {
	return fmt.Sprintf("%v is not contained in the %s", e.Element, e.Expected)
}

// ExpectedSpecifiedEdgeError is returned when an operation needs a
// specified architecture edge but got a propagated one.
type ExpectedSpecifiedEdgeError struct {
	analysisError
	Edge *graph.Edge
}

func (e *ExpectedSpecifiedEdgeError) Error() string {
	return fmt.Sprintf("%v is not a specified architecture edge (state %s)", e.Edge, e.Edge.State())
}

// AlreadyExplicitlyMappedError is returned when a node already has an
// explicit mapping.
type AlreadyExplicitlyMappedError struct {
	analysisError
	Node   *graph.Node
	Target *graph.Node
}

func (e *AlreadyExplicitlyMappedError) Error() string {
	return fmt.Sprintf("%v is already explicitly mapped onto %v", e.Node, e.Target)
}

// NotExplicitlyMappedError is returned when removing a mapping that does
// not exist.
type NotExplicitlyMappedError struct {
	analysisError
	Node   *graph.Node
	Target *graph.Node
}

func (e *NotExplicitlyMappedError) Error() string {
	return fmt.Sprintf("%v is not explicitly mapped onto %v", e.Node, e.Target)
}

// AlreadyContainedError is returned when adding an element that is
// already part of the graph.
type AlreadyContainedError struct {
	analysisError
	Element fmt.Stringer
}

func (e *AlreadyContainedError) Error() string {
	return fmt.Sprintf("%v is already contained in the reflexion graph", e.Element)
}

// NotAnOrphanError is returned when a node that must be a root has a parent.
type NotAnOrphanError struct {
	analysisError
	Node *graph.Node
}

func (e *NotAnOrphanError) Error() string {
	return fmt.Sprintf("%v already has parent %v", e.Node, e.Node.Parent())
}

// IsAnOrphanError is returned when a node that must have a parent has none.
type IsAnOrphanError struct {
	analysisError
	Node *graph.Node
}

func (e *IsAnOrphanError) Error() string {
	return fmt.Sprintf("%v has no parent", e.Node)
}
