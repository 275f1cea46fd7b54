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

// MapsToType is the reserved edge type of mapping edges. An edge of this type
// connects an implementation node to the architecture node it is mapped onto.
const MapsToType = "Maps_To"

// Well-known toggles.
const (
	// IsOptionalToggle marks a specified architecture edge as optional. An
	// optional edge without dependencies is AllowedAbsent instead of Absent.
	IsOptionalToggle = "Architecture.Is_Optional"

	// IsArtificialToggle marks nodes that were synthesized, such as the root
	// added by AddRootNodeIfNecessary.
	IsArtificialToggle = "Is_Artificial"
)

// =============================================================================
// Subgraph
// =============================================================================

// Subgraph identifies which logical graph an element belongs to.
type Subgraph int

const (
	// SubgraphNone means the element is not tagged.
	SubgraphNone Subgraph = iota

	// SubgraphImplementation is the actual dependency graph of the system.
	SubgraphImplementation

	// SubgraphArchitecture is the intended architecture.
	SubgraphArchitecture

	// SubgraphMapping contains the Maps_To edges. It is derived from the edge
	// type and never set directly.
	SubgraphMapping
)

var subgraphNames = map[Subgraph]string{
	SubgraphNone:           "none",
	SubgraphImplementation: "implementation",
	SubgraphArchitecture:   "architecture",
	SubgraphMapping:        "mapping",
}

// String returns the subgraph name.
func (s Subgraph) String() string {
	if name, ok := subgraphNames[s]; ok {
		return name
	}
	return fmt.Sprintf("subgraph(%d)", int(s))
}

// =============================================================================
// State
// =============================================================================

// State is the reflexion classification of an edge.
type State int

const (
	// StateUndefined is the state of edges the analysis has not touched.
	StateUndefined State = iota

	// StateAllowed is a propagated dependency covered by a specified edge.
	StateAllowed

	// StateDivergent is a propagated dependency no specified edge allows.
	StateDivergent

	// StateAbsent is a specified edge without any propagated dependency.
	StateAbsent

	// StateConvergent is a specified edge with at least one dependency.
	StateConvergent

	// StateImplicitlyAllowed is a propagated self dependency, or a dependency
	// from a descendant to its ancestor when that exemption is enabled.
	StateImplicitlyAllowed

	// StateAllowedAbsent is an optional specified edge without dependencies.
	StateAllowedAbsent

	// StateSpecified is the initial state of specified edges.
	StateSpecified

	// StateUnmapped is the state of implementation edges with an unmapped end.
	StateUnmapped
)

// NumStates is the number of distinct states.
const NumStates = int(StateUnmapped) + 1

var stateNames = [NumStates]string{
	"undefined",
	"allowed",
	"divergent",
	"absent",
	"convergent",
	"implicitlyAllowed",
	"allowedAbsent",
	"specified",
	"unmapped",
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= NumStates {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateUndefined, fmt.Errorf("unknown state %q", name)
}

// IsSpecifiedState reports whether s is one of the states a specified
// architecture edge can be in.
func IsSpecifiedState(s State) bool {
	switch s {
	case StateSpecified, StateConvergent, StateAbsent, StateAllowedAbsent:
		return true
	default:
		return false
	}
}

// =============================================================================
// Graph Options
// =============================================================================

// GraphOptions configures graph construction.
type GraphOptions struct {
	// NodeCapacity pre-sizes the node index.
	NodeCapacity int

	// EdgeCapacity pre-sizes the edge index.
	EdgeCapacity int
}

// DefaultGraphOptions returns sensible defaults.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		NodeCapacity: 64,
		EdgeCapacity: 128,
	}
}

// GraphOption is a functional option for NewGraph.
type GraphOption func(*GraphOptions)

// WithCapacity pre-sizes the node and edge indexes.
func WithCapacity(nodes, edges int) GraphOption {
	return func(o *GraphOptions) {
		if nodes > 0 {
			o.NodeCapacity = nodes
		}
		if edges > 0 {
			o.EdgeCapacity = edges
		}
	}
}
