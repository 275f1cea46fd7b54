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
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// ArtificialRootType is the node type of artificial subgraph roots.
const ArtificialRootType = "Artificial_Root"

// ReflexionGraph is a merged implementation, architecture and mapping graph
// together with its reflexion analysis.
//
// Description:
//
//	Besides the explicit operations of Reflexion, a ReflexionGraph offers
//	generic graph operations (AddNode, AddEdge, RemoveEdge, ...) that pass
//	straight through to the graph before Run and are routed to the matching
//	incremental operation afterwards.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type ReflexionGraph struct {
	*Reflexion
}

// New wraps an already merged and tagged graph.
//
// Description:
//
//	Every node must be tagged implementation or architecture. Untagged
//	edges take the subgraph of their endpoints. When a subgraph does not
//	have exactly one root, an artificial root is added above its roots.
//	The graph is owned by the result from now on.
//
// Outputs:
//
//	*ReflexionGraph - The uninitialized analysis. Call Run next.
//	error           - graph.ErrInvalidSubgraph for untagged elements.
func New(full *graph.Graph, opts ...Option) (*ReflexionGraph, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if err := tagUntagged(full); err != nil {
		return nil, err
	}

	r := newReflexion(full, options)
	var err error
	if r.implRoot, err = ensureRoot(full, graph.SubgraphImplementation, ImplementationRootID); err != nil {
		return nil, err
	}
	if r.archRoot, err = ensureRoot(full, graph.SubgraphArchitecture, ArchitectureRootID); err != nil {
		return nil, err
	}
	return &ReflexionGraph{Reflexion: r}, nil
}

func tagUntagged(full *graph.Graph) error {
	for _, n := range full.Nodes() {
		if !n.IsInImplementation() && !n.IsInArchitecture() {
			return fmt.Errorf("%w: node %s is not tagged", graph.ErrInvalidSubgraph, n.ID())
		}
	}
	for _, e := range full.Edges() {
		if e.IsMapsTo() || e.Subgraph() != graph.SubgraphNone {
			continue
		}
		s := e.Source().Subgraph()
		if e.Target().Subgraph() != s {
			return fmt.Errorf("%w: edge %s crosses subgraphs", graph.ErrInvalidSubgraph, e.ID())
		}
		if err := e.SetSubgraph(s); err != nil {
			return err
		}
	}
	return nil
}

// ensureRoot returns the single root of subgraph s, adding an artificial
// one if necessary.
func ensureRoot(full *graph.Graph, s graph.Subgraph, id string) (*graph.Node, error) {
	inSubgraph := func(n *graph.Node) bool { return n.Subgraph() == s }
	root, err := full.AddRootNodeIfNecessary(id, ArtificialRootType, inSubgraph)
	if err != nil {
		return nil, fmt.Errorf("adding %s root: %w", s, err)
	}
	if root != nil {
		if err := root.SetSubgraph(s); err != nil {
			return nil, err
		}
		return root, nil
	}
	for _, n := range full.Roots() {
		if inSubgraph(n) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s root", graph.ErrNodeNotFound, s)
}

// =============================================================================
// Assembly
// =============================================================================

// Assemble merges separate implementation, architecture and mapping graphs
// into a new ReflexionGraph. The inputs are not modified.
//
// Description:
//
//	Architecture edges whose ID is already used by the implementation get
//	the suffix "-A", mapping edges with a taken ID the suffix "-M". The
//	original ID is kept in OriginalIDAttribute so Disassemble can restore
//	it. Mapping edges are resolved by the IDs of their endpoints.
//
// Outputs:
//
//	*ReflexionGraph - The uninitialized analysis.
//	error           - ErrNodeIDOverlap, NotInSubgraphError, ErrNotSupported.
func Assemble(ctx context.Context, impl, arch, mapping *graph.Graph, opts ...Option) (rg *ReflexionGraph, err error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	_, span := startSpan(ctx, options.Tracer, "reflexion.Assemble",
		attribute.Int("implementation_nodes", impl.NodeCount()),
		attribute.Int("architecture_nodes", arch.NodeCount()),
		attribute.Int("mapping_edges", mapping.EdgeCount()),
	)
	defer func() { endSpan(span, err) }()

	implCopy, err := tagged(impl, graph.SubgraphImplementation)
	if err != nil {
		return nil, err
	}
	archCopy, err := tagged(arch, graph.SubgraphArchitecture)
	if err != nil {
		return nil, err
	}
	for _, n := range archCopy.Nodes() {
		if _, taken := implCopy.GetNode(n.ID()); taken {
			return nil, fmt.Errorf("%w: %s", ErrNodeIDOverlap, n.ID())
		}
	}

	full := graph.NewGraph("reflexion", graph.WithCapacity(
		impl.NodeCount()+arch.NodeCount()+2,
		impl.EdgeCount()+arch.EdgeCount()+mapping.EdgeCount(),
	))
	if _, err := full.MergeWith(implCopy, nil); err != nil {
		return nil, err
	}
	renamed, err := full.MergeWith(archCopy, func(id string) string { return id + "-A" })
	if err != nil {
		return nil, err
	}
	for _, e := range archCopy.Edges() {
		if id, ok := renamed[e.ID()]; ok {
			markRenamed(full, options.Logger, e.ID(), id)
		}
	}

	if err := mergeMapping(full, mapping, options.Logger); err != nil {
		return nil, err
	}
	return New(full, opts...)
}

// tagged copies g and tags all of its elements with s.
func tagged(g *graph.Graph, s graph.Subgraph) (*graph.Graph, error) {
	c := g.Copy()
	for _, n := range c.Nodes() {
		if err := n.SetSubgraph(s); err != nil {
			return nil, err
		}
	}
	for _, e := range c.Edges() {
		if e.IsMapsTo() {
			return nil, fmt.Errorf("%w: Maps_To edge %s in the %s", ErrNotSupported, e.ID(), s)
		}
		if err := e.SetSubgraph(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func markRenamed(full *graph.Graph, logger *slog.Logger, original, renamed string) {
	logger.Warn("edge ID already taken, renamed",
		slog.String("original", original),
		slog.String("renamed", renamed),
	)
	if e, ok := full.GetEdge(renamed); ok {
		e.SetString(OriginalIDAttribute, original)
	}
}

// mergeMapping adds the Maps_To edges of mapping to full.
func mergeMapping(full, mapping *graph.Graph, logger *slog.Logger) error {
	for _, e := range mapping.Edges() {
		if !e.IsMapsTo() {
			return &NotInSubgraphError{Expected: graph.SubgraphMapping, Element: e}
		}
		source, ok := full.GetNode(e.Source().ID())
		if !ok || !source.IsInImplementation() {
			return &NotInSubgraphError{Expected: graph.SubgraphImplementation, Element: e.Source()}
		}
		target, ok := full.GetNode(e.Target().ID())
		if !ok || !target.IsInArchitecture() {
			return &NotInSubgraphError{Expected: graph.SubgraphArchitecture, Element: e.Target()}
		}

		id := e.ID()
		if _, taken := full.GetEdge(id); taken {
			id += "-M"
		}
		m := graph.NewEdge(id, source, target, graph.MapsToType)
		m.Attributes = e.CloneAttributes()
		if err := full.AddEdge(m); err != nil {
			return err
		}
		if id != e.ID() {
			markRenamed(full, logger, e.ID(), id)
		}
	}
	return nil
}

// Disassemble splits the graph into independent implementation,
// architecture and mapping graphs. Artificial roots and propagated edges
// are left out and renamed edges get their original IDs back.
func (rg *ReflexionGraph) Disassemble() (impl, arch, mapping *graph.Graph) {
	natural := func(n *graph.Node) bool { return !n.HasToggle(graph.IsArtificialToggle) }

	impl = rg.full.SubgraphBy("implementation",
		func(n *graph.Node) bool { return n.IsInImplementation() && natural(n) },
		func(e *graph.Edge) bool { return e.IsInImplementation() },
	)
	arch = rg.full.SubgraphBy("architecture",
		func(n *graph.Node) bool { return n.IsInArchitecture() && natural(n) },
		func(e *graph.Edge) bool { return e.IsInArchitecture() && !isPropagated(e) },
	)

	mapped := make(map[*graph.Node]struct{})
	for _, e := range rg.full.Edges() {
		if e.IsMapsTo() {
			mapped[e.Source()] = struct{}{}
			mapped[e.Target()] = struct{}{}
		}
	}
	mapping = rg.full.SubgraphBy("mapping",
		func(n *graph.Node) bool { _, ok := mapped[n]; return ok },
		func(e *graph.Edge) bool { return e.IsMapsTo() },
	)
	for _, n := range mapping.Nodes() {
		n.Unparent()
	}

	restoreIDs(arch)
	restoreIDs(mapping)
	return impl, arch, mapping
}

func restoreIDs(g *graph.Graph) {
	for _, e := range g.Edges() {
		original, ok := e.GetString(OriginalIDAttribute)
		if !ok {
			continue
		}
		if err := g.RenameEdge(e, original); err == nil {
			e.UnsetString(OriginalIDAttribute)
		}
	}
}

// =============================================================================
// Cloning
// =============================================================================

// Clone returns an independent deep copy including all analysis state.
// Observers are not copied.
func (rg *ReflexionGraph) Clone() *ReflexionGraph {
	full := rg.full.Copy()
	c := newReflexion(full, rg.options)
	c.initialized = rg.initialized

	node := func(n *graph.Node) *graph.Node {
		if n == nil {
			return nil
		}
		copied, _ := full.GetNode(n.ID())
		return copied
	}
	edge := func(e *graph.Edge) *graph.Edge {
		copied, _ := full.GetEdge(e.ID())
		return copied
	}

	c.implRoot = node(rg.implRoot)
	c.archRoot = node(rg.archRoot)
	for id, target := range rg.explicitMapsTo {
		c.explicitMapsTo[id] = node(target)
	}
	for id, target := range rg.implicitMapsTo {
		c.implicitMapsTo[id] = node(target)
	}
	for id, p := range rg.propagation {
		c.propagation[id] = edge(p)
	}
	for id, causes := range rg.causes {
		copied := make([]*graph.Edge, len(causes))
		for i, cause := range causes {
			copied[i] = edge(cause)
		}
		c.causes[id] = copied
	}
	for id, allowing := range rg.allowing {
		c.allowing[id] = edge(allowing)
	}
	return &ReflexionGraph{Reflexion: c}
}
