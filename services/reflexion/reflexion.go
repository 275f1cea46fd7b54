// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reflexion implements the incremental reflexion analysis.
//
// The reflexion model compares the dependencies of an implementation with an
// intended architecture. Implementation nodes are mapped onto architecture
// nodes; implementation dependencies are propagated along that mapping onto
// the architecture and lifted to the specified architecture edges that
// allow them. Every edge ends up in one of these states:
//
//	convergent          specified and backed by at least one dependency
//	absent              specified without any dependency
//	allowedAbsent       optional, specified, without dependency
//	allowed             propagated and covered by a specified edge
//	implicitlyAllowed   propagated self dependency or dependency to an ancestor
//	divergent           propagated without covering specified edge
//	unmapped            implementation edge with an unmapped end
//
// # Graph Layout
//
// The implementation, architecture and mapping live in one graph. Each node
// and edge is tagged with its subgraph; Maps_To edges form the mapping.
// Propagated edges are architecture edges in a non-specified state.
//
// # Incremental Operations
//
// After Run, every mutation (nodes, edges, hierarchy, mapping) updates the
// states and counters of exactly the affected edges. Each operation checks
// all of its preconditions before it changes anything, so a returned error
// means nothing was modified. Only CorruptStateError breaks that rule: it
// reports a bug in the analysis itself.
//
// # Thread Safety
//
// The analysis is NOT safe for concurrent use. Use Clone for an independent
// copy, or the session package to serialize access.
package reflexion

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/events"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// Reflexion owns the merged graph and all derived analysis state.
//
// Description:
//
//	The explicit mapping table holds the user's Maps_To edges. The implicit
//	table is its closure over the implementation hierarchy and contains
//	explicitly mapped nodes too. The propagation table records, for every
//	propagated implementation edge, the architecture edge it was propagated
//	onto, and the allowing table records which specified edge allows a
//	propagated edge.
type Reflexion struct {
	full    *graph.Graph
	obs     *events.Observable
	options Options
	logger  *slog.Logger
	tracer  trace.Tracer

	implRoot *graph.Node
	archRoot *graph.Node

	explicitMapsTo map[string]*graph.Node
	implicitMapsTo map[string]*graph.Node
	propagation    map[string]*graph.Edge
	causes         map[string][]*graph.Edge
	allowing       map[string]*graph.Edge

	initialized bool
}

func newReflexion(full *graph.Graph, options Options) *Reflexion {
	return &Reflexion{
		full:           full,
		obs:            events.NewObservable(options.Logger),
		options:        options,
		logger:         options.Logger,
		tracer:         options.Tracer,
		explicitMapsTo: make(map[string]*graph.Node),
		implicitMapsTo: make(map[string]*graph.Node),
		propagation:    make(map[string]*graph.Edge),
		causes:         make(map[string][]*graph.Edge),
		allowing:       make(map[string]*graph.Edge),
	}
}

// =============================================================================
// Observers
// =============================================================================

// Subscribe registers an observer of change events and returns its
// subscription ID. See events.Observable.Subscribe.
func (r *Reflexion) Subscribe(observer events.Observer, kinds ...events.EventKind) string {
	return r.obs.Subscribe(observer, kinds...)
}

// Unsubscribe removes an observer.
func (r *Reflexion) Unsubscribe(id string) bool {
	return r.obs.Unsubscribe(id)
}

func (r *Reflexion) notify(e events.ChangeEvent) {
	r.obs.Notify(e)
}

// mutable reports whether an incremental operation may run now.
func (r *Reflexion) mutable() error {
	if r.obs.Notifying() {
		return ErrReentrantMutation
	}
	if !r.initialized {
		return ErrNotInitialized
	}
	return nil
}

// =============================================================================
// Full Recomputation
// =============================================================================

// Run initializes the analysis and computes the reflexion model from
// scratch. Afterwards the incremental operations are available.
//
// The context only carries tracing; the computation is not cancellable.
func (r *Reflexion) Run(ctx context.Context) error {
	if r.obs.Notifying() {
		return ErrReentrantMutation
	}
	err := r.fromScratch(ctx)
	if err == nil {
		r.initialized = true
	}
	return recordOperation("run", err)
}

// FromScratch discards all derived state and recomputes it. The result is
// identical to what the incremental operations maintain.
func (r *Reflexion) FromScratch(ctx context.Context) error {
	if r.obs.Notifying() {
		return ErrReentrantMutation
	}
	return recordOperation("from_scratch", r.fromScratch(ctx))
}

func (r *Reflexion) fromScratch(ctx context.Context) (err error) {
	_, span := startSpan(ctx, r.tracer, "reflexion.FromScratch",
		attribute.Int("nodes", r.full.NodeCount()),
		attribute.Int("edges", r.full.EdgeCount()),
	)
	defer func() { endSpan(span, err) }()
	start := time.Now()

	explicit, err := r.collectExplicitMapping()
	if err != nil {
		return err
	}

	r.reset()
	r.explicitMapsTo = explicit
	r.buildImplicitMapping()

	for _, n := range r.full.Nodes() {
		if !n.IsInImplementation() || r.implicitMapsTo[n.ID()] == nil {
			continue
		}
		for _, e := range n.Outgoings() {
			if !e.IsInImplementation() {
				continue
			}
			if err := r.propagateAndLift(e); err != nil {
				return err
			}
		}
	}

	for _, e := range r.full.Edges() {
		if e.IsSpecified() && e.Counter() == 0 {
			r.transition(e, r.absentState(e))
		}
	}

	runDuration.Observe(time.Since(start).Seconds())
	propagatedEdges.Set(float64(len(r.causes)))
	span.SetAttributes(attribute.Int("propagated_edges", len(r.causes)))
	r.logger.Info("reflexion analysis computed",
		slog.Int("nodes", r.full.NodeCount()),
		slog.Int("edges", r.full.EdgeCount()),
		slog.Int("propagated", len(r.causes)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// collectExplicitMapping validates the Maps_To edges of the graph and
// returns them as a table, without changing anything.
func (r *Reflexion) collectExplicitMapping() (map[string]*graph.Node, error) {
	explicit := make(map[string]*graph.Node)
	for _, e := range r.full.Edges() {
		if !e.IsMapsTo() {
			continue
		}
		if !e.Source().IsInImplementation() {
			return nil, &NotInSubgraphError{Expected: graph.SubgraphImplementation, Element: e.Source()}
		}
		if !e.Target().IsInArchitecture() {
			return nil, &NotInSubgraphError{Expected: graph.SubgraphArchitecture, Element: e.Target()}
		}
		if current, ok := explicit[e.Source().ID()]; ok {
			return nil, &AlreadyExplicitlyMappedError{Node: e.Source(), Target: current}
		}
		explicit[e.Source().ID()] = e.Target()
	}
	return explicit, nil
}

// reset returns every edge to its initial state: specified edges become
// Specified with counter 0, propagated edges are removed and
// implementation edges become Unmapped.
func (r *Reflexion) reset() {
	for _, e := range r.full.Edges() {
		switch {
		case e.IsMapsTo():
		case e.IsInArchitecture():
			if e.State() == graph.StateUndefined || graph.IsSpecifiedState(e.State()) {
				e.SetCounter(0)
				r.transition(e, graph.StateSpecified)
				continue
			}
			r.notify(events.NewPropagatedEdgeEvent(e, events.Removal))
			_ = r.full.RemoveEdge(e)
		case e.IsInImplementation():
			r.transition(e, graph.StateUnmapped)
		}
	}
	clear(r.propagation)
	clear(r.causes)
	clear(r.allowing)
}

// buildImplicitMapping derives the implicit table from the explicit one.
func (r *Reflexion) buildImplicitMapping() {
	r.implicitMapsTo = make(map[string]*graph.Node, len(r.explicitMapsTo))
	var walk func(n, inherited *graph.Node)
	walk = func(n, inherited *graph.Node) {
		target := inherited
		if explicit, ok := r.explicitMapsTo[n.ID()]; ok {
			target = explicit
		}
		if target != nil {
			r.implicitMapsTo[n.ID()] = target
		}
		for _, c := range n.Children() {
			walk(c, target)
		}
	}
	for _, root := range r.full.Roots() {
		if root.IsInImplementation() {
			walk(root, nil)
		}
	}
}

// =============================================================================
// Queries
// =============================================================================

// Initialized reports whether Run has completed.
func (r *Reflexion) Initialized() bool { return r.initialized }

// Graph returns the merged graph. It must not be mutated directly.
func (r *Reflexion) Graph() *graph.Graph { return r.full }

// ImplementationRoot returns the single root of the implementation.
func (r *Reflexion) ImplementationRoot() *graph.Node { return r.implRoot }

// ArchitectureRoot returns the single root of the architecture.
func (r *Reflexion) ArchitectureRoot() *graph.Node { return r.archRoot }

// State returns the reflexion state of an edge.
func (r *Reflexion) State(e *graph.Edge) graph.State { return e.State() }

// Counter returns the counter of an edge.
func (r *Reflexion) Counter(e *graph.Edge) int { return e.Counter() }

// MapsTo returns the architecture node n is mapped onto, explicitly or
// implicitly, or nil.
func (r *Reflexion) MapsTo(n *graph.Node) *graph.Node {
	return r.implicitMapsTo[n.ID()]
}

// IsExplicitlyMapped reports whether n has its own Maps_To edge.
func (r *Reflexion) IsExplicitlyMapped(n *graph.Node) bool {
	_, ok := r.explicitMapsTo[n.ID()]
	return ok
}

// ExplicitMapping returns the explicit mapping target of n, or nil.
func (r *Reflexion) ExplicitMapping(n *graph.Node) *graph.Node {
	return r.explicitMapsTo[n.ID()]
}

// PropagatedEdgeOf returns the propagated architecture edge an
// implementation edge contributes to, or nil when it is dangling.
func (r *Reflexion) PropagatedEdgeOf(implEdge *graph.Edge) *graph.Edge {
	return r.propagation[implEdge.ID()]
}

// AllowingEdgeOf returns the specified edge that allows a propagated edge,
// or nil.
func (r *Reflexion) AllowingEdgeOf(propagated *graph.Edge) *graph.Edge {
	return r.allowing[propagated.ID()]
}

// CausesOf returns the implementation edges propagated onto a propagated
// edge in the order they were propagated.
func (r *Reflexion) CausesOf(propagated *graph.Edge) []*graph.Edge {
	return slices.Clone(r.causes[propagated.ID()])
}

// PropagatedEdges returns all propagated architecture edges in graph order.
func (r *Reflexion) PropagatedEdges() []*graph.Edge {
	var result []*graph.Edge
	for _, e := range r.full.Edges() {
		if isPropagated(e) {
			result = append(result, e)
		}
	}
	return result
}

// Summary aggregates the architecture edges by state.
type Summary struct {
	// Edges counts architecture edges per state.
	Edges [graph.NumStates]int

	// Dependencies sums the counters of architecture edges per state.
	Dependencies [graph.NumStates]int
}

// EdgesIn returns the number of architecture edges in state s.
func (s Summary) EdgesIn(state graph.State) int { return s.Edges[state] }

// DependenciesIn returns the summed counters of edges in state s.
func (s Summary) DependenciesIn(state graph.State) int { return s.Dependencies[state] }

// Summary returns counts per state over all architecture edges.
func (r *Reflexion) Summary() Summary {
	var s Summary
	for _, e := range r.full.Edges() {
		if !e.IsInArchitecture() {
			continue
		}
		s.Edges[e.State()]++
		s.Dependencies[e.State()] += e.Counter()
	}
	return s
}
