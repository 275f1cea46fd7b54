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
	"log/slog"
	"slices"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/events"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// =============================================================================
// State Transitions
// =============================================================================

// transition moves e to state to and notifies observers. Unchanged states
// produce no event.
func (r *Reflexion) transition(e *graph.Edge, to graph.State) {
	from := e.State()
	if from == to {
		return
	}
	e.SetState(to)
	r.notify(events.NewEdgeChange(e, from, to))
}

// absentState is the state of a specified edge without dependencies.
func (r *Reflexion) absentState(e *graph.Edge) graph.State {
	if e.HasToggle(graph.IsOptionalToggle) {
		return graph.StateAllowedAbsent
	}
	return graph.StateAbsent
}

// changeSpecified adds delta to the counter of a specified edge and moves
// it between convergent and absent when the counter crosses zero.
func (r *Reflexion) changeSpecified(e *graph.Edge, delta int) error {
	old := e.Counter()
	updated := old + delta
	if updated < 0 {
		return corrupt("counter of %v would drop to %d", e, updated)
	}
	e.SetCounter(updated)
	switch {
	case old == 0 && updated > 0:
		r.transition(e, graph.StateConvergent)
	case updated == 0:
		r.transition(e, r.absentState(e))
	}
	return nil
}

// setPropagatedState moves a propagated edge and every implementation edge
// propagated onto it to state s.
func (r *Reflexion) setPropagatedState(p *graph.Edge, s graph.State) {
	r.transition(p, s)
	for _, cause := range r.causes[p.ID()] {
		r.transition(cause, s)
	}
}

// isPropagated reports whether e is an architecture edge created by
// propagation.
func isPropagated(e *graph.Edge) bool {
	if !e.IsInArchitecture() {
		return false
	}
	s := e.State()
	return s != graph.StateUndefined && !graph.IsSpecifiedState(s)
}

// =============================================================================
// Lifting
// =============================================================================

// findAllowing returns the first specified edge that allows a dependency of
// type typ from one architecture node to another, or nil.
//
// Description:
//
//	A specified edge s allows the dependency when its source is an
//	ascendant of from, its target an ascendant of to and typ is a subtype
//	of the type of s. Ascendants of from are visited from the innermost
//	outward, each in outgoing edge order.
func (r *Reflexion) findAllowing(from, to *graph.Node, typ string) *graph.Edge {
	targets := make(map[*graph.Node]struct{})
	for _, a := range to.Ascendants() {
		targets[a] = struct{}{}
	}
	for _, cursor := range from.Ascendants() {
		for _, e := range cursor.Outgoings() {
			if !e.IsSpecified() {
				continue
			}
			if _, ok := targets[e.Target()]; !ok {
				continue
			}
			if r.options.Types.IsSubtypeOf(typ, e.Type()) {
				return e
			}
		}
	}
	return nil
}

// dispositionOf decides the state of a propagated edge.
func (r *Reflexion) dispositionOf(p, allowing *graph.Edge) graph.State {
	switch {
	case allowing != nil:
		return graph.StateAllowed
	case p.Source() == p.Target():
		r.logger.Debug("self dependency implicitly allowed", slog.String("edge", p.String()))
		return graph.StateImplicitlyAllowed
	case r.options.AllowDependenciesToParents && p.Source().IsDescendantOf(p.Target()):
		r.logger.Debug("dependency to ancestor implicitly allowed", slog.String("edge", p.String()))
		return graph.StateImplicitlyAllowed
	default:
		return graph.StateDivergent
	}
}

// findPropagated returns the propagated edge from source to target with
// the given type, or nil.
func (r *Reflexion) findPropagated(source, target *graph.Node, typ string) *graph.Edge {
	for _, e := range r.full.FromTo(source, target, typ) {
		if isPropagated(e) {
			return e
		}
	}
	return nil
}

// =============================================================================
// Propagation
// =============================================================================

// propagateAndLift propagates one implementation edge onto the
// architecture and lifts the result to its allowing specified edge.
//
// Description:
//
//	An implementation edge with an unmapped end is dangling: it becomes
//	Unmapped and contributes nothing. Otherwise it is counted on the
//	propagated edge between the mapping targets of its ends, creating that
//	edge on first use. The edge then mirrors the state of its propagated
//	edge.
//
// Outputs:
//
//	error - CorruptStateError when the edge is already propagated.
func (r *Reflexion) propagateAndLift(e *graph.Edge) error {
	source := r.implicitMapsTo[e.Source().ID()]
	target := r.implicitMapsTo[e.Target().ID()]
	if source == nil || target == nil {
		r.transition(e, graph.StateUnmapped)
		return nil
	}
	if p, ok := r.propagation[e.ID()]; ok {
		return corrupt("%v is already propagated onto %v", e, p)
	}

	p := r.findPropagated(source, target, e.Type())
	if p != nil {
		p.SetCounter(p.Counter() + 1)
		r.addCause(p, e)
		if allowing := r.allowing[p.ID()]; allowing != nil {
			if err := r.changeSpecified(allowing, 1); err != nil {
				return err
			}
		}
		r.transition(e, p.State())
		return nil
	}

	p = graph.NewEdge("", source, target, e.Type())
	if err := r.full.AddEdge(p); err != nil {
		return corrupt("adding propagated edge for %v: %v", e, err)
	}
	if err := p.SetSubgraph(graph.SubgraphArchitecture); err != nil {
		return corrupt("tagging propagated edge %v: %v", p, err)
	}
	p.SetCounter(1)
	r.notify(events.NewPropagatedEdgeEvent(p, events.Addition))
	r.addCause(p, e)

	allowing := r.findAllowing(source, target, e.Type())
	if allowing != nil {
		if err := r.changeSpecified(allowing, 1); err != nil {
			return err
		}
		r.allowing[p.ID()] = allowing
	}
	r.setPropagatedState(p, r.dispositionOf(p, allowing))
	return nil
}

func (r *Reflexion) addCause(p, e *graph.Edge) {
	r.propagation[e.ID()] = p
	r.causes[p.ID()] = append(r.causes[p.ID()], e)
}

// unpropagate withdraws the contribution of one implementation edge.
//
// Description:
//
//	A dangling edge contributed nothing and is left alone. A propagated
//	edge whose counter drops to zero is removed from the graph. When
//	markUnmapped is set, the implementation edge becomes Unmapped.
//
// Outputs:
//
//	error - CorruptStateError when an edge with two mapped ends was never
//	        propagated or a counter would become negative.
func (r *Reflexion) unpropagate(e *graph.Edge, markUnmapped bool) error {
	p, ok := r.propagation[e.ID()]
	if !ok {
		if r.implicitMapsTo[e.Source().ID()] != nil && r.implicitMapsTo[e.Target().ID()] != nil {
			return corrupt("mapped %v has no propagated edge", e)
		}
		if markUnmapped {
			r.transition(e, graph.StateUnmapped)
		}
		return nil
	}

	delete(r.propagation, e.ID())
	r.causes[p.ID()] = slices.DeleteFunc(r.causes[p.ID()], func(c *graph.Edge) bool { return c == e })
	if allowing := r.allowing[p.ID()]; allowing != nil {
		if err := r.changeSpecified(allowing, -1); err != nil {
			return err
		}
	}
	remaining := p.Counter() - 1
	if remaining < 0 {
		return corrupt("counter of propagated %v would drop to %d", p, remaining)
	}
	p.SetCounter(remaining)
	if remaining == 0 {
		r.notify(events.NewPropagatedEdgeEvent(p, events.Removal))
		if err := r.full.RemoveEdge(p); err != nil {
			return corrupt("removing propagated %v: %v", p, err)
		}
		delete(r.causes, p.ID())
		delete(r.allowing, p.ID())
	}
	if markUnmapped {
		r.transition(e, graph.StateUnmapped)
	}
	return nil
}

// reevaluate recomputes the allowing edge and state of each propagated
// edge after the architecture changed. Counters move from the previous
// allowing edge to the new one.
func (r *Reflexion) reevaluate(propagated []*graph.Edge) error {
	for _, p := range propagated {
		if !r.full.ContainsEdge(p) {
			continue
		}
		previous := r.allowing[p.ID()]
		current := r.findAllowing(p.Source(), p.Target(), p.Type())
		if previous != current {
			if previous != nil && r.full.ContainsEdge(previous) {
				if err := r.changeSpecified(previous, -p.Counter()); err != nil {
					return err
				}
			}
			if current != nil {
				if err := r.changeSpecified(current, p.Counter()); err != nil {
					return err
				}
				r.allowing[p.ID()] = current
			} else {
				delete(r.allowing, p.ID())
			}
		}
		r.setPropagatedState(p, r.dispositionOf(p, current))
	}
	return nil
}
