// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"maps"
	"slices"
	"sync"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// =============================================================================
// Recorder
// =============================================================================

// Recorder is an Observer that keeps every event it receives.
//
// Thread Safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	events    []ChangeEvent
	errs      []error
	completed bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnNext(event ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *Recorder) OnCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
}

// Events returns a copy of the recorded events in delivery order.
func (r *Recorder) Events() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// OfKind returns the recorded events of one kind.
func (r *Recorder) OfKind(kind EventKind) []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []ChangeEvent
	for _, e := range r.events {
		if e.Kind() == kind {
			result = append(result, e)
		}
	}
	return result
}

// Errors returns the errors received through OnError.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

// Completed reports whether OnCompleted was called.
func (r *Recorder) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.errs = nil
	r.completed = false
}

// =============================================================================
// Replay
// =============================================================================

// EdgeRecord is the replayed shape of an edge.
type EdgeRecord struct {
	SourceID string
	TargetID string
	Type     string
	Subgraph graph.Subgraph
}

// View is the state of a reflexion graph as reconstructed from events.
type View struct {
	Nodes      map[string]graph.Subgraph
	Edges      map[string]EdgeRecord
	Propagated map[string]EdgeRecord
	States     map[string]graph.State
	Mapping    map[string]string
	Parents    map[string]string
}

// NewView creates an empty view.
func NewView() *View {
	return &View{
		Nodes:      make(map[string]graph.Subgraph),
		Edges:      make(map[string]EdgeRecord),
		Propagated: make(map[string]EdgeRecord),
		States:     make(map[string]graph.State),
		Mapping:    make(map[string]string),
		Parents:    make(map[string]string),
	}
}

// ViewOf captures the current structure of g as a starting point for
// replaying later events.
func ViewOf(g *graph.Graph) *View {
	v := NewView()
	for _, n := range g.Nodes() {
		v.Nodes[n.ID()] = n.Subgraph()
		if p := n.Parent(); p != nil {
			v.Parents[n.ID()] = p.ID()
		}
	}
	for _, e := range g.Edges() {
		rec := EdgeRecord{SourceID: e.Source().ID(), TargetID: e.Target().ID(), Type: e.Type(), Subgraph: e.Subgraph()}
		switch {
		case e.IsMapsTo():
			v.Mapping[rec.SourceID] = rec.TargetID
		case e.IsInArchitecture() && e.State() != graph.StateUndefined && !graph.IsSpecifiedState(e.State()):
			v.Propagated[e.ID()] = rec
			v.States[e.ID()] = e.State()
		default:
			v.Edges[e.ID()] = rec
			v.States[e.ID()] = e.State()
		}
	}
	return v
}

// Clone returns an independent copy of v.
func (v *View) Clone() *View {
	return &View{
		Nodes:      maps.Clone(v.Nodes),
		Edges:      maps.Clone(v.Edges),
		Propagated: maps.Clone(v.Propagated),
		States:     maps.Clone(v.States),
		Mapping:    maps.Clone(v.Mapping),
		Parents:    maps.Clone(v.Parents),
	}
}

// Apply folds a single event into v.
func (v *View) Apply(event ChangeEvent) {
	switch e := event.(type) {
	case *EdgeChange:
		v.States[e.EdgeID] = e.NewState
	case *PropagatedEdgeEvent:
		if e.Change == Addition {
			v.Propagated[e.EdgeID] = EdgeRecord{SourceID: e.SourceID, TargetID: e.TargetID, Type: e.Type, Subgraph: graph.SubgraphArchitecture}
			v.States[e.EdgeID] = graph.StateUndefined
		} else {
			delete(v.Propagated, e.EdgeID)
			delete(v.States, e.EdgeID)
		}
	case *EdgeEvent:
		if e.Change == Addition {
			v.Edges[e.EdgeID] = EdgeRecord{SourceID: e.SourceID, TargetID: e.TargetID, Type: e.Type, Subgraph: e.Subgraph}
			if _, ok := v.States[e.EdgeID]; !ok {
				v.States[e.EdgeID] = graph.StateUndefined
			}
		} else {
			delete(v.Edges, e.EdgeID)
			delete(v.States, e.EdgeID)
		}
	case *NodeEvent:
		if e.Change == Addition {
			v.Nodes[e.NodeID] = e.Subgraph
		} else {
			delete(v.Nodes, e.NodeID)
			delete(v.Parents, e.NodeID)
		}
	case *MapsToChange:
		if e.Change == Addition {
			v.Mapping[e.SourceID] = e.TargetID
		} else if v.Mapping[e.SourceID] == e.TargetID {
			delete(v.Mapping, e.SourceID)
		}
	case *HierarchyChangeEvent:
		if e.Change == Addition {
			v.Parents[e.ChildID] = e.ParentID
		} else if v.Parents[e.ChildID] == e.ParentID {
			delete(v.Parents, e.ChildID)
		}
	}
}

// Replay applies events to a copy of start and returns the result. A nil
// start replays from an empty view.
func Replay(start *View, events []ChangeEvent) *View {
	v := NewView()
	if start != nil {
		v = start.Clone()
	}
	for _, e := range events {
		v.Apply(e)
	}
	return v
}

// Replayer is an Observer that keeps a View current while events arrive.
//
// Thread Safety: Replayer is safe for concurrent use.
type Replayer struct {
	mu   sync.Mutex
	view *View
}

// NewReplayer creates a Replayer starting from start (nil = empty).
func NewReplayer(start *View) *Replayer {
	if start == nil {
		start = NewView()
	}
	return &Replayer{view: start.Clone()}
}

func (r *Replayer) OnNext(event ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.view.Apply(event)
}

func (r *Replayer) OnError(error) {}

func (r *Replayer) OnCompleted() {}

// View returns a snapshot of the replayed state.
func (r *Replayer) View() *View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.Clone()
}
