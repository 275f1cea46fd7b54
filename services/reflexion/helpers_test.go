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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/events"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

const call = "call"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture builds a merged graph before the analysis runs.
type fixture struct {
	t *testing.T
	g *graph.Graph
	n map[string]*graph.Node
	e map[string]*graph.Edge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t: t,
		g: graph.NewGraph("fixture"),
		n: make(map[string]*graph.Node),
		e: make(map[string]*graph.Edge),
	}
}

func (f *fixture) node(id string, s graph.Subgraph, parent string) *graph.Node {
	f.t.Helper()
	n := graph.NewNode(id, "Component")
	require.NoError(f.t, f.g.AddNode(n))
	require.NoError(f.t, n.SetSubgraph(s))
	if parent != "" {
		require.NoError(f.t, f.n[parent].AddChild(n))
	}
	f.n[id] = n
	return n
}

func (f *fixture) impl(id, parent string) *graph.Node {
	return f.node(id, graph.SubgraphImplementation, parent)
}

func (f *fixture) arch(id, parent string) *graph.Node {
	return f.node(id, graph.SubgraphArchitecture, parent)
}

func (f *fixture) edge(id, from, to, edgeType string) *graph.Edge {
	f.t.Helper()
	e := graph.NewEdge(id, f.n[from], f.n[to], edgeType)
	require.NoError(f.t, f.g.AddEdge(e))
	if !e.IsMapsTo() {
		require.NoError(f.t, e.SetSubgraph(f.n[from].Subgraph()))
	}
	f.e[e.ID()] = e
	return e
}

func (f *fixture) mapTo(from, to string) *graph.Edge {
	return f.edge("", from, to, graph.MapsToType)
}

// run wraps the fixture graph and runs the analysis. The returned recorder
// was subscribed before Run.
func (f *fixture) run(opts ...Option) (*ReflexionGraph, *events.Recorder) {
	f.t.Helper()
	rg, err := New(f.g, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(f.t, err)
	rec := events.NewRecorder()
	rg.Subscribe(rec)
	require.NoError(f.t, rg.Run(context.Background()))
	return rg, rec
}

// paperFixture builds the implementation and architecture of the
// incremental reflexion paper (Koschke 2011, figure 8).
//
// Architecture (child => parent): a1, a2 => a8; a5, a6 => a7; a3, a4, a9.
// Specified: s1 a3->a7, s2 a1->a3, s3 a8->a8, s4 a2->a4.
func paperFixture(t *testing.T) *fixture {
	f := newFixture(t)
	for _, id := range []string{"a7", "a8", "a3", "a4", "a9"} {
		f.arch(id, "")
	}
	f.arch("a6", "a7")
	f.arch("a5", "a7")
	f.arch("a1", "a8")
	f.arch("a2", "a8")
	f.edge("s1", "a3", "a7", call)
	f.edge("s2", "a1", "a3", call)
	f.edge("s3", "a8", "a8", call)
	f.edge("s4", "a2", "a4", call)

	parents := map[int]int{2: 1, 11: 1, 3: 2, 7: 2, 4: 3, 5: 3, 6: 3, 8: 7, 9: 7, 10: 7, 12: 11, 13: 11}
	for j := 1; j <= 17; j++ {
		parent := ""
		if p, ok := parents[j]; ok {
			parent = fmt.Sprintf("i%d", p)
		}
		f.impl(fmt.Sprintf("i%d", j), parent)
	}
	for j, dep := range [][2]int{{3, 15}, {4, 16}, {5, 17}, {8, 6}, {9, 8}, {9, 10}, {12, 10}, {12, 9}, {14, 13}} {
		f.edge(fmt.Sprintf("e%d", j+1), fmt.Sprintf("i%d", dep[0]), fmt.Sprintf("i%d", dep[1]), call)
	}
	return f
}

// =============================================================================
// Event Helpers
// =============================================================================

// archChanges returns the state changes of architecture edges.
func archChanges(rec *events.Recorder) []*events.EdgeChange {
	var result []*events.EdgeChange
	for _, ev := range rec.OfKind(events.KindEdgeChange) {
		if ev.Affected() == graph.SubgraphArchitecture {
			result = append(result, ev.(*events.EdgeChange))
		}
	}
	return result
}

func hasChange(changes []*events.EdgeChange, from, to string, state graph.State) bool {
	for _, c := range changes {
		if c.Edge.Source().ID() == from && c.Edge.Target().ID() == to && c.NewState == state {
			return true
		}
	}
	return false
}

func propagatedEvents(rec *events.Recorder, change events.ChangeType) []*events.PropagatedEdgeEvent {
	var result []*events.PropagatedEdgeEvent
	for _, ev := range rec.OfKind(events.KindPropagatedEdge) {
		if pe := ev.(*events.PropagatedEdgeEvent); pe.Change == change {
			result = append(result, pe)
		}
	}
	return result
}

func hasPropagated(list []*events.PropagatedEdgeEvent, from, to string) bool {
	for _, pe := range list {
		if pe.SourceID == from && pe.TargetID == to {
			return true
		}
	}
	return false
}

// propagatedBetween returns the propagated edge between two architecture
// nodes, or nil.
func propagatedBetween(rg *ReflexionGraph, from, to *graph.Node, edgeType string) *graph.Edge {
	return rg.findPropagated(from, to, edgeType)
}

// =============================================================================
// Consistency
// =============================================================================

type edgeKey struct {
	source, target, edgeType string
}

type edgeStatus struct {
	state   graph.State
	counter int
}

type snapshot struct {
	edges      map[string]edgeStatus
	propagated map[edgeKey]edgeStatus
	mapsTo     map[string]string
}

func takeSnapshot(rg *ReflexionGraph) snapshot {
	s := snapshot{
		edges:      make(map[string]edgeStatus),
		propagated: make(map[edgeKey]edgeStatus),
		mapsTo:     make(map[string]string),
	}
	for _, e := range rg.Graph().Edges() {
		status := edgeStatus{state: e.State(), counter: e.Counter()}
		switch {
		case e.IsMapsTo():
		case isPropagated(e):
			s.propagated[edgeKey{e.Source().ID(), e.Target().ID(), e.Type()}] = status
		default:
			s.edges[e.ID()] = status
		}
	}
	for _, n := range rg.Graph().Nodes() {
		if target := rg.MapsTo(n); target != nil {
			s.mapsTo[n.ID()] = target.ID()
		}
	}
	return s
}

// assertMatchesFromScratch recomputes a clone from scratch and compares it
// with the incrementally maintained state.
func assertMatchesFromScratch(t *testing.T, rg *ReflexionGraph) {
	t.Helper()
	assertCountersConsistent(t, rg)
	incremental := takeSnapshot(rg)
	clone := rg.Clone()
	require.NoError(t, clone.FromScratch(context.Background()))
	recomputed := takeSnapshot(clone)
	assert.Equal(t, recomputed.edges, incremental.edges, "edge states")
	assert.Equal(t, recomputed.propagated, incremental.propagated, "propagated edges")
	assert.Equal(t, recomputed.mapsTo, incremental.mapsTo, "mapping")
}

// assertCountersConsistent checks that every counter equals the number of
// dependencies backing it.
func assertCountersConsistent(t *testing.T, rg *ReflexionGraph) {
	t.Helper()
	lifted := make(map[*graph.Edge]int)
	for _, p := range rg.PropagatedEdges() {
		assert.Equal(t, len(rg.CausesOf(p)), p.Counter(), "counter of %v", p)
		if s := rg.AllowingEdgeOf(p); s != nil {
			lifted[s] += p.Counter()
		}
		for _, cause := range rg.CausesOf(p) {
			assert.Same(t, p, rg.PropagatedEdgeOf(cause))
			assert.Equal(t, p.State(), cause.State(), "state of %v", cause)
		}
	}
	for _, e := range rg.Graph().Edges() {
		if e.IsSpecified() {
			assert.Equal(t, lifted[e], e.Counter(), "counter of %v", e)
		}
	}
}
