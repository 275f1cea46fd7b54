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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/events"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// packages builds the implementation p{c1, c2{g}}, q and the architecture
// A, B with the specified edge A -call-> B.
func packages(t *testing.T) *fixture {
	f := newFixture(t)
	f.arch("A", "")
	f.arch("B", "")
	f.edge("s", "A", "B", call)
	f.impl("p", "")
	f.impl("c1", "p")
	f.impl("c2", "p")
	f.impl("g", "c2")
	f.impl("q", "")
	f.edge("d1", "c1", "q", call)
	f.edge("d2", "g", "q", call)
	f.edge("d3", "q", "g", call)
	return f
}

func TestMapping_Transitivity(t *testing.T) {
	f := packages(t)
	f.mapTo("p", "A")
	f.mapTo("q", "B")
	rg, _ := f.run()

	for _, id := range []string{"p", "c1", "c2", "g"} {
		assert.Same(t, f.n["A"], rg.MapsTo(f.n[id]), id)
	}
	assert.True(t, rg.IsExplicitlyMapped(f.n["p"]))
	assert.False(t, rg.IsExplicitlyMapped(f.n["g"]))
	assert.Equal(t, 2, f.e["s"].Counter())

	_, err := rg.AddToMapping(f.n["c2"], f.n["B"], false)
	require.NoError(t, err)
	assert.Same(t, f.n["B"], rg.MapsTo(f.n["g"]), "nearest explicit mapping wins")
	assert.Same(t, f.n["A"], rg.MapsTo(f.n["c1"]))
	assert.Equal(t, graph.StateImplicitlyAllowed, f.e["d2"].State(), "g and q both map to B")
	assert.Equal(t, 1, f.e["s"].Counter())
	assertMatchesFromScratch(t, rg)

	require.NoError(t, rg.DeleteFromMapping(f.n["c2"], f.n["B"]))
	assert.Same(t, f.n["A"], rg.MapsTo(f.n["g"]))
	assert.Equal(t, 2, f.e["s"].Counter())
	assertMatchesFromScratch(t, rg)
}

func TestAddToMapping_Preconditions(t *testing.T) {
	f := packages(t)
	f.mapTo("p", "A")
	rg, rec := f.run()
	rec.Reset()

	_, err := rg.AddToMapping(f.n["p"], f.n["B"], false)
	var mapped *AlreadyExplicitlyMappedError
	require.ErrorAs(t, err, &mapped)
	assert.Same(t, f.n["A"], mapped.Target)

	var notIn *NotInSubgraphError
	_, err = rg.AddToMapping(f.n["A"], f.n["B"], false)
	require.ErrorAs(t, err, &notIn)
	assert.Equal(t, graph.SubgraphImplementation, notIn.Expected)
	_, err = rg.AddToMapping(f.n["q"], f.n["p"], false)
	require.ErrorAs(t, err, &notIn)
	assert.Equal(t, graph.SubgraphArchitecture, notIn.Expected)

	var notMapped *NotExplicitlyMappedError
	assert.ErrorAs(t, rg.DeleteFromMapping(f.n["p"], f.n["B"]), &notMapped)
	assert.ErrorAs(t, rg.DeleteFromMapping(f.n["c1"], f.n["A"]), &notMapped)
	assert.Empty(t, rec.Events())
}

func TestAddToMapping_Override(t *testing.T) {
	f := packages(t)
	f.mapTo("p", "A")
	f.mapTo("q", "B")
	rg, rec := f.run()
	rec.Reset()

	edge, err := rg.AddToMapping(f.n["p"], f.n["B"], true)
	require.NoError(t, err)
	assert.Same(t, f.n["B"], rg.ExplicitMapping(f.n["p"]))
	assert.Same(t, f.n["B"], edge.Target())
	assert.Len(t, rg.Graph().FromTo(f.n["p"], f.n["A"], graph.MapsToType), 0)

	mapsTo := rec.OfKind(events.KindMapsTo)
	require.Len(t, mapsTo, 2)
	assert.Equal(t, events.Removal, mapsTo[0].(*events.MapsToChange).Change)
	assert.Equal(t, events.Addition, mapsTo[1].(*events.MapsToChange).Change)
	assert.Equal(t, graph.StateAbsent, f.e["s"].State())
	assertMatchesFromScratch(t, rg)
}

func TestDanglingEdges(t *testing.T) {
	f := packages(t)
	f.mapTo("p", "A")
	rg, rec := f.run()
	d1 := f.e["d1"]
	require.Equal(t, graph.StateUnmapped, d1.State(), "q is unmapped")
	assert.Nil(t, rg.PropagatedEdgeOf(d1))
	rec.Reset()

	require.NoError(t, rg.DeleteEdgeFromImplementation(d1))
	assert.Empty(t, archChanges(rec))
	assert.Empty(t, rec.OfKind(events.KindPropagatedEdge))
	require.Len(t, rec.OfKind(events.KindEdge), 1)
	assert.False(t, rg.Graph().ContainsEdge(d1))
	assert.Equal(t, graph.StateAbsent, f.e["s"].State())

	e, err := rg.AddEdgeToImplementation(f.n["g"], f.n["q"], "use")
	require.NoError(t, err)
	assert.Equal(t, graph.StateUnmapped, e.State())
	assertMatchesFromScratch(t, rg)
}

func TestAddEdgeToImplementation(t *testing.T) {
	f := packages(t)
	f.mapTo("p", "A")
	f.mapTo("q", "B")
	rg, _ := f.run()

	e, err := rg.AddEdgeToImplementation(f.n["c2"], f.n["q"], call)
	require.NoError(t, err)
	assert.True(t, e.IsInImplementation())
	assert.Equal(t, graph.StateAllowed, e.State())
	assert.Equal(t, 3, f.e["s"].Counter())
	assert.Len(t, rg.CausesOf(rg.PropagatedEdgeOf(e)), 3)

	_, err = rg.AddEdgeToImplementation(f.n["c2"], f.n["A"], call)
	var notIn *NotInSubgraphError
	assert.ErrorAs(t, err, &notIn)
	_, err = rg.AddEdgeToImplementation(f.n["c2"], f.n["q"], graph.MapsToType)
	assert.ErrorIs(t, err, ErrNotSupported)

	require.NoError(t, rg.DeleteEdgeFromImplementation(e))
	assert.Equal(t, 2, f.e["s"].Counter())
	assertMatchesFromScratch(t, rg)
}

func TestImplementationHierarchy(t *testing.T) {
	f := packages(t)
	f.mapTo("p", "A")
	f.mapTo("q", "B")
	rg, _ := f.run()
	c2, g := f.n["c2"], f.n["g"]

	require.NoError(t, rg.UnparentInImplementation(c2))
	assert.Nil(t, rg.MapsTo(c2))
	assert.Nil(t, rg.MapsTo(g))
	assert.Equal(t, graph.StateUnmapped, f.e["d2"].State())
	assert.Equal(t, graph.StateUnmapped, f.e["d3"].State())
	assert.Equal(t, 1, f.e["s"].Counter())
	assertMatchesFromScratch(t, rg)

	var isOrphan *IsAnOrphanError
	assert.ErrorAs(t, rg.UnparentInImplementation(c2), &isOrphan)

	require.NoError(t, rg.AddChildInImplementation(c2, f.n["q"]))
	assert.Same(t, f.n["B"], rg.MapsTo(g))
	assert.Equal(t, graph.StateImplicitlyAllowed, f.e["d2"].State())
	assertMatchesFromScratch(t, rg)

	var orphan *NotAnOrphanError
	assert.ErrorAs(t, rg.AddChildInImplementation(c2, f.n["p"]), &orphan)
	var cyclic *CyclicHierarchyError
	require.NoError(t, rg.UnparentInImplementation(f.n["q"]))
	assert.ErrorAs(t, rg.AddChildInImplementation(f.n["q"], g), &cyclic)
}

func TestImplementationHierarchy_ExplicitChildKeepsMapping(t *testing.T) {
	f := packages(t)
	f.mapTo("p", "A")
	f.mapTo("g", "B")
	rg, _ := f.run()
	g := f.n["g"]

	require.NoError(t, rg.UnparentInImplementation(g))
	assert.Same(t, f.n["B"], rg.MapsTo(g))
	require.NoError(t, rg.AddChildInImplementation(g, f.n["c1"]))
	assert.Same(t, f.n["B"], rg.MapsTo(g))
	assertMatchesFromScratch(t, rg)
}

func TestDeleteFromImplementation(t *testing.T) {
	t.Run("children move to the parent", func(t *testing.T) {
		f := packages(t)
		f.mapTo("p", "A")
		f.mapTo("c2", "B")
		f.mapTo("q", "B")
		rg, _ := f.run()

		require.NoError(t, rg.DeleteFromImplementation(f.n["c2"], false))
		assert.False(t, rg.Graph().ContainsNode(f.n["c2"]))
		assert.Same(t, f.n["p"], f.n["g"].Parent())
		assert.Same(t, f.n["A"], rg.MapsTo(f.n["g"]), "g now inherits from p")
		assert.Equal(t, graph.StateAllowed, f.e["d2"].State())
		assertMatchesFromScratch(t, rg)
	})

	t.Run("orphans become roots", func(t *testing.T) {
		f := packages(t)
		f.mapTo("p", "A")
		f.mapTo("q", "B")
		rg, rec := f.run()
		rec.Reset()

		require.NoError(t, rg.DeleteFromImplementation(f.n["p"], true))
		assert.Nil(t, f.n["c1"].Parent())
		assert.Nil(t, rg.MapsTo(f.n["c1"]))
		assert.Equal(t, graph.StateAbsent, f.e["s"].State())
		require.Len(t, rec.OfKind(events.KindNode), 1)
		assertMatchesFromScratch(t, rg)
	})

	t.Run("incident edges are deleted", func(t *testing.T) {
		f := packages(t)
		f.mapTo("p", "A")
		f.mapTo("q", "B")
		rg, _ := f.run()

		require.NoError(t, rg.DeleteFromImplementation(f.n["q"], false))
		for _, id := range []string{"d1", "d2", "d3"} {
			assert.False(t, rg.Graph().ContainsEdge(f.e[id]), id)
		}
		assert.Empty(t, rg.PropagatedEdges())
		assertMatchesFromScratch(t, rg)
	})
}

func TestAddNode_Preconditions(t *testing.T) {
	f := packages(t)
	rg, _ := f.run()

	var contained *AlreadyContainedError
	assert.ErrorAs(t, rg.AddNodeToImplementation(f.n["p"]), &contained)
	assert.ErrorAs(t, rg.AddNodeToArchitecture(graph.NewNode("A", "Component")), &contained)
	assert.ErrorIs(t, rg.AddNodeToImplementation(nil), graph.ErrNilElement)
}
