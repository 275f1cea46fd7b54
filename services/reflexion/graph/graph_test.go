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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAddNode(t *testing.T, g *Graph, id string) *Node {
	t.Helper()
	n := NewNode(id, "Component")
	require.NoError(t, g.AddNode(n))
	return n
}

func mustAddEdge(t *testing.T, g *Graph, id string, from, to *Node, edgeType string) *Edge {
	t.Helper()
	e := NewEdge(id, from, to, edgeType)
	require.NoError(t, g.AddEdge(e))
	return e
}

// buildTree creates the hierarchy
//
//	     r
//	    / \
//	   a   b
//	  / \
//	 c   d
//
// and the edges c->b (call) and d->a (use).
func buildTree(t *testing.T) (*Graph, map[string]*Node) {
	t.Helper()
	g := NewGraph("tree")
	nodes := map[string]*Node{}
	for _, id := range []string{"r", "a", "b", "c", "d"} {
		nodes[id] = mustAddNode(t, g, id)
	}
	require.NoError(t, nodes["r"].AddChild(nodes["a"]))
	require.NoError(t, nodes["r"].AddChild(nodes["b"]))
	require.NoError(t, nodes["a"].AddChild(nodes["c"]))
	require.NoError(t, nodes["a"].AddChild(nodes["d"]))
	mustAddEdge(t, g, "e1", nodes["c"], nodes["b"], "call")
	mustAddEdge(t, g, "e2", nodes["d"], nodes["a"], "use")
	return g, nodes
}

func ids(nodes []*Node) []string {
	result := make([]string, len(nodes))
	for i, n := range nodes {
		result[i] = n.ID()
	}
	return result
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph("g")
	n := mustAddNode(t, g, "x")

	assert.True(t, g.ContainsNode(n))
	assert.Equal(t, g, n.Graph())
	assert.ErrorIs(t, g.AddNode(n), ErrAlreadyOwned)
	assert.ErrorIs(t, g.AddNode(NewNode("x", "Other")), ErrDuplicateNode)
	assert.ErrorIs(t, g.AddNode(nil), ErrNilElement)

	other := NewGraph("other")
	assert.False(t, other.ContainsNode(n))
}

func TestGraph_AddNodeRejectsDetachedHierarchy(t *testing.T) {
	g := NewGraph("g")
	parent := NewNode("p", "Component")
	child := NewNode("c", "Component")
	require.NoError(t, parent.AddChild(child))

	assert.ErrorIs(t, g.AddNode(child), ErrNotAnOrphan)
	assert.ErrorIs(t, g.AddNode(parent), ErrNotAnOrphan)

	contained := mustAddNode(t, g, "x")
	assert.ErrorIs(t, contained.AddChild(NewNode("y", "Component")), ErrForeignNode)
}

func TestGraph_AddEdge(t *testing.T) {
	g := NewGraph("g")
	a := mustAddNode(t, g, "a")
	b := mustAddNode(t, g, "b")

	t.Run("generated id", func(t *testing.T) {
		e, err := g.Connect(a, b, "call")
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID())
		assert.Equal(t, []*Edge{e}, a.Outgoings())
		assert.Equal(t, []*Edge{e}, b.Incomings())
	})

	t.Run("duplicate id", func(t *testing.T) {
		mustAddEdge(t, g, "dup", a, b, "call")
		assert.ErrorIs(t, g.AddEdge(NewEdge("dup", b, a, "call")), ErrDuplicateEdge)
	})

	t.Run("foreign endpoint", func(t *testing.T) {
		stranger := NewNode("s", "Component")
		assert.ErrorIs(t, g.AddEdge(NewEdge("", a, stranger, "call")), ErrForeignNode)
	})

	t.Run("from to", func(t *testing.T) {
		assert.Len(t, g.FromTo(a, b, "call"), 2)
		assert.Empty(t, g.FromTo(b, a, ""))
	})
}

func TestGraph_RemoveNode(t *testing.T) {
	g, n := buildTree(t)

	require.NoError(t, g.RemoveNode(n["a"]))

	assert.False(t, g.ContainsNode(n["a"]))
	assert.Nil(t, n["c"].Parent())
	assert.Nil(t, n["d"].Parent())
	assert.Equal(t, []string{"b"}, ids(n["r"].Children()))
	assert.Equal(t, 1, g.EdgeCount(), "d->a must be gone")
	assert.Equal(t, 0, n["d"].OutDegree())
	assert.ErrorIs(t, g.RemoveNode(n["a"]), ErrNodeNotFound)
}

func TestGraph_RemoveEdge(t *testing.T) {
	g, n := buildTree(t)
	e, ok := g.GetEdge("e1")
	require.True(t, ok)

	require.NoError(t, g.RemoveEdge(e))

	assert.False(t, g.ContainsEdge(e))
	assert.Equal(t, n["c"], e.Source(), "removed edges keep their endpoints")
	assert.Equal(t, 0, n["b"].InDegree())
	assert.ErrorIs(t, g.RemoveEdge(e), ErrEdgeNotFound)
}

func TestGraph_RenameEdge(t *testing.T) {
	g, _ := buildTree(t)
	e, _ := g.GetEdge("e1")

	require.NoError(t, g.RenameEdge(e, "calls"))
	assert.Equal(t, "calls", e.ID())
	_, ok := g.GetEdge("e1")
	assert.False(t, ok)
	got, ok := g.GetEdge("calls")
	require.True(t, ok)
	assert.Same(t, e, got)

	assert.ErrorIs(t, g.RenameEdge(e, "e2"), ErrDuplicateEdge)
	assert.NoError(t, g.RenameEdge(e, "calls"))
	assert.ErrorIs(t, g.RenameEdge(NewEdge("x", e.Source(), e.Target(), "call"), "y"), ErrEdgeNotFound)
}

func TestNode_Hierarchy(t *testing.T) {
	g, n := buildTree(t)

	assert.Equal(t, []string{"c", "a", "r"}, ids(n["c"].Ascendants()))
	assert.Equal(t, []string{"c", "d", "a", "b", "r"}, ids(n["r"].Descendants()))
	assert.True(t, n["c"].IsDescendantOf(n["r"]))
	assert.False(t, n["c"].IsDescendantOf(n["c"]))
	assert.True(t, n["c"].IsDescendantOrSelf(n["c"]))
	assert.False(t, n["b"].IsDescendantOf(n["a"]))
	assert.Equal(t, 2, n["d"].Level())
	assert.Equal(t, []string{"r"}, ids(g.Roots()))
}

func TestNode_AddChildRejectsCyclesAndParents(t *testing.T) {
	_, n := buildTree(t)

	n["a"].Unparent()
	assert.ErrorIs(t, n["c"].AddChild(n["a"]), ErrCyclicHierarchy)
	assert.ErrorIs(t, n["a"].AddChild(n["a"]), ErrCyclicHierarchy)
	assert.ErrorIs(t, n["b"].AddChild(n["c"]), ErrNotAnOrphan)
	assert.ErrorIs(t, n["b"].Reparent(n["b"]), ErrCyclicHierarchy)

	require.NoError(t, n["c"].Reparent(n["b"]))
	assert.Equal(t, n["b"], n["c"].Parent())
	assert.Equal(t, []string{"d"}, ids(n["a"].Children()))
}

func TestNode_SubgraphTagging(t *testing.T) {
	g, n := buildTree(t)
	require.NoError(t, n["a"].SetSubgraph(SubgraphArchitecture))
	assert.True(t, n["a"].IsInArchitecture())

	require.NoError(t, n["a"].SetSubgraph(SubgraphImplementation))
	assert.True(t, n["a"].IsInImplementation())
	assert.False(t, n["a"].IsInArchitecture(), "tags are exclusive")
	assert.ErrorIs(t, n["a"].SetSubgraph(SubgraphMapping), ErrInvalidSubgraph)

	mapsTo := mustAddEdge(t, g, "m", n["c"], n["b"], MapsToType)
	assert.Equal(t, SubgraphMapping, mapsTo.Subgraph())
	assert.ErrorIs(t, mapsTo.SetSubgraph(SubgraphImplementation), ErrInvalidSubgraph)

	e, _ := g.GetEdge("e1")
	assert.ErrorIs(t, e.SetSubgraph(SubgraphMapping), ErrInvalidSubgraph)
}

func TestGraph_Copy(t *testing.T) {
	g, n := buildTree(t)
	n["a"].SetToggle(IsOptionalToggle)
	n["a"].SetInt("Metric.Lines", 42)
	e, _ := g.GetEdge("e1")
	e.SetState(StateConvergent)
	e.SetCounter(3)

	c := g.Copy()

	require.Equal(t, g.NodeCount(), c.NodeCount())
	require.Equal(t, g.EdgeCount(), c.EdgeCount())
	ca, ok := c.GetNode("a")
	require.True(t, ok)
	assert.NotSame(t, n["a"], ca)
	assert.True(t, ca.HasToggle(IsOptionalToggle))
	v, _ := ca.GetInt("Metric.Lines")
	assert.Equal(t, 42, v)
	assert.Equal(t, []string{"c", "d"}, ids(ca.Children()))

	ce, _ := c.GetEdge("e1")
	assert.Equal(t, StateConvergent, ce.State())
	assert.Equal(t, 3, ce.Counter())

	ca.SetToggle("changed")
	assert.False(t, n["a"].HasToggle("changed"), "copies are independent")
}

func TestGraph_SubgraphBy(t *testing.T) {
	g, _ := buildTree(t)

	sub := g.SubgraphBy("sub",
		func(n *Node) bool { return n.ID() != "a" },
		func(e *Edge) bool { return e.Type() == "call" })

	assert.Equal(t, 4, sub.NodeCount())
	c, _ := sub.GetNode("c")
	assert.Nil(t, c.Parent(), "parent was filtered out")
	assert.Equal(t, 1, sub.EdgeCount())
	assert.ElementsMatch(t, []string{"r", "c", "d"}, ids(sub.Roots()))
}

func TestGraph_MergeWith(t *testing.T) {
	g, _ := buildTree(t)

	other := NewGraph("other")
	x := mustAddNode(t, other, "x")
	y := mustAddNode(t, other, "y")
	require.NoError(t, x.AddChild(y))
	mustAddEdge(t, other, "e1", y, x, "call")
	mustAddEdge(t, other, "fresh", x, y, "call")

	renamed, err := g.MergeWith(other, func(id string) string { return id + "-A" })
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"e1": "e1-A"}, renamed)
	_, ok := g.GetEdge("e1-A")
	assert.True(t, ok)
	_, ok = g.GetEdge("fresh")
	assert.True(t, ok)
	gy, _ := g.GetNode("y")
	assert.Equal(t, "x", gy.Parent().ID())
	assert.Equal(t, 2, other.EdgeCount(), "source graph is untouched")

	clash := NewGraph("clash")
	mustAddNode(t, clash, "a")
	_, err = g.MergeWith(clash, nil)
	assert.ErrorIs(t, err, ErrDuplicateNode)

	edgeClash := NewGraph("edge-clash")
	p := mustAddNode(t, edgeClash, "p")
	mustAddEdge(t, edgeClash, "e2", p, p, "call")
	_, err = g.MergeWith(edgeClash, nil)
	assert.ErrorIs(t, err, ErrDuplicateEdge)
	_, ok = g.GetNode("p")
	assert.False(t, ok, "rejected merges copy nothing")
}

func TestGraph_AddRootNodeIfNecessary(t *testing.T) {
	g, _ := buildTree(t)
	root, err := g.AddRootNodeIfNecessary("ROOT", "Root", nil)
	require.NoError(t, err)
	assert.Nil(t, root, "single rooted graphs are left alone")

	multi := NewGraph("multi")
	mustAddNode(t, multi, "a")
	mustAddNode(t, multi, "b")
	root, err = multi.AddRootNodeIfNecessary("ROOT", "Root", nil)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.True(t, root.HasToggle(IsArtificialToggle))
	assert.Equal(t, []string{"a", "b"}, ids(root.Children()))
	assert.Equal(t, []*Node{root}, multi.Roots())

	empty := NewGraph("empty")
	root, err = empty.AddRootNodeIfNecessary("ROOT", "Root", nil)
	require.NoError(t, err)
	assert.NotNil(t, root)

	filtered := NewGraph("filtered")
	mustAddNode(t, filtered, "a")
	mustAddNode(t, filtered, "b")
	root, err = filtered.AddRootNodeIfNecessary("ROOT", "Root", func(n *Node) bool { return n.ID() == "a" })
	require.NoError(t, err)
	assert.Nil(t, root, "only accepted roots are counted")
}

func TestState_Names(t *testing.T) {
	for i := 0; i < NumStates; i++ {
		s := State(i)
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseState("bogus")
	assert.Error(t, err)
	assert.Equal(t, "state(99)", State(99).String())

	assert.True(t, IsSpecifiedState(StateAbsent))
	assert.True(t, IsSpecifiedState(StateAllowedAbsent))
	assert.False(t, IsSpecifiedState(StateDivergent))
	assert.False(t, IsSpecifiedState(StateUndefined))
}

func TestTypeHierarchy(t *testing.T) {
	h := NewTypeHierarchy()
	require.NoError(t, h.Declare("Dynamic_Call", "Call"))
	require.NoError(t, h.Declare("Call", "Dependency"))

	assert.True(t, h.IsSubtypeOf("Dynamic_Call", "Dependency"))
	assert.True(t, h.IsSubtypeOf("Call", "Call"))
	assert.False(t, h.IsSubtypeOf("Dependency", "Call"))
	assert.Equal(t, []string{"Call", "Dependency"}, h.Supertypes("Dynamic_Call"))
	assert.ErrorIs(t, h.Declare("Dependency", "Dynamic_Call"), ErrTypeCycle)

	var none *TypeHierarchy
	assert.True(t, none.IsSubtypeOf("Call", "Call"))
	assert.False(t, none.IsSubtypeOf("Dynamic_Call", "Call"))

	clone := h.Clone()
	require.NoError(t, clone.Declare("Access", "Dependency"))
	assert.False(t, h.IsSubtypeOf("Access", "Dependency"))
}
