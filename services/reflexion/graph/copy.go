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

// =============================================================================
// Copying and Filtering
// =============================================================================

// cloneNode copies everything but hierarchy and edges.
func cloneNode(n *Node) *Node {
	return &Node{
		Attributes: n.CloneAttributes(),
		id:         n.id,
		nodeType:   n.nodeType,
		subgraph:   n.subgraph,
	}
}

// cloneEdge copies e onto the given endpoints under the given ID.
func cloneEdge(e *Edge, id string, source, target *Node) *Edge {
	return &Edge{
		Attributes: e.CloneAttributes(),
		id:         id,
		edgeType:   e.edgeType,
		source:     source,
		target:     target,
		subgraph:   e.subgraph,
		state:      e.state,
		counter:    e.counter,
	}
}

// Copy returns a deep copy of g. IDs, attributes, subgraph tags, hierarchy,
// states and counters are preserved, as is the order of nodes, children and
// edges.
func (g *Graph) Copy() *Graph {
	return g.SubgraphBy(g.name, nil, nil)
}

// SubgraphBy returns an independent copy restricted to the nodes accepted by
// keepNode and the edges accepted by keepEdge. Nil predicates accept
// everything. Edges are only kept when both endpoints are kept. A kept node
// whose parent is dropped becomes a root.
func (g *Graph) SubgraphBy(name string, keepNode func(*Node) bool, keepEdge func(*Edge) bool) *Graph {
	result := NewGraph(name, WithCapacity(len(g.nodes), len(g.edges)))
	for _, n := range g.nodes {
		if keepNode == nil || keepNode(n) {
			c := cloneNode(n)
			c.graph = result
			result.nodes = append(result.nodes, c)
			result.nodeByID[c.id] = c
		}
	}
	for _, n := range g.nodes {
		p, ok := result.nodeByID[n.id]
		if !ok {
			continue
		}
		for _, child := range n.children {
			if c, ok := result.nodeByID[child.id]; ok {
				c.parent = p
				p.children = append(p.children, c)
			}
		}
	}
	for _, e := range g.edges {
		if keepEdge != nil && !keepEdge(e) {
			continue
		}
		src, okS := result.nodeByID[e.source.id]
		tgt, okT := result.nodeByID[e.target.id]
		if !okS || !okT {
			continue
		}
		// IDs are unique in g, so AddEdge cannot fail here.
		_ = result.AddEdge(cloneEdge(e, e.id, src, tgt))
	}
	return result
}

// MergeWith copies all nodes and edges of other into g.
//
// Description:
//
//	Node IDs must not overlap; the merge is rejected before anything is
//	copied if they do. Edge IDs that are already taken in g are passed to
//	rename, which returns the replacement ID. The hierarchy of other is
//	reproduced below the copied nodes.
//
// Inputs:
//
//	other  - The graph to copy from. It is not modified.
//	rename - Resolves edge ID collisions. Nil rejects collisions.
//
// Outputs:
//
//	map[string]string - Old to new ID of every renamed edge.
//	error             - ErrDuplicateNode or ErrDuplicateEdge.
func (g *Graph) MergeWith(other *Graph, rename func(id string) string) (map[string]string, error) {
	for _, n := range other.nodes {
		if _, exists := g.nodeByID[n.id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.id)
		}
	}
	renamed := make(map[string]string)
	planned := make(map[string]struct{}, len(other.edges))
	for _, e := range other.edges {
		id := e.id
		if _, taken := g.edgeByID[id]; taken {
			if rename == nil {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateEdge, id)
			}
			id = rename(id)
			renamed[e.id] = id
		}
		if _, dup := planned[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEdge, id)
		}
		if _, taken := g.edgeByID[id]; taken {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEdge, id)
		}
		planned[id] = struct{}{}
	}

	for _, n := range other.nodes {
		c := cloneNode(n)
		c.graph = g
		g.nodes = append(g.nodes, c)
		g.nodeByID[c.id] = c
	}
	for _, n := range other.nodes {
		p := g.nodeByID[n.id]
		for _, child := range n.children {
			c := g.nodeByID[child.id]
			c.parent = p
			p.children = append(p.children, c)
		}
	}
	for _, e := range other.edges {
		id := e.id
		if r, ok := renamed[id]; ok {
			id = r
		}
		clone := cloneEdge(e, id, g.nodeByID[e.source.id], g.nodeByID[e.target.id])
		if err := g.AddEdge(clone); err != nil {
			return nil, err
		}
	}
	return renamed, nil
}
