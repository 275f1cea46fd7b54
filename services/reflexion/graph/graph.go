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
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Graph is an ordered set of nodes and edges.
//
// Description:
//
//	Nodes and edges are indexed by ID and additionally kept in insertion
//	order, so every iteration over a graph is deterministic.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Graph struct {
	name string

	nodes    []*Node
	nodeByID map[string]*Node
	edges    []*Edge
	edgeByID map[string]*Edge
	options  GraphOptions
}

// NewGraph creates an empty graph.
//
// Example:
//
//	g := graph.NewGraph("architecture", graph.WithCapacity(16, 32))
func NewGraph(name string, opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Graph{
		name:     name,
		nodes:    make([]*Node, 0, options.NodeCapacity),
		nodeByID: make(map[string]*Node, options.NodeCapacity),
		edges:    make([]*Edge, 0, options.EdgeCapacity),
		edgeByID: make(map[string]*Edge, options.EdgeCapacity),
		options:  options,
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns a copy of all nodes in insertion order.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []*Edge { return slices.Clone(g.edges) }

// GetNode returns the node with the given ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	n, ok := g.nodeByID[id]
	return n, ok
}

// GetEdge returns the edge with the given ID.
func (g *Graph) GetEdge(id string) (*Edge, bool) {
	e, ok := g.edgeByID[id]
	return e, ok
}

// ContainsNode reports whether n is part of g.
func (g *Graph) ContainsNode(n *Node) bool {
	return n != nil && n.graph == g && g.nodeByID[n.id] == n
}

// ContainsEdge reports whether e is part of g.
func (g *Graph) ContainsEdge(e *Edge) bool {
	return e != nil && e.graph == g && g.edgeByID[e.id] == e
}

// Roots returns all nodes without a parent in insertion order.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, n := range g.nodes {
		if n.parent == nil {
			roots = append(roots, n)
		}
	}
	return roots
}

// AddNode adds a detached node. The node must have neither a parent nor
// children; hierarchy is built with AddChild once the node is contained.
//
// Outputs:
//
//	error - ErrNilElement, ErrAlreadyOwned, ErrDuplicateNode, ErrNotAnOrphan.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return ErrNilElement
	}
	if n.graph != nil {
		return fmt.Errorf("%w: node %s", ErrAlreadyOwned, n.id)
	}
	if _, exists := g.nodeByID[n.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.id)
	}
	if n.parent != nil || len(n.children) > 0 {
		return fmt.Errorf("%w: detached node %s carries hierarchy", ErrNotAnOrphan, n.id)
	}
	n.graph = g
	g.nodes = append(g.nodes, n)
	g.nodeByID[n.id] = n
	return nil
}

// AddEdge adds an edge whose endpoints are part of g. An empty edge ID is
// replaced by a fresh UUID.
func (g *Graph) AddEdge(e *Edge) error {
	if e == nil || e.source == nil || e.target == nil {
		return ErrNilElement
	}
	if e.graph != nil {
		return fmt.Errorf("%w: edge %s", ErrAlreadyOwned, e.id)
	}
	if !g.ContainsNode(e.source) || !g.ContainsNode(e.target) {
		return fmt.Errorf("%w: %s", ErrForeignNode, e)
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	if _, exists := g.edgeByID[e.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e.id)
	}
	e.graph = g
	g.edges = append(g.edges, e)
	g.edgeByID[e.id] = e
	e.source.outgoing = append(e.source.outgoing, e)
	e.target.incoming = append(e.target.incoming, e)
	return nil
}

// Connect creates and adds a new edge with a generated ID.
func (g *Graph) Connect(source, target *Node, edgeType string) (*Edge, error) {
	e := NewEdge("", source, target, edgeType)
	if err := g.AddEdge(e); err != nil {
		return nil, err
	}
	return e, nil
}

// RemoveEdge removes e from g. The edge keeps its endpoints so that it can
// still be inspected afterwards.
func (g *Graph) RemoveEdge(e *Edge) error {
	if !g.ContainsEdge(e) {
		return fmt.Errorf("%w: %v", ErrEdgeNotFound, e)
	}
	g.edges = slices.DeleteFunc(g.edges, func(x *Edge) bool { return x == e })
	delete(g.edgeByID, e.id)
	e.source.outgoing = slices.DeleteFunc(e.source.outgoing, func(x *Edge) bool { return x == e })
	e.target.incoming = slices.DeleteFunc(e.target.incoming, func(x *Edge) bool { return x == e })
	e.graph = nil
	return nil
}

// RenameEdge changes the ID of a contained edge.
//
// Outputs:
//
//	error - ErrEdgeNotFound, or ErrDuplicateEdge when newID is taken.
func (g *Graph) RenameEdge(e *Edge, newID string) error {
	if !g.ContainsEdge(e) {
		return fmt.Errorf("%w: %v", ErrEdgeNotFound, e)
	}
	if newID == e.id {
		return nil
	}
	if _, taken := g.edgeByID[newID]; taken || newID == "" {
		return fmt.Errorf("%w: %q", ErrDuplicateEdge, newID)
	}
	delete(g.edgeByID, e.id)
	e.id = newID
	g.edgeByID[newID] = e
	return nil
}

// RemoveNode removes n together with its incident edges. Children of n
// become roots and n is detached from its parent.
func (g *Graph) RemoveNode(n *Node) error {
	if !g.ContainsNode(n) {
		return fmt.Errorf("%w: %v", ErrNodeNotFound, n)
	}
	for _, e := range n.Outgoings() {
		_ = g.RemoveEdge(e)
	}
	for _, e := range n.Incomings() {
		_ = g.RemoveEdge(e)
	}
	for _, c := range n.Children() {
		c.Unparent()
	}
	n.Unparent()
	g.nodes = slices.DeleteFunc(g.nodes, func(x *Node) bool { return x == n })
	delete(g.nodeByID, n.id)
	n.graph = nil
	return nil
}

// FromTo returns all edges from source to target with the given type. An
// empty type matches every edge.
func (g *Graph) FromTo(source, target *Node, edgeType string) []*Edge {
	var result []*Edge
	for _, e := range source.outgoing {
		if e.target == target && (edgeType == "" || e.edgeType == edgeType) {
			result = append(result, e)
		}
	}
	return result
}

// AddRootNodeIfNecessary adds an artificial root above the current roots
// accepted by among (nil = all) unless there is exactly one such root.
//
// Outputs:
//
//	*Node - The new root, or nil when none was needed.
//	error - ErrDuplicateNode when id is taken.
func (g *Graph) AddRootNodeIfNecessary(id, nodeType string, among func(*Node) bool) (*Node, error) {
	var roots []*Node
	for _, r := range g.Roots() {
		if among == nil || among(r) {
			roots = append(roots, r)
		}
	}
	if len(roots) == 1 {
		return nil, nil
	}
	root := NewNode(id, nodeType)
	root.SetToggle(IsArtificialToggle)
	if err := g.AddNode(root); err != nil {
		return nil, err
	}
	for _, r := range roots {
		if err := root.AddChild(r); err != nil {
			return nil, err
		}
	}
	return root, nil
}
