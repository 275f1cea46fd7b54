// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// Default node types when a model leaves them out.
const (
	DefaultImplementationNodeType = "File"
	DefaultArchitectureNodeType   = "Component"
)

// =============================================================================
// Model Types
// =============================================================================

// Model describes the three input graphs of an analysis.
//
// Example:
//
//	implementation:
//	  nodes:
//	    - {id: ui.go}
//	    - {id: db.go}
//	  edges:
//	    - {from: ui.go, to: db.go, type: call}
//	architecture:
//	  nodes:
//	    - {id: UI}
//	    - {id: Storage}
//	  edges:
//	    - {from: UI, to: Storage, type: call}
//	mapping:
//	  - {from: ui.go, to: UI}
//	  - {from: db.go, to: Storage}
type Model struct {
	Implementation GraphSpec     `yaml:"implementation"`
	Architecture   GraphSpec     `yaml:"architecture"`
	Mapping        []MappingSpec `yaml:"mapping" validate:"dive"`
}

// GraphSpec lists the nodes and edges of one graph.
type GraphSpec struct {
	Nodes []NodeSpec `yaml:"nodes" validate:"dive"`
	Edges []EdgeSpec `yaml:"edges" validate:"dive"`
}

// NodeSpec is a node. Parent names another node of the same graph.
type NodeSpec struct {
	ID         string            `yaml:"id" validate:"required"`
	Type       string            `yaml:"type,omitempty"`
	Parent     string            `yaml:"parent,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// EdgeSpec is an edge. An empty ID gets a generated one. Optional marks a
// specified architecture edge that may be absent.
type EdgeSpec struct {
	ID       string `yaml:"id,omitempty"`
	From     string `yaml:"from" validate:"required"`
	To       string `yaml:"to" validate:"required"`
	Type     string `yaml:"type" validate:"required"`
	Optional bool   `yaml:"optional,omitempty"`
}

// MappingSpec maps an implementation node onto an architecture node.
type MappingSpec struct {
	ID   string `yaml:"id,omitempty"`
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required"`
}

// =============================================================================
// Loading
// =============================================================================

// LoadModel reads and validates a model file.
func LoadModel(path string) (*Model, error) {
	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}
	return ParseModel(data)
}

// ParseModel decodes and validates model YAML. Unknown keys are rejected.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := decodeStrict(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return &m, nil
}

// =============================================================================
// Building
// =============================================================================

// Build creates the implementation, architecture and mapping graphs.
//
// Description:
//
//	Elements are untagged; reflexion.Assemble tags them. The mapping graph
//	contains a copy of every node a mapping entry names, so it can be
//	passed to Assemble unchanged.
//
// Outputs:
//
//	impl, arch, mapping - The built graphs.
//	error               - ErrInvalidModel for unknown references, duplicate
//	                      IDs or hierarchy cycles.
func (m *Model) Build() (impl, arch, mapping *graph.Graph, err error) {
	if impl, err = m.Implementation.build("implementation", DefaultImplementationNodeType, false); err != nil {
		return nil, nil, nil, err
	}
	if arch, err = m.Architecture.build("architecture", DefaultArchitectureNodeType, true); err != nil {
		return nil, nil, nil, err
	}

	mapping = graph.NewGraph("mapping")
	copyNode := func(from *graph.Graph, id string) (*graph.Node, error) {
		if n, ok := mapping.GetNode(id); ok {
			return n, nil
		}
		original, ok := from.GetNode(id)
		if !ok {
			return nil, fmt.Errorf("%w: mapping names unknown %s node %q", ErrInvalidModel, from.Name(), id)
		}
		n := graph.NewNode(id, original.Type())
		if err := mapping.AddNode(n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
		return n, nil
	}
	for _, ms := range m.Mapping {
		source, err := copyNode(impl, ms.From)
		if err != nil {
			return nil, nil, nil, err
		}
		target, err := copyNode(arch, ms.To)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := mapping.AddEdge(graph.NewEdge(ms.ID, source, target, graph.MapsToType)); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
	}
	return impl, arch, mapping, nil
}

func (s GraphSpec) build(name, defaultType string, allowOptional bool) (*graph.Graph, error) {
	g := graph.NewGraph(name, graph.WithCapacity(len(s.Nodes), len(s.Edges)))
	for _, ns := range s.Nodes {
		nodeType := ns.Type
		if nodeType == "" {
			nodeType = defaultType
		}
		n := graph.NewNode(ns.ID, nodeType)
		for k, v := range ns.Attributes {
			n.SetString(k, v)
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, name, err)
		}
	}
	for _, ns := range s.Nodes {
		if ns.Parent == "" {
			continue
		}
		parent, ok := g.GetNode(ns.Parent)
		if !ok {
			return nil, fmt.Errorf("%w: %s node %q has unknown parent %q", ErrInvalidModel, name, ns.ID, ns.Parent)
		}
		child, _ := g.GetNode(ns.ID)
		if err := parent.AddChild(child); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, name, err)
		}
	}
	for _, es := range s.Edges {
		if es.Type == graph.MapsToType {
			return nil, fmt.Errorf("%w: %s edge %s->%s uses the mapping type", ErrInvalidModel, name, es.From, es.To)
		}
		if es.Optional && !allowOptional {
			return nil, fmt.Errorf("%w: only architecture edges can be optional", ErrInvalidModel)
		}
		source, ok := g.GetNode(es.From)
		if !ok {
			return nil, fmt.Errorf("%w: %s edge from unknown node %q", ErrInvalidModel, name, es.From)
		}
		target, ok := g.GetNode(es.To)
		if !ok {
			return nil, fmt.Errorf("%w: %s edge to unknown node %q", ErrInvalidModel, name, es.To)
		}
		e := graph.NewEdge(es.ID, source, target, es.Type)
		if es.Optional {
			e.SetToggle(graph.IsOptionalToggle)
		}
		if err := g.AddEdge(e); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, name, err)
		}
	}
	return g, nil
}
