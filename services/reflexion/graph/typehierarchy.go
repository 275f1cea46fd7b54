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
	"maps"
)

// TypeHierarchy relates edge types to their supertypes.
//
// Description:
//
//	Every type has at most one declared supertype. IsSubtypeOf is reflexive
//	and transitive. A nil or empty hierarchy degrades to plain type equality.
//
// Example:
//
//	h := graph.NewTypeHierarchy()
//	_ = h.Declare("Dynamic_Call", "Call")
//	h.IsSubtypeOf("Dynamic_Call", "Call") // true
type TypeHierarchy struct {
	super map[string]string
}

// NewTypeHierarchy creates an empty hierarchy.
func NewTypeHierarchy() *TypeHierarchy {
	return &TypeHierarchy{super: make(map[string]string)}
}

// Declare records super as the direct supertype of sub.
//
// Outputs:
//
//	error - ErrTypeCycle if super is already a subtype of sub.
func (h *TypeHierarchy) Declare(sub, super string) error {
	if h.IsSubtypeOf(super, sub) {
		return fmt.Errorf("%w: %s -> %s", ErrTypeCycle, sub, super)
	}
	h.super[sub] = super
	return nil
}

// IsSubtypeOf reports whether sub equals super or inherits from it.
func (h *TypeHierarchy) IsSubtypeOf(sub, super string) bool {
	if sub == super {
		return true
	}
	if h == nil {
		return false
	}
	seen := 0
	for cur, ok := h.super[sub]; ok && seen <= len(h.super); cur, ok = h.super[cur] {
		if cur == super {
			return true
		}
		seen++
	}
	return false
}

// Supertypes returns the chain of supertypes of t, nearest first.
func (h *TypeHierarchy) Supertypes(t string) []string {
	if h == nil {
		return nil
	}
	var result []string
	for cur, ok := h.super[t]; ok && len(result) <= len(h.super); cur, ok = h.super[cur] {
		result = append(result, cur)
	}
	return result
}

// Clone returns an independent copy.
func (h *TypeHierarchy) Clone() *TypeHierarchy {
	if h == nil {
		return nil
	}
	return &TypeHierarchy{super: maps.Clone(h.super)}
}
