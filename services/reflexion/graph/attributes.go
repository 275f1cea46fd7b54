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
	"maps"
	"slices"
)

// Attributes is the named attribute store shared by nodes and edges.
//
// Maps are allocated lazily; the zero value is ready to use.
type Attributes struct {
	strings map[string]string
	ints    map[string]int
	floats  map[string]float64
	toggles map[string]struct{}
}

// SetString sets a string attribute.
func (a *Attributes) SetString(name, value string) {
	if a.strings == nil {
		a.strings = make(map[string]string)
	}
	a.strings[name] = value
}

// GetString returns a string attribute and whether it is set.
func (a *Attributes) GetString(name string) (string, bool) {
	v, ok := a.strings[name]
	return v, ok
}

// UnsetString removes a string attribute.
func (a *Attributes) UnsetString(name string) {
	delete(a.strings, name)
}

// SetInt sets an int attribute.
func (a *Attributes) SetInt(name string, value int) {
	if a.ints == nil {
		a.ints = make(map[string]int)
	}
	a.ints[name] = value
}

// GetInt returns an int attribute and whether it is set.
func (a *Attributes) GetInt(name string) (int, bool) {
	v, ok := a.ints[name]
	return v, ok
}

// SetFloat sets a float attribute.
func (a *Attributes) SetFloat(name string, value float64) {
	if a.floats == nil {
		a.floats = make(map[string]float64)
	}
	a.floats[name] = value
}

// GetFloat returns a float attribute and whether it is set.
func (a *Attributes) GetFloat(name string) (float64, bool) {
	v, ok := a.floats[name]
	return v, ok
}

// SetToggle sets a toggle.
func (a *Attributes) SetToggle(name string) {
	if a.toggles == nil {
		a.toggles = make(map[string]struct{})
	}
	a.toggles[name] = struct{}{}
}

// UnsetToggle clears a toggle.
func (a *Attributes) UnsetToggle(name string) {
	delete(a.toggles, name)
}

// HasToggle reports whether a toggle is set.
func (a *Attributes) HasToggle(name string) bool {
	_, ok := a.toggles[name]
	return ok
}

// Toggles returns the set toggles in sorted order.
func (a *Attributes) Toggles() []string {
	return slices.Sorted(maps.Keys(a.toggles))
}

// CloneAttributes returns an independent copy.
func (a *Attributes) CloneAttributes() Attributes {
	return Attributes{
		strings: maps.Clone(a.strings),
		ints:    maps.Clone(a.ints),
		floats:  maps.Clone(a.floats),
		toggles: maps.Clone(a.toggles),
	}
}
