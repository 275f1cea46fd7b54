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

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// Root node IDs used when a subgraph needs an artificial root.
const (
	ImplementationRootID = "IMPLEMENTATION-ROOT"
	ArchitectureRootID   = "ARCHITECTURE-ROOT"
)

// OriginalIDAttribute records the ID an edge had before it was renamed
// during assembly.
const OriginalIDAttribute = "Reflexion.Original_ID"

// Options configures the analysis.
type Options struct {
	// AllowDependenciesToParents makes dependencies from a node to one of
	// its architecture ancestors implicitly allowed. Default: true.
	AllowDependenciesToParents bool

	// Types decides edge type compatibility. Nil means type equality.
	Types *graph.TypeHierarchy

	// Logger receives diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Tracer creates spans for full recomputations and assembly.
	Tracer trace.Tracer
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		AllowDependenciesToParents: true,
		Logger:                     slog.Default(),
		Tracer:                     defaultTracer,
	}
}

// Option is a functional option for New and Assemble.
type Option func(*Options)

// WithAllowDependenciesToParents toggles the ancestor exemption.
func WithAllowDependenciesToParents(allow bool) Option {
	return func(o *Options) { o.AllowDependenciesToParents = allow }
}

// WithTypeHierarchy sets the edge type hierarchy used when lifting.
func WithTypeHierarchy(h *graph.TypeHierarchy) Option {
	return func(o *Options) { o.Types = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Options) {
		if tracer != nil {
			o.Tracer = tracer
		}
	}
}
