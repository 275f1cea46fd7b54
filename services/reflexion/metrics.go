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
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// defaultTracer is used unless WithTracer is given.
var defaultTracer = otel.Tracer("aleutian.reflexion")

// Prometheus metrics for the reflexion engine.
var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reflexion_operations_total",
		Help: "Total reflexion operations by operation and result",
	}, []string{"operation", "result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reflexion_run_duration_seconds",
		Help:    "Duration of full reflexion recomputations",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	propagatedEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reflexion_propagated_edges",
		Help: "Number of propagated architecture edges after the last full recomputation",
	})
)

// resultLabel classifies an operation outcome for metrics.
func resultLabel(err error) string {
	var corruptErr *CorruptStateError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &corruptErr):
		return "corrupt"
	case errors.Is(err, ErrArchitectureAnalysis):
		return "rejected"
	default:
		return "error"
	}
}

// recordOperation counts one public operation and passes err through.
func recordOperation(operation string, err error) error {
	operationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	return err
}

// startSpan starts a span on tracer with the given attributes.
func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
