// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LogObserver writes every event to a structured logger at debug level.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver. A nil logger uses slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (l *LogObserver) OnNext(event ChangeEvent) {
	l.logger.Debug("reflexion change",
		slog.String("kind", event.Kind().String()),
		slog.String("subgraph", event.Affected().String()),
		slog.String("event", event.String()),
	)
}

func (l *LogObserver) OnError(err error) {
	l.logger.Error("reflexion error", slog.String("error", err.Error()))
}

func (l *LogObserver) OnCompleted() {
	l.logger.Debug("reflexion event stream completed")
}

// MetricsObserver counts events on an OpenTelemetry meter.
//
// Metrics:
//
//	reflexion_change_events_total  {kind, subgraph}
//	reflexion_state_transitions_total {state}
//	reflexion_observer_errors_total
type MetricsObserver struct {
	events      metric.Int64Counter
	transitions metric.Int64Counter
	errors      metric.Int64Counter
}

// NewMetricsObserver registers the counters on meter.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	events, err := meter.Int64Counter("reflexion_change_events_total",
		metric.WithDescription("Reflexion change events by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	transitions, err := meter.Int64Counter("reflexion_state_transitions_total",
		metric.WithDescription("Edge state transitions by target state"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	errs, err := meter.Int64Counter("reflexion_observer_errors_total",
		metric.WithDescription("Errors reported to reflexion observers"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}
	return &MetricsObserver{events: events, transitions: transitions, errors: errs}, nil
}

func (m *MetricsObserver) OnNext(event ChangeEvent) {
	ctx := context.Background()
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", event.Kind().String()),
		attribute.String("subgraph", event.Affected().String()),
	))
	if ec, ok := event.(*EdgeChange); ok {
		m.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", ec.NewState.String()),
		))
	}
}

func (m *MetricsObserver) OnError(error) {
	m.errors.Add(context.Background(), 1)
}

func (m *MetricsObserver) OnCompleted() {}
