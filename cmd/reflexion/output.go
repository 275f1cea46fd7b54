// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Analysis completed with violations
	CLIExitError    = 2 // Operation failed
)

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
}

// EdgeReport is one classified edge.
type EdgeReport struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Counter   int    `json:"counter,omitempty"`
	Specified bool   `json:"specified,omitempty"`
}

// SummaryReport counts architecture edges and dependencies per state.
type SummaryReport struct {
	Edges        map[string]int `json:"edges"`
	Dependencies map[string]int `json:"dependencies"`

	// Violations is the number of divergent and absent edges.
	Violations int `json:"violations"`
}

// AnalysisReport is the output of the analyze command.
type AnalysisReport struct {
	Architecture   []EdgeReport  `json:"architecture"`
	Implementation []EdgeReport  `json:"implementation"`
	Summary        SummaryReport `json:"summary"`
}

// NewAnalysisReport collects the edges of an analyzed graph in graph order.
// Artificial roots never carry edges, so every edge is reported.
func NewAnalysisReport(rg *reflexion.ReflexionGraph) AnalysisReport {
	report := AnalysisReport{
		Architecture:   []EdgeReport{},
		Implementation: []EdgeReport{},
		Summary:        NewSummaryReport(rg.Summary()),
	}
	for _, e := range rg.Graph().Edges() {
		er := EdgeReport{
			ID:        originalID(e),
			Source:    e.Source().ID(),
			Target:    e.Target().ID(),
			Type:      e.Type(),
			State:     e.State().String(),
			Counter:   e.Counter(),
			Specified: e.IsSpecified(),
		}
		switch {
		case e.IsInArchitecture():
			report.Architecture = append(report.Architecture, er)
		case e.IsInImplementation():
			er.Counter = 0
			report.Implementation = append(report.Implementation, er)
		}
	}
	return report
}

func originalID(e *graph.Edge) string {
	if id, ok := e.GetString(reflexion.OriginalIDAttribute); ok {
		return id
	}
	return e.ID()
}

// NewSummaryReport converts a summary into named per-state counts. States
// without edges are left out.
func NewSummaryReport(s reflexion.Summary) SummaryReport {
	report := SummaryReport{
		Edges:        map[string]int{},
		Dependencies: map[string]int{},
		Violations:   s.EdgesIn(graph.StateDivergent) + s.EdgesIn(graph.StateAbsent),
	}
	for i := 0; i < graph.NumStates; i++ {
		state := graph.State(i)
		if s.EdgesIn(state) == 0 {
			continue
		}
		report.Edges[state.String()] = s.EdgesIn(state)
		report.Dependencies[state.String()] = s.DependenciesIn(state)
	}
	return report
}

// WriteJSON writes data wrapped in a CommandResult.
func WriteJSON(w io.Writer, command string, start time.Time, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(CommandResult{
		APIVersion: "1.0",
		Command:    command,
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    true,
		Data:       data,
	})
}

// WriteAnalysisText writes the report as aligned tables.
func WriteAnalysisText(w io.Writer, report AnalysisReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHITECTURE\tFROM\tTO\tTYPE\tSTATE\tCOUNT")
	for _, e := range report.Architecture {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", e.ID, e.Source, e.Target, e.Type, e.State, e.Counter)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "IMPLEMENTATION\tFROM\tTO\tTYPE\tSTATE\t")
	for _, e := range report.Implementation {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", e.ID, e.Source, e.Target, e.Type, e.State)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d violation(s)\n", report.Summary.Violations)
	return err
}

// WriteSummaryText writes one line per state in state order.
func WriteSummaryText(w io.Writer, report SummaryReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tEDGES\tDEPENDENCIES")
	for i := 0; i < graph.NumStates; i++ {
		name := graph.State(i).String()
		if n, ok := report.Edges[name]; ok {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", name, n, report.Dependencies[name])
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d violation(s)\n", report.Violations)
	return err
}
