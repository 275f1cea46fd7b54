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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// layered is UI -> Logic -> Data with a data file calling back into the UI.
const layered = `
implementation:
  nodes:
    - {id: ui.go}
    - {id: logic.go}
    - {id: db.go}
  edges:
    - {id: d1, from: ui.go, to: logic.go, type: call}
    - {id: d2, from: logic.go, to: db.go, type: call}
    - {id: d3, from: db.go, to: ui.go, type: call}
architecture:
  nodes:
    - {id: UI}
    - {id: Logic}
    - {id: Data}
  edges:
    - {id: s1, from: UI, to: Logic, type: call}
    - {id: s2, from: Logic, to: Data, type: call}
    - {id: s3, from: UI, to: Data, type: call, optional: true}
mapping:
  - {from: ui.go, to: UI}
  - {from: logic.go, to: Logic}
  - {from: db.go, to: Data}
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestAnalyze_Text(t *testing.T) {
	model := writeTemp(t, "model.yaml", layered)
	stdout, stderr, err := runCLI(t, "analyze", "--model", model)
	require.NoError(t, err)

	assert.Contains(t, stdout, "ARCHITECTURE")
	assert.Contains(t, stdout, "IMPLEMENTATION")
	assert.Regexp(t, `s1\s+UI\s+Logic\s+call\s+convergent\s+1`, stdout)
	assert.Regexp(t, `s3\s+UI\s+Data\s+call\s+allowedAbsent\s+0`, stdout)
	assert.Regexp(t, `d3\s+db\.go\s+ui\.go\s+call\s+divergent`, stdout)
	assert.Contains(t, stdout, "1 violation(s)")
	assert.Contains(t, stderr, "analysis complete")
}

func TestAnalyze_JSON(t *testing.T) {
	model := writeTemp(t, "model.yaml", layered)
	stdout, _, err := runCLI(t, "analyze", "--model", model, "--format", "json")
	require.NoError(t, err)

	var result struct {
		Command string         `json:"command"`
		Success bool           `json:"success"`
		Data    AnalysisReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "analyze", result.Command)
	assert.True(t, result.Success)

	states := map[string]string{}
	for _, e := range result.Data.Implementation {
		states[e.ID] = e.State
	}
	assert.Equal(t, map[string]string{"d1": "allowed", "d2": "allowed", "d3": "divergent"}, states)

	specified := 0
	for _, e := range result.Data.Architecture {
		if e.Specified {
			specified++
		}
	}
	assert.Equal(t, 3, specified)
	assert.Len(t, result.Data.Architecture, 6, "three specified and three propagated edges")
	assert.Equal(t, 1, result.Data.Summary.Violations)
}

func TestAnalyze_FailOnViolations(t *testing.T) {
	model := writeTemp(t, "model.yaml", layered)
	_, _, err := runCLI(t, "analyze", "--model", model, "--fail-on-violations")
	assert.ErrorIs(t, err, errViolations)

	assert.Equal(t, CLIExitFindings, execute(context.Background(),
		[]string{"analyze", "--model", model, "--fail-on-violations", "--log-level", "error"}))
}

func TestSummary(t *testing.T) {
	model := writeTemp(t, "model.yaml", layered)
	stdout, _, err := runCLI(t, "summary", "--model", model)
	require.NoError(t, err)
	assert.Regexp(t, `convergent\s+2\s+2`, stdout)
	assert.Regexp(t, `allowed\s+2\s+2`, stdout)
	assert.Regexp(t, `divergent\s+1\s+1`, stdout)
	assert.Regexp(t, `allowedAbsent\s+1\s+0`, stdout)

	stdout, _, err = runCLI(t, "summary", "--model", model, "--format", "json")
	require.NoError(t, err)
	var result struct {
		Data SummaryReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, 2, result.Data.Edges["convergent"])
	assert.Equal(t, 1, result.Data.Violations)
}

func TestConfigFile(t *testing.T) {
	// Without the hierarchy a static call is not allowed by the call edge.
	model := writeTemp(t, "model.yaml", `
implementation:
  nodes: [{id: a.go}, {id: b.go}]
  edges: [{id: d, from: a.go, to: b.go, type: static_call}]
architecture:
  nodes: [{id: A}, {id: B}]
  edges: [{id: s, from: A, to: B, type: call}]
mapping:
  - {from: a.go, to: A}
  - {from: b.go, to: B}
`)
	stdout, _, err := runCLI(t, "summary", "--model", model)
	require.NoError(t, err)
	assert.Regexp(t, `divergent\s+1\s+1`, stdout)

	cfg := writeTemp(t, "reflexion.yaml", `
analysis:
  edge_types:
    static_call: call
logging:
  level: debug
`)
	stdout, stderr, err := runCLI(t, "--config", cfg, "summary", "--model", model)
	require.NoError(t, err)
	assert.Regexp(t, `convergent\s+1\s+1`, stdout)
	assert.NotContains(t, stdout, "divergent")
	assert.Contains(t, stderr, "configuration loaded")
}

func TestErrors(t *testing.T) {
	model := writeTemp(t, "model.yaml", layered)

	_, _, err := runCLI(t, "analyze")
	assert.Error(t, err, "model flag is required")

	_, _, err = runCLI(t, "analyze", "--model", model, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, _, err = runCLI(t, "--log-level", "loud", "version")
	assert.Error(t, err)

	_, _, err = runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := writeTemp(t, "bad.yaml", "implementation:\n  nodes:\n    - {id: a, parent: nope}\n")
	_, _, err = runCLI(t, "analyze", "--model", bad)
	assert.ErrorContains(t, err, "invalid model")

	assert.Equal(t, CLIExitError, execute(context.Background(), []string{"analyze", "--model", bad}))
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "reflexion "+Version+"\n", stdout)
}
