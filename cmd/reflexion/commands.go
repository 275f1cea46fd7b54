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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReflexion/pkg/logging"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/config"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/session"
)

// errViolations is returned by analyze with --fail-on-violations when
// divergent or absent edges remain.
var errViolations = errors.New("architecture violations found")

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *logging.Logger
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "reflexion",
		Short: "Compare an implementation against its intended architecture",
		Long: `reflexion maps implementation entities onto architecture components and
classifies every dependency as convergent, divergent, absent or allowed.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the reflexion configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd(a), newSummaryCmd(a), newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.Default()
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}

	lc, err := a.cfg.Logging.LoggerConfig()
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()
	a.logger = logging.New(lc)
	a.logger.Debug("configuration loaded", "config", a.configPath, "command", cmd.Name())
	return nil
}

// analyze loads the model, runs the analysis on a session and returns a
// snapshot of the result.
//
// Description:
//
//	The analysis runs on a session worker so the request honours command
//	cancellation the same way a long lived service would.
func (a *app) analyze(ctx context.Context, modelPath string) (*reflexion.ReflexionGraph, error) {
	start := time.Now()
	model, err := config.LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	impl, arch, mapping, err := model.Build()
	if err != nil {
		return nil, err
	}

	opts, err := a.cfg.Analysis.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, reflexion.WithLogger(a.logger.Slog()))
	rg, err := reflexion.Assemble(ctx, impl, arch, mapping, opts...)
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", modelPath, err)
	}

	s := session.New(rg, session.WithLogger(a.logger.Slog()), session.WithQueueSize(1))
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Do(ctx, func(rg *reflexion.ReflexionGraph) error { return rg.Run(ctx) }); err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", modelPath, err)
	}
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("analysis complete",
		"model", modelPath,
		"nodes", snapshot.Graph().NodeCount(),
		"edges", snapshot.Graph().EdgeCount(),
		"duration_ms", time.Since(start).Milliseconds())
	return snapshot, nil
}

// =============================================================================
// ANALYZE COMMAND
// =============================================================================

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		modelPath        string
		format           string
		failOnViolations bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify every dependency of a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode, err := parseFormat(format)
			if err != nil {
				return err
			}
			start := time.Now()
			rg, err := a.analyze(cmd.Context(), modelPath)
			if err != nil {
				return err
			}
			report := NewAnalysisReport(rg)
			if jsonMode {
				err = WriteJSON(cmd.OutOrStdout(), "analyze", start, report)
			} else {
				err = WriteAnalysisText(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			if failOnViolations && report.Summary.Violations > 0 {
				return errViolations
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "Model file with implementation, architecture and mapping")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text or json)")
	cmd.Flags().BoolVar(&failOnViolations, "fail-on-violations", false, "Exit with code 1 when divergent or absent edges remain")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

// =============================================================================
// SUMMARY COMMAND
// =============================================================================

func newSummaryCmd(a *app) *cobra.Command {
	var (
		modelPath string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count architecture edges and dependencies per state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode, err := parseFormat(format)
			if err != nil {
				return err
			}
			start := time.Now()
			rg, err := a.analyze(cmd.Context(), modelPath)
			if err != nil {
				return err
			}
			summary := NewSummaryReport(rg.Summary())
			if jsonMode {
				return WriteJSON(cmd.OutOrStdout(), "summary", start, summary)
			}
			return WriteSummaryText(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "Model file with implementation, architecture and mapping")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

// =============================================================================
// VERSION COMMAND
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "reflexion %s\n", Version)
			return err
		},
	}
}

func parseFormat(format string) (jsonMode bool, err error) {
	switch format {
	case "", "text":
		return false, nil
	case "json":
		return true, nil
	default:
		return false, fmt.Errorf("unknown format %q (want text or json)", format)
	}
}
