// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the YAML inputs of the reflexion tools: the analysis
// and logging configuration, and model files describing an implementation,
// an architecture and a mapping.
//
// Thread Safety:
//
//	All exported functions are safe for concurrent use. Loaded values are
//	plain data and may be shared once loading returns.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianReflexion/pkg/logging"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// =============================================================================
// Constants
// =============================================================================

// MaxYAMLFileSize is the largest configuration or model file accepted (4MB).
const MaxYAMLFileSize = 4 * 1024 * 1024

// Sentinel errors for loading.
var (
	// ErrFileTooLarge is returned for files above MaxYAMLFileSize.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidModel is returned when a model file is inconsistent.
	ErrInvalidModel = errors.New("invalid model")
)

var validate = validator.New()

// =============================================================================
// Types
// =============================================================================

// Config is the root of the configuration file.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AnalysisConfig tunes the reflexion analysis.
type AnalysisConfig struct {
	// AllowDependenciesToParents exempts dependencies onto architecture
	// ancestors. Nil keeps the analysis default (true).
	AllowDependenciesToParents *bool `yaml:"allow_dependencies_to_parents,omitempty"`

	// EdgeTypes maps an edge type onto its direct supertype.
	EdgeTypes map[string]string `yaml:"edge_types,omitempty" validate:"dive,keys,required,endkeys,required"`
}

// LoggingConfig selects where and how much the tools log.
type LoggingConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	JSON    bool   `yaml:"json"`
	LogDir  string `yaml:"log_dir,omitempty"`
	Service string `yaml:"service" validate:"omitempty,max=64,excludesall=/"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Service: "reflexion"},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads and validates the configuration file at path.
//
// Outputs:
//
//	Config - Defaults overlaid with the file contents.
//	error  - ErrFileTooLarge, ErrInvalidConfig, or a read/parse error.
func Load(path string) (Config, error) {
	data, err := readLimited(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes and validates configuration YAML. Unknown keys are
// rejected. Empty input yields Default().
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := cfg.Analysis.TypeHierarchy(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %s has %d bytes (max %d)", ErrFileTooLarge, path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

// TypeHierarchy builds the edge type hierarchy. Declarations are applied
// in key order so a cycle is always reported the same way.
func (a AnalysisConfig) TypeHierarchy() (*graph.TypeHierarchy, error) {
	if len(a.EdgeTypes) == 0 {
		return nil, nil
	}
	subs := make([]string, 0, len(a.EdgeTypes))
	for sub := range a.EdgeTypes {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	h := graph.NewTypeHierarchy()
	for _, sub := range subs {
		if err := h.Declare(sub, a.EdgeTypes[sub]); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Options converts the analysis settings into reflexion options.
func (a AnalysisConfig) Options() ([]reflexion.Option, error) {
	var opts []reflexion.Option
	if a.AllowDependenciesToParents != nil {
		opts = append(opts, reflexion.WithAllowDependenciesToParents(*a.AllowDependenciesToParents))
	}
	h, err := a.TypeHierarchy()
	if err != nil {
		return nil, err
	}
	if h != nil {
		opts = append(opts, reflexion.WithTypeHierarchy(h))
	}
	return opts, nil
}

// LoggerConfig converts the logging settings into a logging.Config.
func (l LoggingConfig) LoggerConfig() (logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		JSON:    l.JSON,
		LogDir:  l.LogDir,
		Service: l.Service,
	}, nil
}
