// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command reflexion runs the reflexion analysis on a model file and reports
// where the implementation diverges from the intended architecture.
//
// Usage:
//
//	reflexion analyze --model model.yaml [--format json] [--fail-on-violations]
//	reflexion summary --model model.yaml
//	reflexion version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command line and maps the outcome onto an exit code.
func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return CLIExitSuccess
	case errors.Is(err, errViolations):
		return CLIExitFindings
	default:
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return CLIExitError
	}
}
