// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/NorasTech/detached-shell/cmd/nds/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that manage their own output (like attach
		// propagating the shell's exit status) return an ExitError
		// with the desired code. Don't print a redundant "error:"
		// line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := setupLogging(os.Args[1:])
	return commands.Root().Execute(args)
}

// setupLogging configures the default logger and strips the global
// --debug flag. Client-side commands are silent by default; --debug
// routes slog to stderr at debug level. The supervisor replaces the
// default logger with its per-session file handler.
func setupLogging(args []string) []string {
	handler := slog.Handler(slog.NewTextHandler(io.Discard, nil))
	filtered := args[:0:0]
	for _, arg := range args {
		if arg == "--debug" {
			handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
			continue
		}
		filtered = append(filtered, arg)
	}
	slog.SetDefault(slog.New(handler))
	return filtered
}
