// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/config"
	"github.com/NorasTech/detached-shell/lib/clock"
	"github.com/NorasTech/detached-shell/session"
)

// Root returns the nds command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "nds",
		Summary: "detachable shell sessions",
		Description: "nds runs shells in detachable sessions. A session's shell keeps\n" +
			"running when you disconnect; reattach later from any terminal,\n" +
			"or from several at once.",
		Usage: "nds [session] | nds <command> [flags]",
		Examples: []cli.Example{
			{Description: "Start a new session and attach", Command: "nds new build"},
			{Description: "Reattach by name or id prefix", Command: "nds attach build"},
			{Description: "Pick a session interactively", Command: "nds"},
		},
		Subcommands: []*cli.Command{
			newCommand(),
			attachCommand(),
			listCommand(),
			infoCommand(),
			renameCommand(),
			killCommand(),
			cleanCommand(),
			historyCommand(),
			versionCommand(),
			superviseCommand(),
		},
		Run: runRoot,
	}
}

// runRoot handles the bare invocations: "nds" opens the picker (or
// starts a first session when none exist), "nds <reference>" is
// shorthand for attach.
func runRoot(args []string) error {
	dirs, err := session.ResolveDirs()
	if err != nil {
		return err
	}

	switch len(args) {
	case 0:
		sessions, err := session.List(dirs)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return createAndAttach(dirs, session.CreateOptions{}, false)
		}
		return pickAndAttach(dirs, "")
	case 1:
		meta, err := session.Resolve(dirs, args[0])
		if err != nil {
			return err
		}
		return attachLoop(dirs, meta)
	default:
		return fmt.Errorf("expected at most one session reference, got %d arguments", len(args))
	}
}

// loadConfig reads the user configuration for the resolved root.
func loadConfig(dirs session.Dirs) (config.Config, error) {
	return config.Load(dirs.Root)
}

// attachLoop attaches to a session and follows switch requests until
// the user detaches for good or a session ends. The shell's exit
// status becomes this process's exit code.
func attachLoop(dirs session.Dirs, meta session.Metadata) error {
	for {
		result, err := session.Attach(meta)
		if err != nil {
			return err
		}
		switch {
		case result.ShellExited:
			if result.ShellStatus != 0 {
				return &cli.ExitError{Code: result.ShellStatus}
			}
			return nil
		case result.ConnectionLost:
			return &cli.ExitError{Code: 1}
		case result.SwitchRequested:
			next, err := pickSession(dirs, meta.ID)
			if err != nil {
				return err
			}
			if next == nil {
				return nil
			}
			meta = *next
		default:
			// Plain detach.
			return nil
		}
	}
}

// pickAndAttach shows the picker and attaches to the chosen session.
func pickAndAttach(dirs session.Dirs, currentID string) error {
	meta, err := pickSession(dirs, currentID)
	if err != nil || meta == nil {
		return err
	}
	return attachLoop(dirs, *meta)
}

// createAndAttach starts a new session and, unless noAttach is set,
// attaches the calling terminal to it.
func createAndAttach(dirs session.Dirs, opts session.CreateOptions, noAttach bool) error {
	cfg, err := loadConfig(dirs)
	if err != nil {
		return err
	}
	if opts.Shell == "" {
		opts.Shell = cfg.Shell
	}
	if opts.Rows == 0 && opts.Cols == 0 {
		opts.Rows, opts.Cols = terminalSize()
	}

	meta, err := session.Create(dirs, opts, clock.Real())
	if err != nil {
		return err
	}
	fmt.Printf("[New session %s]\n", meta.DisplayName())
	if noAttach {
		return nil
	}
	return attachLoop(dirs, meta)
}
