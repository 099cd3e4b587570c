// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/session"
)

func newCommand() *cli.Command {
	var shell string
	var dir string
	var noAttach bool

	return &cli.Command{
		Name:    "new",
		Aliases: []string{"n"},
		Summary: "start a new session",
		Usage:   "nds new [name] [flags]",
		Examples: []cli.Example{
			{Description: "Named session in the current directory", Command: "nds new build"},
			{Description: "Start without attaching", Command: "nds new nightly --no-attach"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("new", pflag.ContinueOnError)
			flags.StringVar(&shell, "shell", "", "shell program (default: config, then $NDS_SHELL, $SHELL, /bin/sh)")
			flags.StringVar(&dir, "dir", "", "working directory for the shell (default: current directory)")
			flags.BoolVar(&noAttach, "no-attach", false, "create the session without attaching")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("expected at most one session name, got %d arguments", len(args))
			}
			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}
			opts := session.CreateOptions{
				Shell:      shell,
				WorkingDir: dir,
			}
			if len(args) == 1 {
				opts.Name = args[0]
			}
			return createAndAttach(dirs, opts, noAttach)
		},
	}
}

// terminalSize probes the controlling terminal; zero values let the
// supervisor fall back to 24x80.
func terminalSize() (rows, cols int) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return 0, 0
	}
	return rows, cols
}
