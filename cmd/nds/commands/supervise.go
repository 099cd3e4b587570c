// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/session"
)

// superviseCommand is the hidden re-exec entry point: the create path
// spawns "nds __supervise" in its own session to become a session
// supervisor. Not for direct use.
func superviseCommand() *cli.Command {
	var req session.SuperviseRequest

	return &cli.Command{
		Name:   session.SuperviseCommand,
		Hidden: true,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet(session.SuperviseCommand, pflag.ContinueOnError)
			flags.StringVar(&req.ID, "id", "", "session id")
			flags.StringVar(&req.Name, "name", "", "session name")
			flags.StringVar(&req.Shell, "shell", "", "shell program")
			flags.StringVar(&req.WorkingDir, "dir", "", "working directory")
			flags.IntVar(&req.Rows, "rows", 0, "initial rows")
			flags.IntVar(&req.Cols, "cols", 0, "initial cols")
			return flags
		},
		Run: func(args []string) error {
			if req.ID == "" || req.Shell == "" {
				return fmt.Errorf("supervise requires --id and --shell")
			}
			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(dirs)
			if err != nil {
				return err
			}
			if status := session.Supervise(dirs, cfg, req); status != 0 {
				return &cli.ExitError{Code: status}
			}
			return nil
		},
	}
}
