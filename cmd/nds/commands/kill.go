// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/lib/clock"
	"github.com/NorasTech/detached-shell/session"
)

func killCommand() *cli.Command {
	return &cli.Command{
		Name:    "kill",
		Aliases: []string{"k"},
		Summary: "terminate a session",
		Usage:   "nds kill <session>...",
		Description: "Terminate sessions. The supervisor gets SIGTERM and a grace\n" +
			"period to disconnect clients and clean up; a supervisor that\n" +
			"does not exit in time is killed outright.",
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("expected at least one session reference")
			}
			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}
			for _, reference := range args {
				meta, err := session.Resolve(dirs, reference)
				if err != nil {
					return err
				}
				if err := session.Kill(dirs, meta, clock.Real()); err != nil {
					return err
				}
				fmt.Printf("killed %s\n", meta.DisplayName())
			}
			return nil
		},
	}
}
