// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/session"
)

func attachCommand() *cli.Command {
	return &cli.Command{
		Name:    "attach",
		Aliases: []string{"a", "at"},
		Summary: "attach to a session",
		Usage:   "nds attach <session>",
		Description: "Attach the current terminal to a session. The reference is a\n" +
			"session id, a name, or a unique prefix of either.\n\n" +
			"While attached: ~d (at the start of a line) or Ctrl-D on an\n" +
			"empty line detaches, ~s opens the session switcher, ~~ sends a\n" +
			"literal tilde.",
		Examples: []cli.Example{
			{Description: "By name", Command: "nds attach build"},
			{Description: "By id prefix", Command: "nds a 3f"},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one session reference")
			}
			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}
			meta, err := session.Resolve(dirs, args[0])
			if err != nil {
				return err
			}
			return attachLoop(dirs, meta)
		},
	}
}
