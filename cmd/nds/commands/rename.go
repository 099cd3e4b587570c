// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/history"
	"github.com/NorasTech/detached-shell/session"
)

func renameCommand() *cli.Command {
	var clear bool

	return &cli.Command{
		Name:    "rename",
		Aliases: []string{"rn"},
		Summary: "rename a session",
		Usage:   "nds rename <session> <new-name> | nds rename <session> --clear",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("rename", pflag.ContinueOnError)
			flags.BoolVar(&clear, "clear", false, "remove the session's name")
			return flags
		},
		Run: func(args []string) error {
			var newName string
			switch {
			case clear && len(args) == 1:
				newName = ""
			case !clear && len(args) == 2:
				newName = args[1]
			default:
				return fmt.Errorf("expected a session reference and a new name (or --clear)")
			}

			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}
			meta, err := session.Resolve(dirs, args[0])
			if err != nil {
				return err
			}
			renamed, err := session.Rename(dirs, meta.ID, newName)
			if err != nil {
				return err
			}
			// Best-effort: the supervisor owns the log, but O_APPEND
			// writes of whole records do not interleave.
			history.AppendTo(dirs.HistoryActivePath(meta.ID), history.Event{
				Kind: history.KindRenamed,
				At:   time.Now(),
				Name: renamed.Name,
			})
			fmt.Printf("renamed %s to %s\n", meta.DisplayName(), renamed.DisplayName())
			return nil
		},
	}
}
