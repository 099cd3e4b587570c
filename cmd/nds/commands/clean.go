// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/history"
	"github.com/NorasTech/detached-shell/session"
)

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:    "clean",
		Summary: "remove leftovers of crashed sessions",
		Usage:   "nds clean",
		Description: "Remove the on-disk records of sessions whose supervisor is no\n" +
			"longer running. Their history logs get a crashed marker and are\n" +
			"archived.",
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("clean takes no arguments")
			}
			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}
			stale, err := session.FindStale(dirs)
			if err != nil {
				return err
			}

			for _, record := range stale {
				if err := session.RemoveFiles(dirs, record.ID); err != nil {
					return err
				}
				activePath := dirs.HistoryActivePath(record.ID)
				if _, err := os.Stat(activePath); err == nil {
					history.AppendTo(activePath, history.Event{
						Kind: history.KindCrashed,
						At:   time.Now(),
					})
					if err := history.Archive(activePath, dirs.HistoryArchivedPath(record.ID)); err != nil {
						return err
					}
				}
				os.Remove(dirs.LogPath(record.ID))
				fmt.Printf("cleaned %s\n", record.ID)
			}

			if len(stale) == 0 {
				fmt.Println("nothing to clean")
			}
			return nil
		},
	}
}
