// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/session"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:    "info",
		Aliases: []string{"i"},
		Summary: "show session details",
		Usage:   "nds info <session>",
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
			status, err := session.ReadStatus(dirs, meta.ID)
			if err != nil {
				return err
			}

			fmt.Printf("id:          %s\n", meta.ID)
			if meta.Name != "" {
				fmt.Printf("name:        %s\n", meta.Name)
			}
			fmt.Printf("pid:         %d\n", meta.PID)
			fmt.Printf("created:     %s\n", meta.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("user:        %s\n", meta.User)
			fmt.Printf("shell:       %s\n", strings.Join(meta.Argv, " "))
			fmt.Printf("working dir: %s\n", meta.WorkingDir)
			fmt.Printf("socket:      %s\n", meta.Socket)
			fmt.Printf("attached:    %d\n", status.AttachedClients)
			if !status.UpdatedAt.IsZero() {
				fmt.Printf("last change: %s\n", status.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
