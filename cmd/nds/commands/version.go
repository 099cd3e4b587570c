// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/lib/version"
)

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print the nds version",
		Usage:   "nds version",
		Run: func(args []string) error {
			fmt.Printf("nds %s\n", version.Info())
			return nil
		},
	}
}
