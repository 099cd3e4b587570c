// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/session"
)

func listCommand() *cli.Command {
	var asJSON bool
	var interactive bool

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls", "l"},
		Summary: "list live sessions",
		Usage:   "nds list [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.BoolVar(&asJSON, "json", false, "machine-readable output")
			flags.BoolVar(&interactive, "interactive", false, "pick a session and attach")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("list takes no arguments")
			}
			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}
			if interactive {
				return pickAndAttach(dirs, "")
			}
			sessions, err := session.List(dirs)
			if err != nil {
				return err
			}

			if asJSON {
				return printSessionsJSON(dirs, sessions)
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tATTACHED\tCREATED\tSHELL\tPID")
			for _, meta := range sessions {
				status, _ := session.ReadStatus(dirs, meta.ID)
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n",
					meta.ID,
					meta.Name,
					status.AttachedClients,
					meta.CreatedAt.Local().Format("2006-01-02 15:04"),
					meta.Shell,
					meta.PID,
				)
			}
			return tw.Flush()
		},
	}
}

// sessionListing is the JSON shape of one list entry: the metadata
// record plus the live attach count.
type sessionListing struct {
	session.Metadata
	AttachedClients int       `json:"attached_clients"`
	StatusUpdatedAt time.Time `json:"status_updated_at"`
}

func printSessionsJSON(dirs session.Dirs, sessions []session.Metadata) error {
	listings := make([]sessionListing, 0, len(sessions))
	for _, meta := range sessions {
		status, _ := session.ReadStatus(dirs, meta.ID)
		listings = append(listings, sessionListing{
			Metadata:        meta,
			AttachedClients: status.AttachedClients,
			StatusUpdatedAt: status.UpdatedAt,
		})
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(listings)
}
