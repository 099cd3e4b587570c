// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/NorasTech/detached-shell/cmd/nds/cli"
	"github.com/NorasTech/detached-shell/history"
	"github.com/NorasTech/detached-shell/session"
)

func historyCommand() *cli.Command {
	var all bool
	var limit int

	return &cli.Command{
		Name:    "history",
		Aliases: []string{"h", "hist"},
		Summary: "show session event logs",
		Usage:   "nds history <session> | nds history --all",
		Description: "Show the lifecycle events of a session: creation, attaches,\n" +
			"detaches, resizes, renames, and how it ended. Works for live\n" +
			"sessions and, by full id, for archived ones. With --all, events\n" +
			"from every session are merged into one timeline.",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flags.BoolVar(&all, "all", false, "merge events from every session")
			flags.IntVar(&limit, "limit", 50, "show at most the last N events (0 for no limit)")
			return flags
		},
		Run: func(args []string) error {
			dirs, err := session.ResolveDirs()
			if err != nil {
				return err
			}

			if all {
				if len(args) != 0 {
					return fmt.Errorf("--all takes no session reference")
				}
				entries, err := allEvents(dirs)
				if err != nil {
					return err
				}
				entries = lastN(entries, limit)
				return printEvents(entries, true)
			}

			if len(args) != 1 {
				return fmt.Errorf("expected exactly one session reference")
			}
			path, err := historyPath(dirs, args[0])
			if err != nil {
				return err
			}
			events, err := history.Read(path)
			if err != nil {
				return err
			}
			entries := make([]sessionEvent, 0, len(events))
			for _, event := range events {
				entries = append(entries, sessionEvent{event: event})
			}
			entries = lastN(entries, limit)
			return printEvents(entries, false)
		},
	}
}

// sessionEvent pairs an event with the session it came from, needed
// when timelines from several logs are merged.
type sessionEvent struct {
	id    string
	event history.Event
}

// allEvents reads every active and archived log under the history
// directories and merges them into one timeline ordered by timestamp.
// Unreadable logs are skipped; a corrupt file must not hide the rest.
func allEvents(dirs session.Dirs) ([]sessionEvent, error) {
	var entries []sessionEvent
	for _, dir := range []string{dirs.HistoryActiveDir(), dirs.HistoryArchivedDir()} {
		files, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read history directory: %w", err)
		}
		for _, file := range files {
			name := file.Name()
			id := strings.TrimSuffix(strings.TrimSuffix(name, ".zst"), ".log")
			events, err := history.Read(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			for _, event := range events {
				entries = append(entries, sessionEvent{id: id, event: event})
			}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].event.At.Before(entries[j].event.At)
	})
	return entries, nil
}

// lastN keeps the newest n entries; n <= 0 keeps everything.
func lastN(entries []sessionEvent, n int) []sessionEvent {
	if n > 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

func printEvents(entries []sessionEvent, withSession bool) error {
	if len(entries) == 0 {
		fmt.Println("no events")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	for _, entry := range entries {
		when := entry.event.At.Local().Format("2006-01-02 15:04:05")
		if withSession {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", when, entry.id, entry.event.Kind, eventDetail(entry.event))
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", when, entry.event.Kind, eventDetail(entry.event))
		}
	}
	return tw.Flush()
}

// historyPath locates the event log for a reference: the active log
// of a live session, or the archived log of an ended one (found by
// exact id, since names are not recorded in file names).
func historyPath(dirs session.Dirs, reference string) (string, error) {
	meta, err := session.Resolve(dirs, reference)
	if err == nil {
		return dirs.HistoryActivePath(meta.ID), nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return "", err
	}

	archived := dirs.HistoryArchivedPath(reference)
	if _, statErr := os.Stat(archived); statErr == nil {
		return archived, nil
	}
	return "", err
}

func eventDetail(event history.Event) string {
	switch event.Kind {
	case history.KindCreated, history.KindRenamed:
		return event.Name
	case history.KindAttached, history.KindDetached:
		return fmt.Sprintf("%d attached", event.Attached)
	case history.KindResized:
		return fmt.Sprintf("%dx%d", event.Rows, event.Cols)
	case history.KindExited:
		if event.Status != nil {
			return fmt.Sprintf("status %d", *event.Status)
		}
	}
	return ""
}
