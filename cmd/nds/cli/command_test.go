// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	t.Parallel()

	var ran []string
	root := &Command{
		Name: "nds",
		Subcommands: []*Command{
			{
				Name:    "list",
				Aliases: []string{"ls", "l"},
				Run: func(args []string) error {
					ran = append(ran, "list")
					return nil
				},
			},
		},
	}

	for _, name := range []string{"list", "ls", "l"} {
		if err := root.Execute([]string{name}); err != nil {
			t.Fatalf("Execute(%q): %v", name, err)
		}
	}
	if len(ran) != 3 {
		t.Errorf("dispatch count: got %d, want 3", len(ran))
	}
}

func TestExecuteSuggestsOnTypo(t *testing.T) {
	t.Parallel()

	root := &Command{
		Name: "nds",
		Subcommands: []*Command{
			{Name: "attach", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"attch"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "attach"`) {
		t.Errorf("typo error: got %v", err)
	}
}

func TestExecutePassesFlagsAndArgs(t *testing.T) {
	t.Parallel()

	var gotName string
	var gotArgs []string
	cmd := &Command{
		Name: "new",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("new", pflag.ContinueOnError)
			flags.StringVar(&gotName, "name", "", "session name")
			return flags
		},
		Run: func(args []string) error {
			gotArgs = args
			return nil
		},
	}

	if err := cmd.Execute([]string{"--name", "build", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotName != "build" {
		t.Errorf("flag: got %q", gotName)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "extra" {
		t.Errorf("args: got %v", gotArgs)
	}
}

func TestExecuteUnknownFlagSuggestion(t *testing.T) {
	t.Parallel()

	cmd := &Command{
		Name: "new",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("new", pflag.ContinueOnError)
			flags.String("shell", "", "shell override")
			return flags
		},
		Run: func([]string) error { return nil },
	}

	err := cmd.Execute([]string{"--shel", "zsh"})
	if err == nil || !strings.Contains(err.Error(), "--shell") {
		t.Errorf("flag typo error: got %v", err)
	}
}

func TestRootRunReceivesNonCommandArg(t *testing.T) {
	t.Parallel()

	var rootArgs []string
	root := &Command{
		Name: "nds",
		Subcommands: []*Command{
			{Name: "list", Run: func([]string) error { return nil }},
		},
		Run: func(args []string) error {
			rootArgs = args
			return nil
		},
	}

	// A bare session reference falls through to the root Run.
	if err := root.Execute([]string{"deadbeef"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rootArgs) != 1 || rootArgs[0] != "deadbeef" {
		t.Errorf("root args: got %v", rootArgs)
	}
}

func TestHelpOmitsHiddenCommands(t *testing.T) {
	t.Parallel()

	root := &Command{
		Name: "nds",
		Subcommands: []*Command{
			{Name: "list", Summary: "list sessions"},
			{Name: "__supervise", Hidden: true, Summary: "internal"},
		},
	}

	var help strings.Builder
	root.PrintHelp(&help)
	if strings.Contains(help.String(), "__supervise") {
		t.Errorf("hidden command leaked into help:\n%s", help.String())
	}
	if !strings.Contains(help.String(), "list") {
		t.Errorf("visible command missing from help:\n%s", help.String())
	}
}

func TestHelpListsAliases(t *testing.T) {
	t.Parallel()

	root := &Command{
		Name: "nds",
		Subcommands: []*Command{
			{Name: "attach", Aliases: []string{"a", "at"}, Summary: "attach to a session"},
		},
	}

	var help strings.Builder
	root.PrintHelp(&help)
	if !strings.Contains(help.String(), "attach (a, at)") {
		t.Errorf("aliases missing from help:\n%s", help.String())
	}
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"attach", "attach", 0},
		{"attch", "attach", 1},
		{"kil", "kill", 1},
		{"xyz", "attach", 6},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q): got %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	err := &ExitError{Code: 3}
	if err.ExitCode() != 3 {
		t.Errorf("ExitCode: got %d", err.ExitCode())
	}
	if err.Error() != "exit code 3" {
		t.Errorf("Error: got %q", err.Error())
	}
}
