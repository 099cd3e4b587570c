// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/NorasTech/detached-shell/session"
)

func pickerFixture() pickerModel {
	return pickerModel{
		rows: []pickerRow{
			{meta: session.Metadata{ID: "aaaa1111", Name: "build"}},
			{meta: session.Metadata{ID: "bbbb2222"}},
		},
		keys: defaultPickerKeys(),
	}
}

func update(t *testing.T, m pickerModel, msg tea.Msg) (pickerModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(pickerModel), cmd
}

func TestPickerNavigatesAndSelects(t *testing.T) {
	t.Parallel()
	m := pickerFixture()

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 1 {
		t.Fatalf("cursor after down: got %d", m.cursor)
	}
	// Bottom of the list: down stays put.
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	if m.cursor != 1 {
		t.Fatalf("cursor past end: got %d", m.cursor)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	if m.cursor != 0 {
		t.Fatalf("cursor after up: got %d", m.cursor)
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.action != actionAttach {
		t.Errorf("action: got %d, want attach", m.action)
	}
	if m.cursor != 0 {
		t.Errorf("cursor: got %d, want 0", m.cursor)
	}
	if cmd == nil {
		t.Error("enter did not quit the program")
	}
}

func TestPickerCancelLeavesNoChoice(t *testing.T) {
	t.Parallel()
	m := pickerFixture()

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.action != actionCancel {
		t.Errorf("action after cancel: got %d", m.action)
	}
	if cmd == nil {
		t.Error("esc did not quit the program")
	}
}

func TestPickerManagementKeys(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input rune
		want  pickerAction
	}{
		{'n', actionNew},
		{'r', actionRename},
		{'x', actionKill},
	}
	for _, tc := range cases {
		m := pickerFixture()
		m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{tc.input}})
		if m.action != tc.want {
			t.Errorf("key %q: action got %d, want %d", tc.input, m.action, tc.want)
		}
		if cmd == nil {
			t.Errorf("key %q did not quit the program", tc.input)
		}
	}
}

func TestPickerViewMarksSelection(t *testing.T) {
	t.Parallel()
	m := pickerFixture()
	m.rows[1].attached = 2

	view := m.View()
	if view == "" {
		t.Fatal("empty view")
	}
	// The selected row carries the cursor marker; the attached count
	// shows on the busy session.
	for _, want := range []string{"> ", "build [aaaa1111]", "(2 attached)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}
