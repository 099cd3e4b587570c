// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NorasTech/detached-shell/lib/clock"
	"github.com/NorasTech/detached-shell/session"
)

// pickSession shows the interactive session switcher and returns the
// session to attach to, or nil when the user cancels. Management
// actions (new, rename, kill) are handled here and return to the
// picker. currentID marks the session the user came from (via the ~s
// escape); it is listed but flagged, so switching "back" is a
// deliberate act.
func pickSession(dirs session.Dirs, currentID string) (*session.Metadata, error) {
	for {
		action, meta, err := runPicker(dirs, currentID)
		if err != nil {
			return nil, err
		}
		switch action {
		case actionAttach:
			return meta, nil

		case actionNew:
			created, err := createDefaultSession(dirs)
			if err != nil {
				return nil, err
			}
			return created, nil

		case actionRename:
			if err := renamePrompt(dirs, *meta); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}

		case actionKill:
			if err := session.Kill(dirs, *meta, clock.Real()); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			} else {
				fmt.Printf("killed %s\n", meta.DisplayName())
			}

		default:
			return nil, nil
		}
	}
}

// runPicker runs one round of the picker UI.
func runPicker(dirs session.Dirs, currentID string) (pickerAction, *session.Metadata, error) {
	sessions, err := session.List(dirs)
	if err != nil {
		return actionCancel, nil, err
	}
	if len(sessions) == 0 {
		return actionCancel, nil, fmt.Errorf("no sessions to pick from")
	}

	rows := make([]pickerRow, 0, len(sessions))
	cursor := 0
	for i, meta := range sessions {
		status, _ := session.ReadStatus(dirs, meta.ID)
		rows = append(rows, pickerRow{
			meta:     meta,
			attached: status.AttachedClients,
			current:  meta.ID == currentID,
		})
		// Start on the first session that is not the one we came from.
		if meta.ID == currentID && cursor == i {
			cursor = i + 1
		}
	}
	if cursor >= len(rows) {
		cursor = 0
	}

	model := pickerModel{rows: rows, cursor: cursor, action: actionCancel, keys: defaultPickerKeys()}
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return actionCancel, nil, fmt.Errorf("session picker: %w", err)
	}
	result := final.(pickerModel)
	if result.action == actionCancel || result.action == actionNew {
		return result.action, nil, nil
	}
	return result.action, &result.rows[result.cursor].meta, nil
}

// createDefaultSession starts a session with the configured defaults,
// for the picker's new-session key.
func createDefaultSession(dirs session.Dirs) (*session.Metadata, error) {
	cfg, err := loadConfig(dirs)
	if err != nil {
		return nil, err
	}
	opts := session.CreateOptions{Shell: cfg.Shell}
	opts.Rows, opts.Cols = terminalSize()
	meta, err := session.Create(dirs, opts, clock.Real())
	if err != nil {
		return nil, err
	}
	fmt.Printf("[New session %s]\n", meta.DisplayName())
	return &meta, nil
}

// renamePrompt reads a new name from the terminal and applies it. An
// empty answer leaves the name unchanged.
func renamePrompt(dirs session.Dirs, meta session.Metadata) error {
	fmt.Printf("rename %s to: ", meta.DisplayName())
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read new name: %w", err)
	}
	newName := strings.TrimSpace(line)
	if newName == "" {
		return nil
	}
	renamed, err := session.Rename(dirs, meta.ID, newName)
	if err != nil {
		return err
	}
	fmt.Printf("renamed %s to %s\n", meta.DisplayName(), renamed.DisplayName())
	return nil
}

// pickerAction is what the user chose to do in the picker.
type pickerAction int

const (
	actionCancel pickerAction = iota
	actionAttach
	actionNew
	actionRename
	actionKill
)

type pickerRow struct {
	meta     session.Metadata
	attached int
	current  bool
}

// pickerKeys binds the picker's keyboard controls.
type pickerKeys struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	New    key.Binding
	Rename key.Binding
	Kill   key.Binding
	Quit   key.Binding
}

func defaultPickerKeys() pickerKeys {
	return pickerKeys{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "attach"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new session"),
		),
		Rename: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rename"),
		),
		Kill: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "kill"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "cancel"),
		),
	}
}

var (
	pickerTitleStyle = lipgloss.NewStyle().Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "235", Dark: "252"})
	pickerSelectedStyle = lipgloss.NewStyle().Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "81"})
	pickerDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "243"})
)

// pickerModel is the bubbletea model for the session switcher. The
// action field reports what the user chose; for attach, rename, and
// kill the cursor names the target row.
type pickerModel struct {
	rows   []pickerRow
	cursor int
	action pickerAction
	keys   pickerKeys
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Select):
		m.action = actionAttach
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.New):
		m.action = actionNew
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Rename):
		m.action = actionRename
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Kill):
		m.action = actionKill
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Quit):
		m.action = actionCancel
		return m, tea.Quit
	}
	return m, nil
}

func (m pickerModel) View() string {
	view := pickerTitleStyle.Render("Sessions") + "\n\n"
	for i, row := range m.rows {
		line := row.meta.DisplayName()
		if row.attached > 0 {
			line += fmt.Sprintf("  (%d attached)", row.attached)
		}
		if row.current {
			line += "  (current)"
		}
		line += "  " + pickerDimStyle.Render(humanAge(row.meta.CreatedAt))

		if i == m.cursor {
			view += pickerSelectedStyle.Render("> "+line) + "\n"
		} else {
			view += "  " + line + "\n"
		}
	}
	view += "\n" + pickerDimStyle.Render("enter attach · n new · r rename · x kill · j/k move · q cancel") + "\n"
	return view
}

// humanAge renders a creation time as a rough age: "3m", "2h", "5d".
func humanAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "now"
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
