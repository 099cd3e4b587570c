// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// InputAction is the outcome of scanning attached-terminal input for
// the local escape sequences.
type InputAction int

const (
	// ActionNone means keep forwarding.
	ActionNone InputAction = iota

	// ActionDetach means the user typed the detach sequence (newline
	// then ~d, or Ctrl-D at the start of a line).
	ActionDetach

	// ActionSwitch means the user typed ~s to open the session
	// switcher.
	ActionSwitch
)

// tildeHoldTimeout releases a held tilde as data when the next
// keystroke takes too long: the user typed a lone ~ and paused.
const tildeHoldTimeout = time.Second

// EscapeParser scans the client's keyboard input for the SSH-style
// escape sequences. Escape bytes are consumed locally and never reach
// the shell: a tilde at the start of a line is held back until the
// next byte decides whether it introduces an escape (~d, ~s), a
// literal tilde (~~), or plain data.
//
// The parser is not safe for concurrent use without external locking;
// the attach client serializes Feed and FlushHeld with a mutex.
type EscapeParser struct {
	atLineStart  bool
	holdingTilde bool
	tildeSince   time.Time
}

// NewEscapeParser returns a parser positioned at the start of a line,
// so an escape typed immediately after attach works.
func NewEscapeParser() *EscapeParser {
	return &EscapeParser{atLineStart: true}
}

// Feed scans input and returns the bytes to forward to the session
// plus the first action triggered. Bytes after a triggering sequence
// are dropped: the client is about to detach or switch and the
// remainder was almost certainly typed against the next context.
func (p *EscapeParser) Feed(now time.Time, input []byte) (forward []byte, action InputAction) {
	// A tilde held across reads is released as data if the follow-up
	// took longer than the hold timeout.
	if p.holdingTilde && now.Sub(p.tildeSince) > tildeHoldTimeout {
		forward = append(forward, '~')
		p.holdingTilde = false
	}

	for _, b := range input {
		if p.holdingTilde {
			p.holdingTilde = false
			switch b {
			case 'd':
				return forward, ActionDetach
			case 's':
				return forward, ActionSwitch
			case '~':
				forward = append(forward, '~')
				p.atLineStart = false
			default:
				forward = append(forward, '~', b)
				p.atLineStart = b == '\r' || b == '\n'
			}
			continue
		}

		if p.atLineStart && b == 0x04 {
			// Ctrl-D at the start of a line detaches; mid-line it is
			// the shell's EOF/delete-char and passes through.
			return forward, ActionDetach
		}
		if p.atLineStart && b == '~' {
			p.holdingTilde = true
			p.tildeSince = now
			continue
		}
		forward = append(forward, b)
		p.atLineStart = b == '\r' || b == '\n'
	}
	return forward, ActionNone
}

// Holding reports whether a tilde is held back awaiting its follow-up
// byte. The caller schedules a timeout flush when no further input
// arrives, since a blocked stdin read cannot run the lazy release in
// Feed.
func (p *EscapeParser) Holding() bool {
	return p.holdingTilde
}

// FlushHeld releases a held tilde as data once the hold timeout has
// elapsed with no follow-up byte. Returns nil when nothing is due,
// including when input arrived in the meantime and resolved the hold.
func (p *EscapeParser) FlushHeld(now time.Time) []byte {
	if p.holdingTilde && now.Sub(p.tildeSince) >= tildeHoldTimeout {
		p.holdingTilde = false
		return []byte{'~'}
	}
	return nil
}
