// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// AttachResult reports how an attach ended.
type AttachResult struct {
	// SwitchRequested is set when the user typed the switch escape;
	// the caller should offer the session picker.
	SwitchRequested bool

	// ShellExited is set when the session ended while attached.
	// ShellStatus is the shell's exit status, to be propagated as
	// this process's exit code.
	ShellExited bool
	ShellStatus int

	// ConnectionLost is set when the socket closed without a final
	// exit frame: the supervisor died out from under us.
	ConnectionLost bool
}

// ErrNotATerminal is returned when attach is run without a terminal
// on stdin.
var ErrNotATerminal = errors.New("attach requires a terminal on stdin")

// connWriter serializes writes to the socket. Input forwarding and
// resize frames come from different goroutines, and a frame torn by
// an interleaved write would corrupt the stream.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Write(data)
}

func (w *connWriter) writeFrame(frame Frame) error {
	encoded, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	_, err = w.Write(encoded)
	return err
}

// Attach connects the calling terminal to a session and relays until
// the user detaches, the shell exits, or the connection drops. The
// terminal is put in raw mode for the duration and always restored,
// including on error paths.
func Attach(meta Metadata) (AttachResult, error) {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return AttachResult{}, ErrNotATerminal
	}

	conn, err := net.Dial("unix", meta.Socket)
	if err != nil {
		return AttachResult{}, fmt.Errorf("connect to session %s: %w", meta.ID, err)
	}
	defer conn.Close()
	writer := &connWriter{conn: conn}
	slog.Debug("connected", "session", meta.ID, "socket", meta.Socket)

	savedState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return AttachResult{}, fmt.Errorf("set raw mode: %w", err)
	}
	restore := func() { term.Restore(stdinFd, savedState) }
	defer restore()

	// The supervisor needs our dimensions before any output makes
	// sense on this terminal.
	sendResize(writer, stdinFd)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer func() {
		signal.Stop(winch)
		close(winch)
	}()
	go func() {
		for range winch {
			sendResize(writer, stdinFd)
		}
	}()

	fmt.Fprintf(os.Stdout, "[Attached to session %s]\r\n", meta.DisplayName())

	// The stdin reader exits when an escape triggers or stdin closes.
	// When the session ends first it stays blocked in Read; this
	// process is about to exit, so that is fine.
	actions := make(chan InputAction, 1)
	go func() {
		var parserMu sync.Mutex
		parser := NewEscapeParser()
		// A lone tilde with no follow-up keystroke must still reach
		// the shell; the blocked stdin read cannot release it, so a
		// timer does.
		flushHeld := func() {
			parserMu.Lock()
			released := parser.FlushHeld(time.Now())
			parserMu.Unlock()
			if len(released) > 0 {
				writer.Write(released)
			}
		}
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				parserMu.Lock()
				forward, action := parser.Feed(time.Now(), buf[:n])
				holding := parser.Holding()
				parserMu.Unlock()
				if len(forward) > 0 {
					if _, err := writer.Write(forward); err != nil {
						return
					}
				}
				if action != ActionNone {
					writer.writeFrame(Frame{Command: CmdDetach})
					actions <- action
					return
				}
				if holding {
					time.AfterFunc(tildeHoldTimeout, flushHeld)
				}
			}
			if err != nil {
				return
			}
		}
	}()

	type sessionEnd struct {
		exited bool
		status int
		err    error
	}
	ends := make(chan sessionEnd, 1)
	go func() {
		var scanner Scanner
		buf := make([]byte, readChunkSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				for _, segment := range scanner.Feed(buf[:n]) {
					if segment.Frame != nil {
						if segment.Frame.Command == CmdExit {
							ends <- sessionEnd{exited: true, status: NumericArg(*segment.Frame, 0)}
							return
						}
						// ok frames and anything else: not for us.
						continue
					}
					os.Stdout.Write(segment.Data)
				}
			}
			if err != nil {
				ends <- sessionEnd{err: err}
				return
			}
		}
	}()

	var result AttachResult
	select {
	case action := <-actions:
		result.SwitchRequested = action == ActionSwitch
	case end := <-ends:
		if end.exited {
			result.ShellExited = true
			result.ShellStatus = end.status
		} else {
			result.ConnectionLost = true
		}
	}

	restore()
	slog.Debug("attach ended",
		"session", meta.ID,
		"switch", result.SwitchRequested,
		"exited", result.ShellExited,
		"lost", result.ConnectionLost,
	)
	switch {
	case result.ShellExited:
		fmt.Fprintf(os.Stdout, "\n[Session %s ended: shell exited with status %d]\n", meta.DisplayName(), result.ShellStatus)
	case result.ConnectionLost:
		fmt.Fprintf(os.Stdout, "\n[Lost connection to session %s]\n", meta.DisplayName())
	default:
		fmt.Fprintf(os.Stdout, "\n[Detached from session %s]\n", meta.DisplayName())
	}
	return result, nil
}

// sendResize reports the local terminal size. Best-effort: a failed
// size probe just skips the frame.
func sendResize(writer *connWriter, fd int) {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return
	}
	writer.writeFrame(NewResizeFrame(rows, cols))
}
