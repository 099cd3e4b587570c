// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Default terminal dimensions when the creating terminal's size is
// unknown.
const (
	DefaultRows = 24
	DefaultCols = 80
)

// openPTY allocates a PTY master/slave pair using the Linux devpts
// interface. Returns the master as an *os.File and the filesystem
// path to the slave.
func openPTY() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
	}

	slavePath = fmt.Sprintf("/dev/pts/%d", ptyNumber)
	return master, slavePath, nil
}

// setWindowSize sets the terminal dimensions on a PTY master fd using
// TIOCSWINSZ. This propagates SIGWINCH to the foreground process
// group attached to the slave side.
func setWindowSize(fd int, rows, cols int) error {
	winsize := &unix.Winsize{
		Row: uint16(rows),
		Col: uint16(cols),
	}
	return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, winsize)
}

// startShell spawns the shell on the PTY slave as a new session
// leader with the slave as its controlling terminal. The child's
// stdio is the slave; the supervisor keeps only the master.
//
// The child runs with umask 0077 so files it creates default to
// owner-only; the supervisor's own umask is set around the fork and
// restored (Go cannot change the umask of the child alone).
func startShell(slavePath string, meta Metadata) (*exec.Cmd, error) {
	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}
	defer slave.Close()

	cmd := exec.Command(meta.Argv[0], meta.Argv[1:]...)
	cmd.Dir = meta.WorkingDir
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.Env = shellEnvironment(meta)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // fd 0 in child = slave PTY
	}

	previousUmask := unix.Umask(0o077)
	err = cmd.Start()
	unix.Umask(previousUmask)
	if err != nil {
		return nil, fmt.Errorf("start shell %s: %w", meta.Shell, err)
	}
	// The child holds its own copies of the slave via fd 0/1/2; the
	// deferred close drops the supervisor's.
	return cmd, nil
}

// shellEnvironment is the parent environment plus the session
// identity variables.
func shellEnvironment(meta Metadata) []string {
	env := append(os.Environ(),
		"NDS_SESSION_ID="+meta.ID,
	)
	if meta.Name != "" {
		env = append(env, "NDS_SESSION_NAME="+meta.Name)
	}
	return env
}

// ChooseShell picks the shell program: the explicit override (from
// configuration) when set, then NDS_SHELL, then SHELL, then /bin/sh.
func ChooseShell(override string) string {
	if override != "" {
		return override
	}
	if shell := os.Getenv("NDS_SHELL"); shell != "" {
		return shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}
