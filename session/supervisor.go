// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/NorasTech/detached-shell/config"
	"github.com/NorasTech/detached-shell/history"
	"github.com/NorasTech/detached-shell/lib/clock"
)

// SuperviseCommand is the hidden CLI command name the client re-execs
// to become a supervisor.
const SuperviseCommand = "__supervise"

const (
	// createReadyTimeout bounds how long Create waits for the spawned
	// supervisor to publish its metadata and socket.
	createReadyTimeout = 5 * time.Second
	createPollInterval = 25 * time.Millisecond

	// shellStopEscalation is the grace period between asking the shell
	// to exit (SIGHUP) and killing it.
	shellStopEscalation = 2 * time.Second

	// killEscalationTimeout is the grace period between SIGTERM to a
	// supervisor and SIGKILL.
	killEscalationTimeout = 2 * time.Second
	killPollInterval      = 50 * time.Millisecond
)

// CreateOptions parameterize a new session.
type CreateOptions struct {
	// Name is the optional session name; empty means unnamed.
	Name string

	// Shell overrides the shell program; empty falls back to the
	// NDS_SHELL/SHELL environment, then /bin/sh.
	Shell string

	// WorkingDir is the shell's starting directory; empty means the
	// creating process's working directory.
	WorkingDir string

	// Rows and Cols seed the PTY size; zero means 24x80.
	Rows, Cols int
}

// Create starts a new detached session: it re-execs this binary as a
// supervisor in its own session (no controlling terminal, stdio on
// /dev/null) and waits for the session to become attachable. The
// caller typically attaches right after.
func Create(dirs Dirs, opts CreateOptions, clk clock.Clock) (Metadata, error) {
	if err := dirs.EnsureLayout(); err != nil {
		return Metadata{}, err
	}
	if err := CheckNameFree(dirs, opts.Name, ""); err != nil {
		return Metadata{}, err
	}

	id, err := newUnusedID(dirs)
	if err != nil {
		return Metadata{}, err
	}

	shell := ChooseShell(opts.Shell)
	workingDir := opts.WorkingDir
	if workingDir == "" {
		if workingDir, err = os.Getwd(); err != nil {
			return Metadata{}, fmt.Errorf("resolve working directory: %w", err)
		}
	}
	rows, cols := opts.Rows, opts.Cols
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols <= 0 {
		cols = DefaultCols
	}

	executable, err := os.Executable()
	if err != nil {
		return Metadata{}, fmt.Errorf("resolve own executable: %w", err)
	}

	args := []string{
		SuperviseCommand,
		"--id", id,
		"--shell", shell,
		"--dir", workingDir,
		"--rows", strconv.Itoa(rows),
		"--cols", strconv.Itoa(cols),
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return Metadata{}, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(executable, args...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return Metadata{}, fmt.Errorf("spawn supervisor: %w", err)
	}
	// The supervisor re-parents to init when this process exits; we
	// never wait on it.
	cmd.Process.Release()

	deadline := clk.Now().Add(createReadyTimeout)
	for {
		meta, err := Load(dirs, id)
		if err == nil {
			if _, err := os.Stat(meta.Socket); err == nil {
				return meta, nil
			}
		}
		if clk.Now().After(deadline) {
			return Metadata{}, fmt.Errorf("session %s did not become ready within %v", id, createReadyTimeout)
		}
		clk.Sleep(createPollInterval)
	}
}

// newUnusedID draws session ids until one has no metadata file. A
// collision among 8-hex-char ids is vanishingly rare; the retry bound
// guards against a broken random source.
func newUnusedID(dirs Dirs) (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		id, err := NewID()
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(dirs.MetadataPath(id)); errors.Is(err, os.ErrNotExist) {
			return id, nil
		}
	}
	return "", errors.New("could not allocate an unused session id")
}

// SuperviseRequest carries the flags of the hidden supervise command.
type SuperviseRequest struct {
	ID         string
	Name       string
	Shell      string
	WorkingDir string
	Rows, Cols int
}

// Supervise runs the supervisor side of a session to completion and
// returns the process exit code: the shell's exit status, or 1 when
// the session could not be set up. It is called from the hidden CLI
// command in the detached process.
func Supervise(dirs Dirs, cfg config.Config, req SuperviseRequest) int {
	if err := dirs.EnsureLayout(); err != nil {
		return 1
	}

	// Stdio is /dev/null; the per-session file is the only place the
	// supervisor can report anything.
	logFile, err := os.OpenFile(dirs.LogPath(req.ID), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return 1
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, nil))

	status, err := runSupervisor(dirs, cfg, req, logger)
	if err != nil {
		logger.Error("supervisor failed", "session", req.ID, "error", err)
		return 1
	}
	logger.Info("session ended", "session", req.ID, "status", status)
	return status
}

func runSupervisor(dirs Dirs, cfg config.Config, req SuperviseRequest, logger *slog.Logger) (int, error) {
	rows, cols := req.Rows, req.Cols
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols <= 0 {
		cols = DefaultCols
	}

	master, slavePath, err := openPTY()
	if err != nil {
		return 0, err
	}
	masterFd := int(master.Fd())
	if err := setWindowSize(masterFd, rows, cols); err != nil {
		master.Close()
		return 0, fmt.Errorf("set initial window size: %w", err)
	}

	meta := Metadata{
		ID:         req.ID,
		Name:       req.Name,
		PID:        os.Getpid(),
		Socket:     dirs.SocketPath(req.ID),
		CreatedAt:  time.Now(),
		User:       currentUserName(),
		Shell:      req.Shell,
		Argv:       []string{req.Shell},
		WorkingDir: req.WorkingDir,
	}

	// Create raced another create for the same name; the session still
	// starts, just unnamed.
	if err := CheckNameFree(dirs, meta.Name, meta.ID); err != nil {
		logger.Warn("dropping session name", "name", meta.Name, "error", err)
		meta.Name = ""
	}

	cmd, err := startShell(slavePath, meta)
	if err != nil {
		master.Close()
		return 0, err
	}

	socketPath := dirs.SocketPath(req.ID)
	os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		master.Close()
		stopProcessGroup(cmd.Process.Pid)
		return 0, fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	os.Chmod(socketPath, 0o600)

	if err := meta.Save(dirs); err != nil {
		master.Close()
		listener.Close()
		stopProcessGroup(cmd.Process.Pid)
		return 0, err
	}

	historyLog, err := history.Open(dirs.HistoryActivePath(req.ID))
	if err != nil {
		logger.Warn("history disabled", "error", err)
	}
	var recorder EventRecorder = nopRecorder{}
	if historyLog != nil {
		r := history.NewRecorder(historyLog, time.Now)
		r.RecordCreated(meta.Name)
		recorder = r
	}

	shellExited := make(chan int, 1)
	go func() { shellExited <- waitShell(cmd) }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, unix.SIGTERM, unix.SIGINT)
	defer signal.Stop(signals)

	clk := clock.Real()
	stopShell := sync.OnceFunc(func() {
		stopProcessGroup(cmd.Process.Pid)
		clk.AfterFunc(shellStopEscalation, func() {
			unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		})
	})

	m := newMux(muxParams{
		master: master,
		resize: func(rows, cols int) error {
			return setWindowSize(masterFd, rows, cols)
		},
		listener:   listener,
		ring:       NewRing(cfg.ScrollbackInitial, cfg.ScrollbackMax),
		queueMax:   cfg.ClientQueueMax,
		maxClients: cfg.MaxClients,
		writeStatus: func(attached int) {
			if err := WriteStatus(dirs, req.ID, Status{AttachedClients: attached, UpdatedAt: time.Now()}); err != nil {
				logger.Warn("status write failed", "error", err)
			}
		},
		recorder:    recorder,
		logger:      logger,
		clock:       clk,
		shellExited: shellExited,
		signals:     signals,
		stopShell:   stopShell,
		initialRows: rows,
		initialCols: cols,
	})

	logger.Info("session started",
		"session", req.ID,
		"name", meta.Name,
		"shell", meta.Shell,
		"pid", meta.PID,
		"socket", socketPath,
	)
	status := m.run()

	if err := RemoveFiles(dirs, req.ID); err != nil {
		logger.Warn("cleanup failed", "error", err)
	}
	if historyLog != nil {
		historyLog.Close()
		if err := history.Archive(dirs.HistoryActivePath(req.ID), dirs.HistoryArchivedPath(req.ID)); err != nil {
			logger.Warn("history archive failed", "error", err)
		}
	}
	return status, nil
}

// waitShell maps the shell's wait result to an exit status. A
// signal-terminated shell reports 128+signal, shell convention.
func waitShell(cmd *exec.Cmd) int {
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// stopProcessGroup hangs up the shell's process group. The shell runs
// as a session leader, so its pid is the pgid.
func stopProcessGroup(pid int) {
	unix.Kill(-pid, unix.SIGHUP)
}

// Kill terminates a session's supervisor. SIGTERM gives it the chance
// to flush clients and clean up; after killEscalationTimeout it is
// killed outright and this process repairs the leftover files.
func Kill(dirs Dirs, meta Metadata, clk clock.Clock) error {
	if err := unix.Kill(meta.PID, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal supervisor %d: %w", meta.PID, err)
	}

	deadline := clk.Now().Add(killEscalationTimeout)
	for ProcessAlive(meta.PID) {
		if clk.Now().After(deadline) {
			unix.Kill(meta.PID, unix.SIGKILL)
			break
		}
		clk.Sleep(killPollInterval)
	}
	for ProcessAlive(meta.PID) {
		clk.Sleep(killPollInterval)
	}

	// A SIGTERM'd supervisor removes its own files; a SIGKILL'd one
	// cannot. Either way the session must be gone afterwards.
	if err := RemoveFiles(dirs, meta.ID); err != nil {
		return err
	}
	activePath := dirs.HistoryActivePath(meta.ID)
	if _, err := os.Stat(activePath); err == nil {
		history.AppendTo(activePath, history.Event{Kind: history.KindKilled, At: clk.Now()})
		if err := history.Archive(activePath, dirs.HistoryArchivedPath(meta.ID)); err != nil {
			return err
		}
	}
	return nil
}

func currentUserName() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
