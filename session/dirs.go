// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dirs is the per-user directory layout. It is resolved once at
// process startup and treated as immutable afterwards; every path a
// session touches is derived from it.
//
// Layout under the root (default ~/.nds, mode 0700):
//
//	sessions/<id>.json   metadata record (supervisor is sole writer)
//	sockets/<id>.sock    listening socket, mode 0600
//	status/<id>          "<attached-count> <last-update-unix-seconds>"
//	history/active/      append-only event logs for live sessions
//	history/archived/    zstd-compressed logs of ended sessions
//	log/<id>.log         supervisor debug log (stdio is detached)
type Dirs struct {
	Root string
}

// ResolveDirs determines the per-user root: the NDS_HOME environment
// variable when set, otherwise ~/.nds.
func ResolveDirs() (Dirs, error) {
	if home := os.Getenv("NDS_HOME"); home != "" {
		return Dirs{Root: home}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Dirs{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return Dirs{Root: filepath.Join(home, ".nds")}, nil
}

// EnsureLayout creates the root and every subdirectory with owner-only
// permissions. Safe to call repeatedly.
func (d Dirs) EnsureLayout() error {
	for _, dir := range []string{
		d.Root,
		d.SessionsDir(),
		d.SocketsDir(),
		d.StatusDir(),
		d.HistoryActiveDir(),
		d.HistoryArchivedDir(),
		d.LogDir(),
	} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SessionsDir returns the metadata directory.
func (d Dirs) SessionsDir() string { return filepath.Join(d.Root, "sessions") }

// SocketsDir returns the socket directory.
func (d Dirs) SocketsDir() string { return filepath.Join(d.Root, "sockets") }

// StatusDir returns the status file directory.
func (d Dirs) StatusDir() string { return filepath.Join(d.Root, "status") }

// HistoryActiveDir returns the directory of live-session event logs.
func (d Dirs) HistoryActiveDir() string { return filepath.Join(d.Root, "history", "active") }

// HistoryArchivedDir returns the directory of archived event logs.
func (d Dirs) HistoryArchivedDir() string { return filepath.Join(d.Root, "history", "archived") }

// LogDir returns the supervisor debug log directory.
func (d Dirs) LogDir() string { return filepath.Join(d.Root, "log") }

// MetadataPath returns the metadata file path for a session.
func (d Dirs) MetadataPath(id string) string {
	return filepath.Join(d.SessionsDir(), id+".json")
}

// SocketPath returns the listening socket path for a session.
func (d Dirs) SocketPath(id string) string {
	return filepath.Join(d.SocketsDir(), id+".sock")
}

// StatusPath returns the status file path for a session.
func (d Dirs) StatusPath(id string) string {
	return filepath.Join(d.StatusDir(), id)
}

// HistoryActivePath returns the live event log path for a session.
func (d Dirs) HistoryActivePath(id string) string {
	return filepath.Join(d.HistoryActiveDir(), id+".log")
}

// HistoryArchivedPath returns the archived event log path for a
// session.
func (d Dirs) HistoryArchivedPath(id string) string {
	return filepath.Join(d.HistoryArchivedDir(), id+".log.zst")
}

// LogPath returns the supervisor debug log path for a session.
func (d Dirs) LogPath(id string) string {
	return filepath.Join(d.LogDir(), id+".log")
}

// writeFileAtomic writes data to path via a temporary file in the
// same directory followed by rename, so readers never observe a
// half-written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
