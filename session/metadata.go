// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Stable error values surfaced as one-line diagnostics by the CLI.
var (
	// ErrSessionNotFound is returned when no live session matches a
	// reference. A stale record (recorded pid no longer running) is
	// reported the same way; clean repairs it.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNameInUse is returned when a create or rename would reuse
	// the name of another live session.
	ErrNameInUse = errors.New("session name already in use")

	// ErrAmbiguous is returned when a partial reference matches more
	// than one live session.
	ErrAmbiguous = errors.New("ambiguous session reference")
)

// Metadata is the on-disk session record at sessions/<id>.json. The
// supervisor writes it once at startup (and again on rename) and
// removes it at shutdown; everything else only reads it.
type Metadata struct {
	// ID is the opaque session identifier: 8 lowercase hex characters,
	// fixed for the session's lifetime.
	ID string `json:"id"`

	// Name is the optional human-chosen name, unique among live
	// sessions.
	Name string `json:"name,omitempty"`

	// PID is the supervisor process id.
	PID int `json:"pid"`

	// Socket is the absolute path of the listening socket.
	Socket string `json:"socket"`

	// CreatedAt is the session creation time.
	CreatedAt time.Time `json:"created_at"`

	// User is the owning user's name.
	User string `json:"user"`

	// Shell is the shell program path.
	Shell string `json:"shell"`

	// Argv is the shell argument vector (argv[0] included).
	Argv []string `json:"argv"`

	// WorkingDir is the directory the shell was started in.
	WorkingDir string `json:"working_dir"`
}

// DisplayName returns "name [id]" for named sessions, the bare id
// otherwise.
func (m Metadata) DisplayName() string {
	if m.Name != "" {
		return fmt.Sprintf("%s [%s]", m.Name, m.ID)
	}
	return m.ID
}

// NewID generates a session identifier: 8 lowercase hex characters
// from a cryptographic source. The caller checks for collisions
// against existing metadata files.
func NewID() (string, error) {
	var raw [4]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// Save writes the metadata record atomically.
func (m Metadata) Save(dirs Dirs) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", m.ID, err)
	}
	if err := writeFileAtomic(dirs.MetadataPath(m.ID), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("save session %s: %w", m.ID, err)
	}
	return nil
}

// Load reads the metadata record for an exact session id. It returns
// ErrSessionNotFound when the record is missing or the recorded
// supervisor is no longer running (the stale files are left in place
// for clean to remove).
func Load(dirs Dirs, id string) (Metadata, error) {
	data, err := os.ReadFile(dirs.MetadataPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, ErrSessionNotFound
		}
		return Metadata{}, fmt.Errorf("read session %s: %w", id, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse session %s: %w", id, err)
	}
	if !ProcessAlive(meta.PID) {
		return Metadata{}, ErrSessionNotFound
	}
	return meta, nil
}

// List returns the metadata of every live session, sorted by creation
// time. Records whose supervisor is gone are skipped (not removed;
// clean owns repair).
func List(dirs Dirs) ([]Metadata, error) {
	entries, err := os.ReadDir(dirs.SessionsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var sessions []Metadata
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		meta, err := Load(dirs, strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Stale or unreadable records don't poison the listing.
			continue
		}
		sessions = append(sessions, meta)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Resolve finds a live session by reference: an id, an id prefix, a
// name, or a name prefix. An exact id or exact name match wins over
// prefix matches. Returns ErrAmbiguous when several sessions match
// equally.
func Resolve(dirs Dirs, reference string) (Metadata, error) {
	sessions, err := List(dirs)
	if err != nil {
		return Metadata{}, err
	}

	var prefixMatches []Metadata
	for _, meta := range sessions {
		if meta.ID == reference || (meta.Name != "" && meta.Name == reference) {
			return meta, nil
		}
		if strings.HasPrefix(meta.ID, reference) ||
			(meta.Name != "" && strings.HasPrefix(meta.Name, reference)) {
			prefixMatches = append(prefixMatches, meta)
		}
	}

	switch len(prefixMatches) {
	case 0:
		return Metadata{}, ErrSessionNotFound
	case 1:
		return prefixMatches[0], nil
	default:
		return Metadata{}, fmt.Errorf("%w: %q matches %d sessions", ErrAmbiguous, reference, len(prefixMatches))
	}
}

// CheckNameFree returns ErrNameInUse when another live session
// already carries the given name. The session with id excludeID is
// ignored (for rename).
func CheckNameFree(dirs Dirs, name, excludeID string) error {
	if name == "" {
		return nil
	}
	sessions, err := List(dirs)
	if err != nil {
		return err
	}
	for _, meta := range sessions {
		if meta.ID != excludeID && meta.Name == name {
			return fmt.Errorf("%w: %q (session %s)", ErrNameInUse, name, meta.ID)
		}
	}
	return nil
}

// Rename changes a session's name, enforcing live-name uniqueness.
// An empty name clears it. Returns the updated record.
func Rename(dirs Dirs, id, newName string) (Metadata, error) {
	meta, err := Load(dirs, id)
	if err != nil {
		return Metadata{}, err
	}
	newName = strings.TrimSpace(newName)
	if err := CheckNameFree(dirs, newName, id); err != nil {
		return Metadata{}, err
	}
	meta.Name = newName
	if err := meta.Save(dirs); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// RemoveFiles deletes a session's metadata, socket, and status files.
// Missing files are ignored; the first real error wins.
func RemoveFiles(dirs Dirs, id string) error {
	var firstErr error
	for _, path := range []string{
		dirs.MetadataPath(id),
		dirs.SocketPath(id),
		dirs.StatusPath(id),
	} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return firstErr
}

// Stale describes a dead session found by FindStale.
type Stale struct {
	ID   string
	Meta Metadata
}

// FindStale scans the sessions directory for records whose supervisor
// process is gone. Unparseable records are reported with a zero Meta.
func FindStale(dirs Dirs) ([]Stale, error) {
	entries, err := os.ReadDir(dirs.SessionsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var stale []Stale
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")

		data, err := os.ReadFile(dirs.MetadataPath(id))
		if err != nil {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			stale = append(stale, Stale{ID: id})
			continue
		}
		if !ProcessAlive(meta.PID) {
			stale = append(stale, Stale{ID: id, Meta: meta})
		}
	}
	return stale, nil
}

// ProcessAlive reports whether a process with the given pid exists,
// using the signal-0 probe. EPERM counts as alive: the process exists
// but belongs to someone else.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
