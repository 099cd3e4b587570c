// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

// Status is the content of the status/<id> file: the live attach
// count and the time of the last change. External tools read it to
// answer list/info queries without opening the control socket, which
// would itself count as an attach.
type Status struct {
	// AttachedClients is the number of open client connections.
	AttachedClients int

	// UpdatedAt is when the supervisor last rewrote the file.
	UpdatedAt time.Time
}

// WriteStatus atomically replaces a session's status file. The format
// is two whitespace-separated tokens:
// "<attached-count> <last-update-unix-seconds>\n".
func WriteStatus(dirs Dirs, id string, status Status) error {
	content := fmt.Sprintf("%d %d\n", status.AttachedClients, status.UpdatedAt.Unix())
	if err := writeFileAtomic(dirs.StatusPath(id), []byte(content), 0o600); err != nil {
		return fmt.Errorf("write status for session %s: %w", id, err)
	}
	return nil
}

// ReadStatus reads a session's status file. A missing file reads as
// zero clients with a zero timestamp: the supervisor may not have
// written it yet, and readers should not treat that as an error.
func ReadStatus(dirs Dirs, id string) (Status, error) {
	data, err := os.ReadFile(dirs.StatusPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Status{}, nil
		}
		return Status{}, fmt.Errorf("read status for session %s: %w", id, err)
	}

	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return Status{}, fmt.Errorf("malformed status for session %s: %q", id, strings.TrimSpace(string(data)))
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return Status{}, fmt.Errorf("malformed attach count for session %s: %w", id, err)
	}
	seconds, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Status{}, fmt.Errorf("malformed timestamp for session %s: %w", id, err)
	}
	return Status{
		AttachedClients: count,
		UpdatedAt:       time.Unix(seconds, 0),
	}, nil
}
