// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Kind labels a lifecycle event.
type Kind string

const (
	KindCreated  Kind = "created"
	KindAttached Kind = "attached"
	KindDetached Kind = "detached"
	KindResized  Kind = "resized"
	KindRenamed  Kind = "renamed"
	KindKilled   Kind = "killed"
	KindCrashed  Kind = "crashed"
	KindExited   Kind = "exited"
)

// Event is one history record. Unused fields stay at their zero value
// and are omitted from the encoding; Status is always present on
// exited events because 0 is a meaningful exit status.
type Event struct {
	Kind     Kind      `cbor:"kind"`
	At       time.Time `cbor:"at"`
	Attached int       `cbor:"attached,omitempty"`
	Rows     int       `cbor:"rows,omitempty"`
	Cols     int       `cbor:"cols,omitempty"`
	Status   *int      `cbor:"status,omitempty"`
	Name     string    `cbor:"name,omitempty"`
}

// maxRecordLength rejects corrupt length prefixes when reading. No
// legitimate event comes near this.
const maxRecordLength = 1 << 20

// encMode serializes with deterministic core options so records are
// stable across writer versions.
var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Log appends events to an active history file. Records are written
// with a single Write on an O_APPEND descriptor, so concurrent
// appenders (the supervisor and an external cleaner) cannot interleave
// partial records.
type Log struct {
	file *os.File
}

// Open opens or creates an active history log for appending.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open history log: %w", err)
	}
	return &Log{file: file}, nil
}

// Append writes one event: a four-byte big-endian length prefix
// followed by the CBOR encoding.
func (l *Log) Append(event Event) error {
	encoded, err := encMode.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode history event: %w", err)
	}
	record := make([]byte, 4+len(encoded))
	binary.BigEndian.PutUint32(record[:4], uint32(len(encoded)))
	copy(record[4:], encoded)
	if _, err := l.file.Write(record); err != nil {
		return fmt.Errorf("append history event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}

// AppendTo appends a single event to the log at path, opening and
// closing it around the write. For out-of-process appenders like the
// cleaner.
func AppendTo(path string, event Event) error {
	log, err := Open(path)
	if err != nil {
		return err
	}
	defer log.Close()
	return log.Append(event)
}

// Read decodes every event in a history file, active or archived.
// Archived logs are recognized by their .zst suffix. A truncated
// final record is ignored: the supervisor may have died mid-write.
func Read(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".zst") {
		decoder, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open zstd reader: %w", err)
		}
		defer decoder.Close()
		reader = decoder
	}
	return decodeEvents(reader)
}

func decodeEvents(reader io.Reader) ([]Event, error) {
	var events []Event
	var prefix [4]byte
	for {
		if _, err := io.ReadFull(reader, prefix[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return events, nil
			}
			return nil, fmt.Errorf("read record length: %w", err)
		}
		length := binary.BigEndian.Uint32(prefix[:])
		if length > maxRecordLength {
			return nil, fmt.Errorf("history record length %d exceeds maximum", length)
		}
		record := make([]byte, length)
		if _, err := io.ReadFull(reader, record); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return events, nil
			}
			return nil, fmt.Errorf("read record body: %w", err)
		}
		var event Event
		if err := cbor.Unmarshal(record, &event); err != nil {
			return nil, fmt.Errorf("decode history event: %w", err)
		}
		events = append(events, event)
	}
}

// Archive compresses the active log at activePath into archivedPath
// and removes the active log. A missing active log is not an error:
// the session simply recorded nothing.
func Archive(activePath, archivedPath string) error {
	source, err := os.Open(activePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open active history: %w", err)
	}
	defer source.Close()

	tmp, err := os.CreateTemp(filepath.Dir(archivedPath), ".archive-*")
	if err != nil {
		return fmt.Errorf("create archive temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("open zstd writer: %w", err)
	}
	if _, err := io.Copy(encoder, source); err != nil {
		encoder.Close()
		tmp.Close()
		return fmt.Errorf("compress history: %w", err)
	}
	if err := encoder.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("finish zstd stream: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), archivedPath); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}
	return os.Remove(activePath)
}
