// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"testing"
)

func TestRingBasicWriteRead(t *testing.T) {
	t.Parallel()
	ring := NewRing(64, 64)

	ring.Write([]byte("hello"))
	ring.Write([]byte(" world"))

	if got := ring.Bytes(); !bytes.Equal(got, []byte("hello world")) {
		t.Errorf("Bytes: got %q, want %q", got, "hello world")
	}
	if ring.Len() != 11 {
		t.Errorf("Len: got %d, want 11", ring.Len())
	}
}

func TestRingOverwritesOldestFirst(t *testing.T) {
	t.Parallel()
	ring := NewRing(8, 8)

	ring.Write([]byte("abcdefgh"))
	ring.Write([]byte("XY"))

	if got := ring.Bytes(); !bytes.Equal(got, []byte("cdefghXY")) {
		t.Errorf("Bytes after wrap: got %q, want %q", got, "cdefghXY")
	}
	if ring.TotalWritten() != 10 {
		t.Errorf("TotalWritten: got %d, want 10", ring.TotalWritten())
	}
}

func TestRingWrapRepeatedly(t *testing.T) {
	t.Parallel()
	ring := NewRing(4, 4)

	for _, chunk := range []string{"ab", "cd", "ef", "gh", "ij"} {
		ring.Write([]byte(chunk))
	}

	if got := ring.Bytes(); !bytes.Equal(got, []byte("ghij")) {
		t.Errorf("Bytes: got %q, want %q", got, "ghij")
	}
}

func TestRingGrowsToCeiling(t *testing.T) {
	t.Parallel()
	ring := NewRing(4, 16)

	ring.Write([]byte("abcd"))
	ring.Write([]byte("efgh"))
	if got := ring.Bytes(); !bytes.Equal(got, []byte("abcdefgh")) {
		t.Errorf("Bytes after growth: got %q, want %q", got, "abcdefgh")
	}

	// Push past the ceiling; the oldest bytes go first.
	ring.Write([]byte("ijklmnopqrstuvwxyz"))
	got := ring.Bytes()
	if len(got) != 16 {
		t.Fatalf("Len after ceiling: got %d, want 16", len(got))
	}
	if !bytes.Equal(got, []byte("klmnopqrstuvwxyz")) {
		t.Errorf("Bytes after ceiling: got %q", got)
	}
}

func TestRingGrowPreservesWrappedData(t *testing.T) {
	t.Parallel()
	ring := NewRing(4, 16)

	ring.Write([]byte("abcd"))
	// This write exceeds capacity and grows; pre-growth data must
	// survive linearization.
	ring.Write([]byte("ef"))

	if got := ring.Bytes(); !bytes.Equal(got, []byte("abcdef")) {
		t.Errorf("Bytes: got %q, want %q", got, "abcdef")
	}
}

func TestRingWriteLargerThanCeiling(t *testing.T) {
	t.Parallel()
	ring := NewRing(4, 8)

	ring.Write([]byte("0123456789abcdef"))

	if got := ring.Bytes(); !bytes.Equal(got, []byte("89abcdef")) {
		t.Errorf("Bytes: got %q, want %q", got, "89abcdef")
	}
}

func TestRingTail(t *testing.T) {
	t.Parallel()
	ring := NewRing(16, 16)

	ring.Write([]byte("hello world"))

	if got := ring.Tail(5); !bytes.Equal(got, []byte("world")) {
		t.Errorf("Tail(5): got %q, want %q", got, "world")
	}
	if got := ring.Tail(100); !bytes.Equal(got, []byte("hello world")) {
		t.Errorf("Tail(100): got %q, want full contents", got)
	}
}

func TestRingEmpty(t *testing.T) {
	t.Parallel()
	ring := NewRing(8, 8)

	if got := ring.Bytes(); len(got) != 0 {
		t.Errorf("Bytes on empty ring: got %q", got)
	}
	if got := ring.Tail(4); len(got) != 0 {
		t.Errorf("Tail on empty ring: got %q", got)
	}
}
