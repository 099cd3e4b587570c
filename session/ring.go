// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

// Ring is the bounded scrollback buffer: the raw output stream of the
// PTY master, control sequences included, so that replaying it
// reproduces the terminal's visible state for a newly attached
// client.
//
// The buffer starts at an initial capacity and grows geometrically
// under write pressure up to a hard ceiling; past the ceiling the
// oldest bytes are discarded first. No line-boundary preservation is
// attempted.
//
// Ring is deliberately unsynchronized. The multiplexer loop is the
// sole owner; nothing else reads or writes it.
type Ring struct {
	buf     []byte
	start   int // index of the oldest byte
	length  int // bytes currently stored
	maxSize int
	written uint64 // total bytes ever written
}

// NewRing creates a ring with the given initial capacity and growth
// ceiling. initial must be positive and no larger than max.
func NewRing(initial, max int) *Ring {
	if initial <= 0 || max < initial {
		panic("session: invalid ring bounds")
	}
	return &Ring{
		buf:     make([]byte, initial),
		maxSize: max,
	}
}

// Write appends bytes, growing the buffer up to the ceiling and then
// overwriting the oldest data.
func (r *Ring) Write(data []byte) {
	r.written += uint64(len(data))

	if r.length+len(data) > len(r.buf) && len(r.buf) < r.maxSize {
		r.grow(r.length + len(data))
	}

	// A write larger than the whole buffer reduces to its tail.
	if len(data) > len(r.buf) {
		data = data[len(data)-len(r.buf):]
	}

	for offset := 0; offset < len(data); {
		writePos := (r.start + r.length) % len(r.buf)
		chunk := len(data) - offset
		if chunk > len(r.buf)-writePos {
			chunk = len(r.buf) - writePos
		}
		copy(r.buf[writePos:writePos+chunk], data[offset:offset+chunk])
		offset += chunk

		overflow := r.length + chunk - len(r.buf)
		if overflow > 0 {
			r.start = (r.start + overflow) % len(r.buf)
			r.length = len(r.buf)
		} else {
			r.length += chunk
		}
	}
}

// grow resizes the buffer to hold at least need bytes, doubling until
// sufficient and clamping to the ceiling. Existing data is
// linearized into the new buffer.
func (r *Ring) grow(need int) {
	capacity := len(r.buf)
	for capacity < need && capacity < r.maxSize {
		capacity *= 2
	}
	if capacity > r.maxSize {
		capacity = r.maxSize
	}
	if capacity == len(r.buf) {
		return
	}
	r.buf = append(r.snapshotInto(make([]byte, 0, capacity)), make([]byte, capacity-r.length)...)
	r.start = 0
}

// Bytes returns a copy of the buffered output, oldest first. This is
// the scrollback replay sent to a newly attached client.
func (r *Ring) Bytes() []byte {
	return r.snapshotInto(make([]byte, 0, r.length))
}

// Tail returns a copy of the last n buffered bytes (all of them when
// n exceeds the buffered length).
func (r *Ring) Tail(n int) []byte {
	if n >= r.length {
		return r.Bytes()
	}
	full := r.Bytes()
	return full[len(full)-n:]
}

// snapshotInto appends the buffered contents to dst in order. At most
// two copies: the wrapped tail segment and the head segment.
func (r *Ring) snapshotInto(dst []byte) []byte {
	first := r.length
	if first > len(r.buf)-r.start {
		first = len(r.buf) - r.start
	}
	dst = append(dst, r.buf[r.start:r.start+first]...)
	dst = append(dst, r.buf[:r.length-first]...)
	return dst
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int { return r.length }

// TotalWritten returns the total number of bytes ever written,
// including bytes already discarded.
func (r *Ring) TotalWritten() uint64 { return r.written }
