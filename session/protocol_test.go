// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, frame Frame) []byte {
	t.Helper()
	encoded, err := EncodeFrame(frame)
	if err != nil {
		t.Fatalf("EncodeFrame(%v): %v", frame, err)
	}
	return encoded
}

// collect splits scanner output into the concatenated data bytes and
// the decoded frames, preserving nothing about interleaving. Tests
// that care about ordering inspect the segments directly.
func collect(segments []Segment) ([]byte, []Frame) {
	var data []byte
	var frames []Frame
	for _, segment := range segments {
		if segment.Frame != nil {
			frames = append(frames, *segment.Frame)
		} else {
			data = append(data, segment.Data...)
		}
	}
	return data, frames
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var scanner Scanner
	encoded := mustEncode(t, NewResizeFrame(24, 80))

	_, frames := collect(scanner.Feed(encoded))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	rows, cols := ResizeDimensions(frames[0])
	if rows != 24 || cols != 80 {
		t.Errorf("dimensions: got %dx%d, want 24x80", rows, cols)
	}
}

func TestScannerPassesPlainDataThrough(t *testing.T) {
	t.Parallel()

	var scanner Scanner
	input := []byte("ls -la\r\n")
	data, frames := collect(scanner.Feed(input))
	if !bytes.Equal(data, input) {
		t.Errorf("data: got %q, want %q", data, input)
	}
	if len(frames) != 0 {
		t.Errorf("got %d frames, want 0", len(frames))
	}
}

func TestScannerInterleavesDataAndFrames(t *testing.T) {
	t.Parallel()

	var scanner Scanner
	var input []byte
	input = append(input, []byte("before")...)
	input = append(input, mustEncode(t, Frame{Command: CmdDetach})...)
	input = append(input, []byte("after")...)

	segments := scanner.Feed(input)
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	if !bytes.Equal(segments[0].Data, []byte("before")) {
		t.Errorf("segment 0: got %q", segments[0].Data)
	}
	if segments[1].Frame == nil || segments[1].Frame.Command != CmdDetach {
		t.Errorf("segment 1: got %+v, want detach frame", segments[1])
	}
	if !bytes.Equal(segments[2].Data, []byte("after")) {
		t.Errorf("segment 2: got %q", segments[2].Data)
	}
}

func TestScannerFrameSplitAcrossReads(t *testing.T) {
	t.Parallel()

	encoded := mustEncode(t, NewResizeFrame(30, 100))
	for split := 1; split < len(encoded); split++ {
		var scanner Scanner
		segments := scanner.Feed(encoded[:split])
		segments = append(segments, scanner.Feed(encoded[split:])...)

		data, frames := collect(segments)
		if len(data) != 0 {
			t.Fatalf("split %d: leaked %q as data", split, data)
		}
		if len(frames) != 1 || frames[0].Command != CmdResize {
			t.Fatalf("split %d: got %v, want one resize frame", split, frames)
		}
	}
}

func TestScannerMagicFirstByteAsData(t *testing.T) {
	t.Parallel()

	// 0xFE not followed by the rest of the magic is plain data.
	var scanner Scanner
	input := []byte{0xfe, 'X', 'Y', 'Z'}
	data, frames := collect(scanner.Feed(input))
	if !bytes.Equal(data, input) {
		t.Errorf("data: got %q, want %q", data, input)
	}
	if len(frames) != 0 {
		t.Errorf("got %d frames, want 0", len(frames))
	}
}

func TestScannerTrailingPartialMagicHeld(t *testing.T) {
	t.Parallel()

	var scanner Scanner
	data, _ := collect(scanner.Feed([]byte{'a', 0xfe, 'N'}))
	if !bytes.Equal(data, []byte("a")) {
		t.Errorf("first feed: got %q, want %q", data, "a")
	}

	// The held bytes turn out to be data, not a frame.
	data, frames := collect(scanner.Feed([]byte{'D', '!'}))
	if !bytes.Equal(data, []byte{0xfe, 'N', 'D', '!'}) {
		t.Errorf("second feed: got %q", data)
	}
	if len(frames) != 0 {
		t.Errorf("got %d frames, want 0", len(frames))
	}
}

func TestScannerUnknownCommandDropped(t *testing.T) {
	t.Parallel()

	raw := buildRawFrame([]byte("reboot"))
	var scanner Scanner
	data, frames := collect(scanner.Feed(raw))
	if len(data) != 0 || len(frames) != 0 {
		t.Errorf("invalid frame leaked: data=%q frames=%v", data, frames)
	}

	// The stream stays usable afterwards.
	data, _ = collect(scanner.Feed([]byte("still here")))
	if !bytes.Equal(data, []byte("still here")) {
		t.Errorf("post-drop data: got %q", data)
	}
}

func TestScannerNonNumericResizeDropped(t *testing.T) {
	t.Parallel()

	raw := buildRawFrame([]byte("resize\x00abc\x0080"))
	var scanner Scanner
	data, frames := collect(scanner.Feed(raw))
	if len(data) != 0 || len(frames) != 0 {
		t.Errorf("invalid frame leaked: data=%q frames=%v", data, frames)
	}
}

func TestScannerClampsResizeToMinimum(t *testing.T) {
	t.Parallel()

	raw := buildRawFrame([]byte("resize\x000\x000"))
	var scanner Scanner
	_, frames := collect(scanner.Feed(raw))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	rows, cols := ResizeDimensions(frames[0])
	if rows != 1 || cols != 1 {
		t.Errorf("clamped dimensions: got %dx%d, want 1x1", rows, cols)
	}
}

func TestScannerClampsResizeToMaximum(t *testing.T) {
	t.Parallel()

	raw := buildRawFrame([]byte("resize\x0099999\x00100"))
	var scanner Scanner
	_, frames := collect(scanner.Feed(raw))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	rows, cols := ResizeDimensions(frames[0])
	if rows != NumericArgMax || cols != 100 {
		t.Errorf("clamped dimensions: got %dx%d, want %dx100", rows, cols, NumericArgMax)
	}
}

func TestScannerStripsControlCharacters(t *testing.T) {
	t.Parallel()

	raw := buildRawFrame([]byte("switch\x00abc\x1b[2Jdef"))
	var scanner Scanner
	_, frames := collect(scanner.Feed(raw))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Args[0] != "abc[2Jdef" {
		t.Errorf("stripped arg: got %q, want %q", frames[0].Args[0], "abc[2Jdef")
	}
}

func TestFramePayloadBoundary(t *testing.T) {
	t.Parallel()

	// Exactly 8 KiB is accepted.
	arg := strings.Repeat("a", MaxPayloadLength-len("switch")-1)
	frame := Frame{Command: CmdSwitch, Args: []string{arg}}
	encoded, err := EncodeFrame(frame)
	if err != nil {
		t.Fatalf("EncodeFrame at boundary: %v", err)
	}
	if len(encoded) != frameHeaderLength+MaxPayloadLength {
		t.Fatalf("encoded length: got %d", len(encoded))
	}

	var scanner Scanner
	_, frames := collect(scanner.Feed(encoded))
	if len(frames) != 1 {
		t.Fatalf("boundary frame: got %d frames, want 1", len(frames))
	}

	// One byte past the limit is rejected at encode time.
	frame.Args[0] += "a"
	if _, err := EncodeFrame(frame); err == nil {
		t.Error("EncodeFrame accepted payload past the maximum")
	}
}

func TestScannerDiscardsOversizedFrame(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{'x'}, MaxPayloadLength+1)
	raw := buildRawFrame(payload)

	var scanner Scanner
	// Feed in two chunks so the discard state must persist.
	half := len(raw) / 2
	segments := scanner.Feed(raw[:half])
	segments = append(segments, scanner.Feed(raw[half:])...)
	data, frames := collect(segments)
	if len(data) != 0 || len(frames) != 0 {
		t.Errorf("oversized frame leaked: data=%q frames=%v", data, frames)
	}

	data, _ = collect(scanner.Feed([]byte("ok")))
	if !bytes.Equal(data, []byte("ok")) {
		t.Errorf("post-discard data: got %q", data)
	}
}

func TestScannerTooManyArgumentsDropped(t *testing.T) {
	t.Parallel()

	payload := []byte("switch")
	for i := 0; i < maxArguments+1; i++ {
		payload = append(payload, tokenSeparator)
		payload = append(payload, 'a')
	}
	var scanner Scanner
	data, frames := collect(scanner.Feed(buildRawFrame(payload)))
	if len(data) != 0 || len(frames) != 0 {
		t.Errorf("frame with too many args leaked: data=%q frames=%v", data, frames)
	}
}

func TestExitFrameCarriesZeroStatus(t *testing.T) {
	t.Parallel()

	var scanner Scanner
	_, frames := collect(scanner.Feed(mustEncode(t, NewExitFrame(0))))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Args[0] != "0" {
		t.Errorf("exit status: got %q, want 0", frames[0].Args[0])
	}
}

// buildRawFrame frames an arbitrary payload, bypassing EncodeFrame's
// validation, to exercise the receiving side.
func buildRawFrame(payload []byte) []byte {
	raw := make([]byte, 0, frameHeaderLength+len(payload))
	raw = append(raw, frameMagic[:]...)
	raw = append(raw, byte(len(payload)>>8), byte(len(payload)))
	raw = append(raw, payload...)
	return raw
}
