// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

// The client socket carries two interleaved byte streams: raw data
// to/from the shell, and control frames. A frame is a four-byte magic,
// a two-byte big-endian payload length, and a UTF-8 payload of
// NUL-separated tokens; the first token is the command, the rest are
// arguments. Bytes outside a frame window pass through as data.
//
// The magic starts with 0xFE, a byte that never occurs in UTF-8
// encoded output, so well-formed terminal streams are never
// misparsed as frames.
var frameMagic = [4]byte{0xfe, 'N', 'D', 'S'}

const (
	// frameHeaderLength is magic plus the two length bytes.
	frameHeaderLength = 6

	// MaxPayloadLength is the maximum frame payload. A frame whose
	// declared payload exceeds this is discarded without response.
	MaxPayloadLength = 8192

	// maxArguments caps the argument tokens in one frame.
	maxArguments = 10

	// tokenSeparator splits payload tokens.
	tokenSeparator = 0x00

	// NumericArgMin and NumericArgMax bound numeric arguments in
	// client-to-supervisor frames. Out-of-bound values are clamped,
	// so a resize to 0 rows becomes 1 row.
	NumericArgMin = 1
	NumericArgMax = 9999
)

// Command is a control frame command token. The set is closed; frames
// carrying anything else are discarded.
type Command string

// Client-to-supervisor commands.
const (
	// CmdResize sets the client's recorded terminal dimensions
	// (args: rows, cols). The supervisor applies the per-axis
	// minimum over all attached clients to the PTY.
	CmdResize Command = "resize"

	// CmdDetach asks the supervisor to close this client after a
	// best-effort flush of its output queue.
	CmdDetach Command = "detach"

	// CmdScrollback requests the last N bytes of scrollback (arg: N).
	CmdScrollback Command = "scrollback"

	// CmdClear drops this client's queued output and resets its
	// terminal.
	CmdClear Command = "clear"

	// CmdRefresh retransmits the full scrollback.
	CmdRefresh Command = "refresh"

	// CmdAttach, CmdList, CmdKill, and CmdSwitch are reserved for
	// composition with higher-level tools. The supervisor
	// acknowledges them with an ok frame and performs no local
	// action.
	CmdAttach Command = "attach"
	CmdList   Command = "list"
	CmdKill   Command = "kill"
	CmdSwitch Command = "switch"
)

// Supervisor-to-client commands.
const (
	// CmdExit announces session end (arg: shell exit status). It is
	// the final frame on the connection.
	CmdExit Command = "exit"

	// CmdOK acknowledges a reserved command (arg: attached count).
	CmdOK Command = "ok"
)

// Frame is a decoded control frame.
type Frame struct {
	Command Command
	Args    []string
}

// argSpec describes the accepted argument shape for a command.
type argSpec struct {
	minArgs int
	maxArgs int
	// numeric marks every argument as a decimal integer.
	numeric bool
	// zeroOK permits 0 (used by supervisor-to-client frames, which
	// carry exit statuses and counts rather than user input).
	zeroOK bool
}

var commandSpecs = map[Command]argSpec{
	CmdResize:     {minArgs: 2, maxArgs: 2, numeric: true},
	CmdDetach:     {},
	CmdScrollback: {minArgs: 1, maxArgs: 1, numeric: true},
	CmdClear:      {},
	CmdRefresh:    {},
	CmdAttach:     {maxArgs: maxArguments},
	CmdList:       {maxArgs: maxArguments},
	CmdKill:       {maxArgs: maxArguments},
	CmdSwitch:     {maxArgs: maxArguments},
	CmdExit:       {minArgs: 1, maxArgs: 1, numeric: true, zeroOK: true},
	CmdOK:         {minArgs: 1, maxArgs: 1, numeric: true, zeroOK: true},
}

// EncodeFrame serializes a frame. It fails on unknown commands, too
// many arguments, and payloads past MaxPayloadLength; senders are
// expected to construct only valid frames.
func EncodeFrame(frame Frame) ([]byte, error) {
	if _, ok := commandSpecs[frame.Command]; !ok {
		return nil, fmt.Errorf("unknown command %q", frame.Command)
	}
	if len(frame.Args) > maxArguments {
		return nil, fmt.Errorf("command %s: %d arguments exceeds maximum %d", frame.Command, len(frame.Args), maxArguments)
	}

	payload := []byte(frame.Command)
	for _, arg := range frame.Args {
		payload = append(payload, tokenSeparator)
		payload = append(payload, arg...)
	}
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("command %s: payload %d exceeds maximum %d", frame.Command, len(payload), MaxPayloadLength)
	}

	encoded := make([]byte, frameHeaderLength+len(payload))
	copy(encoded, frameMagic[:])
	binary.BigEndian.PutUint16(encoded[4:6], uint16(len(payload)))
	copy(encoded[frameHeaderLength:], payload)
	return encoded, nil
}

// decodeFrame validates a payload against the closed command set.
// Invalid payloads return ok=false and the frame is dropped silently;
// the data channel is unaffected.
func decodeFrame(payload []byte) (Frame, bool) {
	if len(payload) == 0 || len(payload) > MaxPayloadLength {
		return Frame{}, false
	}

	tokens := bytes.Split(payload, []byte{tokenSeparator})
	command := Command(tokens[0])
	spec, ok := commandSpecs[command]
	if !ok {
		return Frame{}, false
	}

	args := tokens[1:]
	if len(args) < spec.minArgs || len(args) > spec.maxArgs {
		return Frame{}, false
	}

	frame := Frame{Command: command, Args: make([]string, 0, len(args))}
	for _, raw := range args {
		if spec.numeric {
			value, err := strconv.Atoi(string(raw))
			if err != nil {
				return Frame{}, false
			}
			frame.Args = append(frame.Args, strconv.Itoa(clampNumeric(value, spec.zeroOK)))
			continue
		}
		frame.Args = append(frame.Args, stripControl(string(raw)))
	}
	return frame, true
}

// clampNumeric bounds a numeric argument. Client-originated values
// clamp to [NumericArgMin, NumericArgMax]; supervisor-originated
// values (zeroOK) additionally admit 0.
func clampNumeric(value int, zeroOK bool) int {
	min := NumericArgMin
	if zeroOK {
		min = 0
	}
	if value < min {
		return min
	}
	if value > NumericArgMax {
		return NumericArgMax
	}
	return value
}

// stripControl removes control characters (C0 and DEL) from a string
// argument.
func stripControl(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f {
			continue
		}
		b = append(b, c)
	}
	return string(b)
}

// Segment is one ordered piece of a scanned stream: either raw data
// or a decoded frame, never both.
type Segment struct {
	Data  []byte
	Frame *Frame
}

// Scanner splits an incoming byte stream into data segments and
// control frames. It is stateful: magic sequences and frame bodies
// may arrive split across reads. Each connection direction owns one
// Scanner.
type Scanner struct {
	pending []byte
	// discard counts payload bytes of an oversized frame still to be
	// consumed and dropped.
	discard int
}

// Feed consumes input and returns the completed segments in stream
// order. Data bytes are returned as soon as they are known not to be
// part of a frame; a trailing partial magic or partial frame is held
// until the next Feed.
//
// The returned Data slices are copies and remain valid after the next
// Feed.
func (s *Scanner) Feed(input []byte) []Segment {
	buf := append(s.pending, input...)
	s.pending = nil

	var segments []Segment
	var data []byte
	flushData := func() {
		if len(data) > 0 {
			segments = append(segments, Segment{Data: data})
			data = nil
		}
	}

	pos := 0
	for pos < len(buf) {
		if s.discard > 0 {
			n := len(buf) - pos
			if n > s.discard {
				n = s.discard
			}
			s.discard -= n
			pos += n
			continue
		}

		next := bytes.IndexByte(buf[pos:], frameMagic[0])
		if next < 0 {
			data = append(data, buf[pos:]...)
			pos = len(buf)
			break
		}
		data = append(data, buf[pos:pos+next]...)
		pos += next

		remaining := buf[pos:]
		if len(remaining) < len(frameMagic) {
			if bytes.HasPrefix(frameMagic[:], remaining) {
				// Possible partial magic at the end of the read.
				s.pending = append(s.pending, remaining...)
				pos = len(buf)
				break
			}
			// The 0xFE byte is plain data; rescan past it.
			data = append(data, remaining[0])
			pos++
			continue
		}
		if !bytes.Equal(remaining[:len(frameMagic)], frameMagic[:]) {
			data = append(data, remaining[0])
			pos++
			continue
		}

		if len(remaining) < frameHeaderLength {
			s.pending = append(s.pending, remaining...)
			pos = len(buf)
			break
		}
		payloadLength := int(binary.BigEndian.Uint16(remaining[4:6]))
		if payloadLength > MaxPayloadLength {
			// Oversized frame: consume and drop its declared payload.
			s.discard = payloadLength
			pos += frameHeaderLength
			continue
		}
		if len(remaining) < frameHeaderLength+payloadLength {
			s.pending = append(s.pending, remaining...)
			pos = len(buf)
			break
		}

		payload := remaining[frameHeaderLength : frameHeaderLength+payloadLength]
		pos += frameHeaderLength + payloadLength
		if frame, ok := decodeFrame(payload); ok {
			flushData()
			segments = append(segments, Segment{Frame: &frame})
		}
		// Invalid frames vanish silently.
	}

	flushData()
	return segments
}

// NumericArg returns argument i of a validated numeric frame.
func NumericArg(frame Frame, i int) int {
	value, _ := strconv.Atoi(frame.Args[i])
	return value
}

// ResizeDimensions extracts rows and cols from a validated resize
// frame.
func ResizeDimensions(frame Frame) (rows, cols int) {
	return NumericArg(frame, 0), NumericArg(frame, 1)
}

// NewResizeFrame builds a resize frame from terminal dimensions.
func NewResizeFrame(rows, cols int) Frame {
	return Frame{Command: CmdResize, Args: []string{strconv.Itoa(rows), strconv.Itoa(cols)}}
}

// NewScrollbackFrame builds a scrollback request for the last n bytes.
func NewScrollbackFrame(n int) Frame {
	return Frame{Command: CmdScrollback, Args: []string{strconv.Itoa(n)}}
}

// NewExitFrame builds the final session-end frame.
func NewExitFrame(status int) Frame {
	return Frame{Command: CmdExit, Args: []string{strconv.Itoa(status)}}
}

// NewOKFrame builds an acknowledgement carrying the attached count.
func NewOKFrame(attached int) Frame {
	return Frame{Command: CmdOK, Args: []string{strconv.Itoa(attached)}}
}
