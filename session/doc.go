// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the NDS session runtime: the supervisor
// process that owns a pseudo-terminal and a unix listening socket,
// the I/O multiplexer that fans PTY output out to attached clients,
// the control frame protocol shared by both sides of the socket, and
// the client-side attach logic.
//
// The package is organized around the data flow:
//
//   - dirs.go: the per-user directory layout (~/.nds) and path helpers
//   - metadata.go: the on-disk session record and directory operations
//     (list, resolve, rename, clean)
//   - status.go: the atomically-replaced attach-count status file
//   - ring.go: the bounded scrollback ring replayed to new clients
//   - protocol.go: control frame encoding and the in-stream scanner
//   - escape.go: the client-side detach/switch escape parser
//   - pty.go: PTY allocation and window-size ioctls
//   - supervisor.go: session creation, shell spawn, lifecycle
//   - mux.go: the supervisor's event loop (accept, fan-out, resize,
//     backpressure eviction, shutdown)
//   - attach.go: the client side (raw mode, stdin/stdout relay)
//
// One session is one supervisor, one PTY, one shell, one socket.
// Clients are short-lived processes that connect to the socket; the
// connection itself is the attach handshake.
package session
