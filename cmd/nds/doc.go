// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Nds runs shells in detachable sessions. A supervisor process owns
// each session's PTY and keeps the shell alive across disconnects;
// clients attach over a unix socket, several at a time, and get the
// scrollback replayed on arrival. Subcommands cover session creation
// (new), attachment (attach), inspection (list, info, history), and
// lifecycle management (rename, kill, clean).
package main
