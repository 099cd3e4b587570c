// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package history records session lifecycle events.
//
// Each live session appends length-prefixed CBOR records to an active
// log under history/active/. When the session ends the log is
// compressed with zstd and moved to history/archived/, where it stays
// until cleaned. Readers handle both forms.
package history
