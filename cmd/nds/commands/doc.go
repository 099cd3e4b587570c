// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the nds command tree: session creation,
// attachment, listing, lifecycle management, and the hidden supervisor
// entry point.
package commands
