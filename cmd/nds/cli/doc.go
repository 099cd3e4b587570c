// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the nds binary:
// a command tree with pflag flag sets, structured help output, typo
// suggestions, and exit-code plumbing.
package cli
