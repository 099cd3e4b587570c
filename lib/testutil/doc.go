// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for NDS packages.
package testutil
