// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build version string.
package version

// version is set at build time via
// -ldflags "-X github.com/NorasTech/detached-shell/lib/version.version=v1.2.3".
var version = "dev"

// Info returns the build version string.
func Info() string { return version }
