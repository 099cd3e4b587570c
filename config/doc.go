// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for NDS.
//
// Configuration is loaded from a single YAML file:
//   - the NDS_CONFIG environment variable, if set, or
//   - config.yaml under the per-user root directory (~/.nds).
//
// A missing file is not an error; every field has a built-in default.
// There is no discovery chain beyond the two locations above, so the
// effective configuration is always auditable.
package config
