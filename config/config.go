// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults for sizing knobs. Sizes are bytes.
const (
	// DefaultScrollbackInitial is the initial scrollback ring
	// capacity. 2 MiB holds several screenfuls of heavy output.
	DefaultScrollbackInitial = 2 * 1024 * 1024

	// DefaultScrollbackMax is the hard ceiling the ring may grow to.
	DefaultScrollbackMax = 8 * 1024 * 1024

	// DefaultClientQueueMax is the soft cap on a single client's
	// pending output. A client that falls further behind than this
	// is evicted rather than allowed to stall the session.
	DefaultClientQueueMax = 4 * 1024 * 1024
)

// Config is the NDS configuration.
type Config struct {
	// Shell overrides the shell program for new sessions. When empty
	// the shell is chosen from NDS_SHELL, then SHELL, then /bin/sh.
	Shell string `yaml:"shell,omitempty"`

	// ScrollbackInitial is the initial scrollback ring capacity in
	// bytes.
	ScrollbackInitial int `yaml:"scrollback_initial,omitempty"`

	// ScrollbackMax is the scrollback ring growth ceiling in bytes.
	ScrollbackMax int `yaml:"scrollback_max,omitempty"`

	// ClientQueueMax is the per-client output queue soft cap in
	// bytes.
	ClientQueueMax int `yaml:"client_queue_max,omitempty"`

	// MaxClients limits concurrent attached clients per session.
	// Zero means unlimited.
	MaxClients int `yaml:"max_clients,omitempty"`
}

// Default returns a Config with every field at its built-in default.
func Default() Config {
	return Config{
		ScrollbackInitial: DefaultScrollbackInitial,
		ScrollbackMax:     DefaultScrollbackMax,
		ClientQueueMax:    DefaultClientQueueMax,
	}
}

// Load reads the configuration for the given per-user root directory.
// NDS_CONFIG overrides the file location. A missing file yields the
// defaults; a malformed file is an error.
func Load(root string) (Config, error) {
	path := os.Getenv("NDS_CONFIG")
	if path == "" {
		path = filepath.Join(root, "config.yaml")
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// Unset sizing fields fall back to defaults rather than zero.
	if c.ScrollbackInitial == 0 {
		c.ScrollbackInitial = DefaultScrollbackInitial
	}
	if c.ScrollbackMax == 0 {
		c.ScrollbackMax = DefaultScrollbackMax
	}
	if c.ClientQueueMax == 0 {
		c.ClientQueueMax = DefaultClientQueueMax
	}

	if c.ScrollbackInitial < 0 || c.ScrollbackMax < 0 || c.ClientQueueMax < 0 || c.MaxClients < 0 {
		return fmt.Errorf("negative sizes are not allowed")
	}
	if c.ScrollbackInitial > c.ScrollbackMax {
		return fmt.Errorf("scrollback_initial (%d) exceeds scrollback_max (%d)", c.ScrollbackInitial, c.ScrollbackMax)
	}
	return nil
}
