// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/spf13/cobra"
)

// identityConfig is the DataId a simulated device reports
type identityConfig struct {
	Name          string `toml:"name"`
	MaxPacketSize uint16 `toml:"max_packet_size"`
	ASCII         bool   `toml:"ascii"`
}

// DataId builds the configured identity
func (c identityConfig) DataId() (flem.DataId, error) {
	id, err := flem.NewDataId(c.Name, c.MaxPacketSize)
	if err != nil {
		return flem.DataId{}, fmt.Errorf("identity %q: %w", c.Name, err)
	}
	return id, nil
}

type fileConfig struct {
	Port        string         `toml:"port"`
	Baud        int            `toml:"baud"`
	URL         string         `toml:"url"`
	Username    string         `toml:"username"`
	NoSSLVerify bool           `toml:"no_ssl_verify"`
	Software    bool           `toml:"software"`
	Capacity    int            `toml:"capacity"`
	Verbose     bool           `toml:"verbose"`
	Identity    identityConfig `toml:"identity"`
}

// loadedConfig is a parsed config file and the keys it sets
type loadedConfig struct {
	values  fileConfig
	defined func(key ...string) bool
}

func loadConfig(path string) (loadedConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return loadedConfig{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return loadedConfig{}, fmt.Errorf("load config: unknown keys: %s", strings.Join(keys, ", "))
	}
	return loadedConfig{values: raw, defined: meta.IsDefined}, nil
}

// applyConfig copies config values into flags the user did not set
func applyConfig(cmd *cobra.Command, cfg loadedConfig) {
	flags := cmd.Flags()
	use := func(key, flag string) bool {
		return cfg.defined(key) && !flags.Changed(flag)
	}

	v := cfg.values
	if use("port", "port") {
		portName = strings.TrimSpace(v.Port)
	}
	if use("baud", "baud") {
		baudRate = v.Baud
	}
	if use("url", "url") {
		wsURL = strings.TrimSpace(v.URL)
	}
	if use("username", "username") {
		wsUsername = v.Username
	}
	if use("no_ssl_verify", "no-ssl-verify") {
		wsNoSSLVerify = v.NoSSLVerify
	}
	if use("software", "software") {
		useSoftware = v.Software
	}
	if use("capacity", "capacity") {
		capacity = v.Capacity
	}
	if use("verbose", "verbose") {
		verbose = v.Verbose
	}

	if cfg.defined("identity", "name") {
		identity.Name = v.Identity.Name
	}
	if cfg.defined("identity", "max_packet_size") {
		identity.MaxPacketSize = v.Identity.MaxPacketSize
	}
	if cfg.defined("identity", "ascii") {
		identity.ASCII = v.Identity.ASCII
	}
}

func validateCapacity(c int) error {
	if c < 0 || c > flem.MaxCapacity {
		return fmt.Errorf("capacity %d out of range (0-%d)", c, flem.MaxCapacity)
	}
	return nil
}
