// Copyright (c) 2026, Google LLC All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the emulator server configuration from TOML or YAML
// files.
package config

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Transports the server can run.
const (
	TransportUDS   = "uds"
	TransportMSSIM = "mssim"
)

var (
	// ErrUnknownFormat indicates a config file extension that is neither
	// TOML nor YAML.
	ErrUnknownFormat = errors.New("unknown config file format")
	// ErrInvalid indicates a config value that cannot be used.
	ErrInvalid = errors.New("invalid config")
)

// Config is the server configuration.
type Config struct {
	Transport       string `toml:"transport" yaml:"transport"`
	SocketPath      string `toml:"socket_path" yaml:"socket_path"`
	CommandAddress  string `toml:"command_address" yaml:"command_address"`
	PlatformAddress string `toml:"platform_address" yaml:"platform_address"`
	MetricsAddress  string `toml:"metrics_address" yaml:"metrics_address"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
	LogFormat       string `toml:"log_format" yaml:"log_format"`
	// RequireStartup rejects commands issued before TPM2_Startup.
	RequireStartup bool `toml:"require_startup" yaml:"require_startup"`
	// PowerOn starts an MSSIM TPM powered on instead of waiting for the
	// platform POWER_ON signal.
	PowerOn bool `toml:"power_on" yaml:"power_on"`
	// Manufacturer is the TPM_PT_MANUFACTURER value, either a vendor ID of
	// up to four ASCII characters or an integer such as 0x474F4F47.
	Manufacturer string `toml:"manufacturer" yaml:"manufacturer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Transport:       TransportUDS,
		SocketPath:      "/tmp/tpm-emulator.sock",
		CommandAddress:  "localhost:2321",
		PlatformAddress: "localhost:2322",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads the file at path over the defaults. The format is chosen by
// extension: .toml, .yaml or .yml.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return Config{}, fmt.Errorf("%w: unknown keys %s in %s", ErrInvalid, strings.Join(keys, ", "), path)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg describes a runnable server.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportUDS:
		if c.SocketPath == "" {
			return fmt.Errorf("%w: socket_path is required for the %s transport", ErrInvalid, c.Transport)
		}
	case TransportMSSIM:
		if c.CommandAddress == "" || c.PlatformAddress == "" {
			return fmt.Errorf("%w: command_address and platform_address are required for the %s transport", ErrInvalid, c.Transport)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}
	if _, err := ParseManufacturer(c.Manufacturer); err != nil {
		return err
	}
	return nil
}

// ManufacturerID returns the configured manufacturer as a TPM property value.
func (c Config) ManufacturerID() uint32 {
	id, _ := ParseManufacturer(c.Manufacturer)
	return id
}

// ParseManufacturer converts a manufacturer setting to its property value.
// Integers are accepted in any base strconv understands. Anything else is a
// vendor ID of at most four ASCII characters, padded with NULs on the right
// as TPM vendor IDs are.
func ParseManufacturer(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uint32(v), nil
	}
	if len(s) > 4 {
		return 0, fmt.Errorf("%w: manufacturer %q is longer than 4 characters", ErrInvalid, s)
	}
	var id [4]byte
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return 0, fmt.Errorf("%w: manufacturer %q is not ASCII", ErrInvalid, s)
		}
		id[i] = s[i]
	}
	return binary.BigEndian.Uint32(id[:]), nil
}
