// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PKCS11Config holds the module path, slot policy, and PIN source for the
// PKCS#11 session layer (crypto/pkcs11). The PIN itself is never stored in
// config; PINEnv names the environment variable read at session-open time.
type PKCS11Config struct {
	ModulePath   string        `yaml:"module_path" json:"module_path"`
	SlotID       *uint         `yaml:"slot_id" json:"slot_id"`
	TokenLabel   string        `yaml:"token_label" json:"token_label"`
	PINEnv       string        `yaml:"pin_env" json:"pin_env"`
	PINCacheTTL  time.Duration `yaml:"pin_cache_ttl" json:"pin_cache_ttl"`
	MaxSessions  int           `yaml:"max_sessions" json:"max_sessions"`
	LoginRetries int           `yaml:"login_retries" json:"login_retries"`
}

// ExtensionConfig configures the ext package's global extension registry:
// which built-in extensions are enabled and how many slots a session's
// opaque extension-data table reserves.
type ExtensionConfig struct {
	Enabled         []string `yaml:"enabled" json:"enabled"`
	SessionCapacity int      `yaml:"session_capacity" json:"session_capacity"`
}

// PKCS11Presets defines preset module/slot configurations per environment.
// "local" targets a SoftHSM2 token, the standard stand-in for real hardware
// in development and CI; "production" leaves ModulePath empty so it must
// come from SAGE_PKCS11_MODULE or the config file.
var PKCS11Presets = map[string]*PKCS11Config{
	"local": {
		ModulePath:   "/usr/lib/softhsm/libsofthsm2.so",
		TokenLabel:   "sage-dev",
		PINEnv:       "SAGE_PKCS11_PIN",
		PINCacheTTL:  5 * time.Minute,
		MaxSessions:  4,
		LoginRetries: 3,
	},
	"production": {
		TokenLabel:   "sage",
		PINEnv:       "SAGE_PKCS11_PIN",
		PINCacheTTL:  1 * time.Minute,
		MaxSessions:  16,
		LoginRetries: 2,
	},
}

// LoadPKCS11Config loads PKCS#11 configuration from environment variables
// or uses the preset for env, mirroring the teacher's blockchain
// NetworkPresets/LoadConfig shape.
func LoadPKCS11Config(env string) (*PKCS11Config, error) {
	preset, exists := PKCS11Presets[strings.ToLower(env)]
	if !exists {
		preset = PKCS11Presets["local"]
	}

	cfg := &PKCS11Config{
		ModulePath:   preset.ModulePath,
		TokenLabel:   preset.TokenLabel,
		PINEnv:       preset.PINEnv,
		PINCacheTTL:  preset.PINCacheTTL,
		MaxSessions:  preset.MaxSessions,
		LoginRetries: preset.LoginRetries,
	}
	if preset.SlotID != nil {
		slot := *preset.SlotID
		cfg.SlotID = &slot
	}

	if module := os.Getenv("SAGE_PKCS11_MODULE"); module != "" {
		cfg.ModulePath = module
	}
	if label := os.Getenv("SAGE_PKCS11_TOKEN_LABEL"); label != "" {
		cfg.TokenLabel = label
	}
	if pinEnv := os.Getenv("SAGE_PKCS11_PIN_ENV"); pinEnv != "" {
		cfg.PINEnv = pinEnv
	}
	if slotID := os.Getenv("SAGE_PKCS11_SLOT_ID"); slotID != "" {
		id, err := strconv.ParseUint(slotID, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid slot ID: %w", err)
		}
		slot := uint(id)
		cfg.SlotID = &slot
	}
	if retries := os.Getenv("SAGE_PKCS11_LOGIN_RETRIES"); retries != "" {
		r, err := strconv.Atoi(retries)
		if err != nil {
			return nil, fmt.Errorf("invalid login retries: %w", err)
		}
		cfg.LoginRetries = r
	}

	return cfg, nil
}

// Validate checks if the PKCS#11 configuration is usable.
func (c *PKCS11Config) Validate() error {
	if c.ModulePath == "" {
		return fmt.Errorf("pkcs11 module path is required")
	}
	if c.PINEnv == "" {
		return fmt.Errorf("pkcs11 PIN environment variable name is required")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be greater than 0")
	}
	if c.LoginRetries < 0 {
		return fmt.Errorf("login retries cannot be negative")
	}
	return nil
}

// PIN reads the PKCS#11 PIN from the environment variable named by PINEnv.
func (c *PKCS11Config) PIN() (string, bool) {
	if c.PINEnv == "" {
		return "", false
	}
	pin := os.Getenv(c.PINEnv)
	return pin, pin != ""
}

// IsLocal returns true if the configuration targets the SoftHSM dev token.
func (c *PKCS11Config) IsLocal() bool {
	return strings.Contains(c.ModulePath, "softhsm")
}

// Validate checks if the extension configuration is usable.
func (c *ExtensionConfig) Validate() error {
	if c.SessionCapacity <= 0 {
		return fmt.Errorf("extension session capacity must be greater than 0")
	}
	if len(c.Enabled) == 0 {
		return fmt.Errorf("at least one extension must be enabled")
	}
	return nil
}
