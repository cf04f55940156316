// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config resolves the instance configuration: viper-backed loading of
// the YAML config file with flag and environment overrides, plus write-back
// helpers for values that change at runtime, like the secret key a legacy
// restore installs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config carries the resolved filesystem layout and secrets for the backup
// engine. It is built once at startup and passed into the engine explicitly;
// nothing in this package keeps derived global state.
type Config struct {
	// DatabasePath is the live SQLite database file.
	DatabasePath string
	// AvatarDir holds user-uploaded avatar images.
	AvatarDir string
	// PreRestoreDir receives unencrypted safety snapshots taken before a
	// destructive restore. Files there are never deleted automatically.
	PreRestoreDir string
	// SecretKey is the deployment secret the instance key is derived from.
	SecretKey string
	// Language selects the locale for user-facing messages.
	Language string
	// Source is the config file this configuration was loaded from, when known.
	Source string
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		// System-wide configuration paths
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Tripmaster")
		default: // Linux, macOS, etc.
			configDir = "/etc/tripmaster"
		}
	} else {
		// User-specific configuration paths
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "tripmaster")
	}

	return filepath.Join(configDir, "tripmaster.yaml"), nil
}

// Load reads the configuration from file, environment and flags, in that
// order of increasing precedence, and resolves it into a Config.
func Load(cmd *cobra.Command, additionalConfigFilePath *string) (Config, error) {
	var c Config
	v := viper.New()

	// 1. Set defaults
	v.SetDefault("database.dsn", "sqlite:///./data/tripmaster.db")
	v.SetDefault("paths.avatars", "./static/avatars")
	v.SetDefault("paths.pre_restore", "./backups/pre_restore")
	v.SetDefault("secret_key", "")
	v.SetDefault("language", "en")

	// 2. Set up file search paths
	v.SetConfigName("tripmaster")
	v.SetConfigType("yaml")

	// 3. Add explicit config file path if provided via --config flag.
	// This has the highest precedence for file-based configuration.
	if additionalConfigFilePath != nil && *additionalConfigFilePath != "" {
		v.SetConfigFile(*additionalConfigFilePath)
	}

	// 4. Add standard config locations
	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".") // Look for tripmaster.yaml in current dir

	// 5. Read in the primary config file.
	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	// 6. Read from environment variables
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("tripmaster")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 7. Bind CLI flags when a command is given.
	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	c = Config{
		DatabasePath:  DatabasePathFromDSN(v.GetString("database.dsn")),
		AvatarDir:     v.GetString("paths.avatars"),
		PreRestoreDir: v.GetString("paths.pre_restore"),
		SecretKey:     v.GetString("secret_key"),
		Language:      v.GetString("language"),
		Source:        v.ConfigFileUsed(),
	}
	return c, nil
}

// DatabasePathFromDSN extracts the file path from a sqlite connection string.
// Plain paths are returned unchanged, so both "sqlite:///./data/app.db" and
// "./data/app.db" work.
func DatabasePathFromDSN(dsn string) string {
	p := strings.TrimPrefix(dsn, "sqlite:///")
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return dsn
	}
	return p
}

// UpdateSecretKey rewrites the secret_key entry in the given config file,
// creating the file if it does not exist. This is used when restoring a
// legacy archive whose manifest carries the old instance key: installing it
// keeps previously encrypted integration secrets decryptable.
func UpdateSecretKey(path, newKey string) error {
	if path == "" {
		var err error
		path, err = getConfigPath(false)
		if err != nil {
			return err
		}
	}

	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("could not parse config file %s: %w", path, err)
		}
	}
	doc["secret_key"] = newKey

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// Use 0600 for security, as it contains secrets
	return os.WriteFile(path, data, 0600)
}

// WriteConfigFile persists the configuration as YAML to the standard
// location for the user or system scope.
func WriteConfigFile(c *Config, system bool) error {
	path, err := getConfigPath(system)
	if err != nil {
		return err
	}

	doc := map[string]any{
		"database": map[string]any{"dsn": "sqlite:///" + c.DatabasePath},
		"paths": map[string]any{
			"avatars":     c.AvatarDir,
			"pre_restore": c.PreRestoreDir,
		},
		"secret_key": c.SecretKey,
		"language":   c.Language,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	return os.WriteFile(path, data, 0600)
}
