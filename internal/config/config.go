// Package config loads statdiary settings. Values are layered: built-in
// defaults, then the YAML config file, then environment variables. Command
// line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvRoot     = "STATDIARY_ROOT"
	EnvLogLevel = "STATDIARY_LOG_LEVEL"
	EnvLogJSON  = "STATDIARY_LOG_JSON"
)

type Config struct {
	Root   string       `yaml:"root"`
	Log    LogConfig    `yaml:"log"`
	Backup BackupConfig `yaml:"backup"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type BackupConfig struct {
	// Level is a zstd level name: fastest, default, better or best.
	Level string `yaml:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Root:   ".",
		Log:    LogConfig{Level: "info"},
		Backup: BackupConfig{Level: "best"},
	}
}

// DefaultPath returns ~/.config/statdiary/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user config directory: %w", err)
	}
	return filepath.Join(dir, "statdiary", "config.yaml"), nil
}

// Load builds the configuration. path names the YAML file; when empty the
// default path is used and a missing file is not an error. An explicitly
// named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if v := os.Getenv(EnvRoot); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = b
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that are parsed later.
func (c Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: root is empty")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.BackupLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("config: log level %q: %w", c.Log.Level, err)
	}
	return lvl, nil
}

// BackupLevel parses Backup.Level.
func (c Config) BackupLevel() (zstd.EncoderLevel, error) {
	ok, lvl := zstd.EncoderLevelFromString(c.Backup.Level)
	if !ok {
		return 0, fmt.Errorf("config: unknown backup level %q", c.Backup.Level)
	}
	return lvl, nil
}
