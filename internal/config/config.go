// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/ollamachat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ollamachat configuration.
type Config struct {
	Ollama  OllamaConfig  `toml:"ollama" json:"ollama"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// OllamaConfig contains the inference server settings.
type OllamaConfig struct {
	// URL is the Ollama server base URL
	URL string `toml:"url" json:"url"`
	// Model is preselected when installed; empty picks the first listed model
	Model string `toml:"model" json:"model"`
	// RequestTimeout bounds non-streaming calls such as listing models
	RequestTimeout Duration `toml:"request_timeout" json:"request_timeout"`
	// TurnTimeout caps a whole chat turn, from send to last delta
	TurnTimeout Duration `toml:"turn_timeout" json:"turn_timeout"`
	// StallTimeout bounds the silence between stream events
	StallTimeout Duration `toml:"stall_timeout" json:"stall_timeout"`
}

// StorageConfig contains conversation persistence settings.
type StorageConfig struct {
	// Backend is "json" (a single chats.json) or "sqlite"
	Backend string `toml:"backend" json:"backend"`
	// DataDir holds the store and the log file; "~" expands to home
	DataDir string `toml:"data_dir" json:"data_dir"`
}

// ChatConfig contains turn policies.
type ChatConfig struct {
	// PersistFailedTurns also saves the apology message of a failed turn
	PersistFailedTurns bool `toml:"persist_failed_turns" json:"persist_failed_turns"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	// Theme is "dark", "light" or "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant replies with glamour
	Markdown bool `toml:"markdown" json:"markdown"`
	// SidebarWidth is the conversation list width in columns
	SidebarWidth int `toml:"sidebar_width" json:"sidebar_width"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level"`
	// File overrides the default <data_dir>/ollamachat.log
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as "90s" or "5m" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Bare integers are
// read as seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:            "http://127.0.0.1:11434",
			RequestTimeout: Duration(30 * time.Second),
			TurnTimeout:    Duration(30 * time.Minute),
			StallTimeout:   Duration(2 * time.Minute),
		},
		Storage: StorageConfig{
			Backend: "json",
			DataDir: "~/.ollamachat",
		},
		UI: UIConfig{
			Theme:        "auto",
			Markdown:     true,
			SidebarWidth: 28,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = defaults.Ollama.URL
	}
	if cfg.Ollama.RequestTimeout == 0 {
		cfg.Ollama.RequestTimeout = defaults.Ollama.RequestTimeout
	}
	if cfg.Ollama.TurnTimeout == 0 {
		cfg.Ollama.TurnTimeout = defaults.Ollama.TurnTimeout
	}
	if cfg.Ollama.StallTimeout == 0 {
		cfg.Ollama.StallTimeout = defaults.Ollama.StallTimeout
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaults.Storage.DataDir
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.SidebarWidth == 0 {
		cfg.UI.SidebarWidth = defaults.UI.SidebarWidth
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the ollamachat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ollamachat"), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// DataDir returns the expanded storage directory.
func (c *Config) DataDir() string {
	return ExpandHome(c.Storage.DataDir)
}

// LogFile returns the log file path.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return ExpandHome(c.Log.File)
	}
	return filepath.Join(c.DataDir(), "ollamachat.log")
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads configuration from path, or the default location when path is
// empty. A missing file yields defaults. Environment overrides are applied
// last and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if err := decodeFile(cfg, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decodeFile decodes TOML or, for .json paths, JSON into cfg.
func decodeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON file: %w", err)
		}
		return nil
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration as TOML. Files are created 0600.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# ollamachat configuration file\n")
	buf.WriteString("# Environment variables OLLAMACHAT_* override these values.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - OLLAMACHAT_OLLAMA_URL: overrides ollama.url
//   - OLLAMACHAT_MODEL: overrides ollama.model
//   - OLLAMACHAT_DATA_DIR: overrides storage.data_dir
//   - OLLAMACHAT_STORE: overrides storage.backend
//   - OLLAMACHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OLLAMACHAT_OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv("OLLAMACHAT_MODEL"); v != "" {
		c.Ollama.Model = v
	}
	if v := os.Getenv("OLLAMACHAT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("OLLAMACHAT_STORE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("OLLAMACHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Ollama.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "ollama.url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Ollama.URL),
		})
	}
	if c.Ollama.RequestTimeout < 0 {
		errs = append(errs, ValidationError{Field: "ollama.request_timeout", Message: "must not be negative"})
	}
	if c.Ollama.TurnTimeout < 0 {
		errs = append(errs, ValidationError{Field: "ollama.turn_timeout", Message: "must not be negative"})
	}
	if c.Ollama.StallTimeout < 0 {
		errs = append(errs, ValidationError{Field: "ollama.stall_timeout", Message: "must not be negative"})
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "json", "sqlite":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: json, sqlite", c.Storage.Backend),
		})
	}

	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}
	if c.UI.SidebarWidth < 10 || c.UI.SidebarWidth > 80 {
		errs = append(errs, ValidationError{
			Field:   "ui.sidebar_width",
			Message: fmt.Sprintf("width %d out of range 10-80", c.UI.SidebarWidth),
		})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Clone creates a copy of the configuration. All fields are values.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as TOML for display.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err.Error()
	}
	return buf.String()
}
