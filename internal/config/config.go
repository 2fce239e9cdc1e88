// Package config handles loading and validating the tagclaw
// configuration. Config is stored at ~/.tagclaw/tagclaw.json; comments
// and trailing commas are tolerated so the file can be annotated by
// hand.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the top-level tagclaw configuration. The owner/admin state
// lives in its own file (Bot.SettingsPath), not here; this file only
// carries deployment knobs.
type Config struct {
	Bot  BotConfig  `json:"bot"`
	HTTP HTTPConfig `json:"http"`
	Log  LogConfig  `json:"log"`
}

// BotConfig configures the WhatsApp bot itself.
type BotConfig struct {
	// SettingsPath is the owner/admin settings file.
	SettingsPath string `json:"settingsPath"`

	// CredentialDB is the SQLite database holding the WhatsApp pairing
	// credentials and encryption state.
	CredentialDB string `json:"credentialDb"`

	// DeviceName is shown in the phone's linked-devices list.
	DeviceName string `json:"deviceName"`

	// CommandRateLimit caps keyword commands per sender per minute.
	// Zero disables the limit.
	CommandRateLimit int `json:"commandRateLimit"`
}

// HTTPConfig configures the internal status server.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Bind    string `json:"bind"` // "loopback" or "all"
}

// LogConfig configures file logging.
type LogConfig struct {
	Dir        string `json:"dir"`
	Level      string `json:"level"` // "debug", "info", "warn", "error"
	MaxAgeDays int    `json:"maxAgeDays"`
	MaxSizeMB  int    `json:"maxSizeMb"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dir := ConfigDir()
	return &Config{
		Bot: BotConfig{
			SettingsPath:     filepath.Join(dir, "settings.json"),
			CredentialDB:     filepath.Join(dir, "credentials.db"),
			DeviceName:       "tagclaw",
			CommandRateLimit: 20,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    18791,
			Bind:    "loopback",
		},
		Log: LogConfig{
			Dir:        filepath.Join(dir, "logs"),
			Level:      "info",
			MaxAgeDays: 30,
			MaxSizeMB:  50,
		},
	}
}

// ConfigDir returns the tagclaw config directory (~/.tagclaw).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tagclaw"
	}
	return filepath.Join(home, ".tagclaw")
}

// ConfigPath returns the path to the main config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "tagclaw.json")
}

// Load reads and parses the config from disk. A missing file yields
// defaults. TAGCLAW_CONFIG overrides the file location.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if envPath := os.Getenv("TAGCLAW_CONFIG"); envPath != "" {
		configPath = envPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	clean := preprocessJSONLike(string(data))
	if err := json.Unmarshal([]byte(clean), cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg *Config) error {
	path := ConfigPath()
	if envPath := os.Getenv("TAGCLAW_CONFIG"); envPath != "" {
		path = envPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// preprocessJSONLike strips /* */ and // comments plus trailing commas
// so hand-edited config files survive strict JSON parsing.
func preprocessJSONLike(input string) string {
	s := input
	for {
		start := strings.Index(s, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(s[start+2:], "*/")
		if end < 0 {
			s = s[:start]
			break
		}
		end += start + 2
		s = s[:start] + s[end+2:]
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		inString := false
		escape := false
		for j := 0; j < len(line)-1; j++ {
			ch := line[j]
			if ch == '\\' && inString {
				escape = !escape
				continue
			}
			if ch == '"' && !escape {
				inString = !inString
			}
			escape = false
			if !inString && ch == '/' && line[j+1] == '/' {
				line = line[:j]
				break
			}
		}
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	s = strings.ReplaceAll(s, ",}", "}")
	s = strings.ReplaceAll(s, ",]", "]")
	return s
}
