package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

// Defaults used when the config file is missing or a field is empty
const (
	DefaultTool             = "htflow"
	DefaultPackage          = "htflow"
	DefaultListen           = "127.0.0.1:7357"
	DefaultLogLevel         = "info"
	DefaultBrowserOpenDelay = 3 * time.Second
)

// Config holds persistent user configuration
type Config struct {
	Tool               string         `toml:"tool"`
	Package            string         `toml:"package"`
	Workspace          string         `toml:"workspace,omitempty"`
	Listen             string         `toml:"listen"`
	Shell              string         `toml:"shell,omitempty"`
	LogLevel           string         `toml:"log_level"`
	AutoOpenBrowser    bool           `toml:"auto_open_browser"`
	BrowserOpenDelayMs int            `toml:"browser_open_delay_ms"`
	WatchFiles         bool           `toml:"watch_files"`
	PanelURL           string         `toml:"panel_url,omitempty"`
	Settings           map[string]any `toml:"settings,omitempty"`
}

// Default returns a config populated with built-in defaults
func Default() *Config {
	return &Config{
		Tool:               DefaultTool,
		Package:            DefaultPackage,
		Listen:             DefaultListen,
		LogLevel:           DefaultLogLevel,
		AutoOpenBrowser:    true,
		BrowserOpenDelayMs: int(DefaultBrowserOpenDelay / time.Millisecond),
		WatchFiles:         true,
		Settings:           make(map[string]any),
	}
}

// configDir returns the config directory path: ~/.config/htflow-panel/
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".htflow-panel"
	}
	return filepath.Join(home, ".config", "htflow-panel")
}

// Dir returns the config directory path
func Dir() string {
	return configDir()
}

// LogsDir returns the terminal transcript directory: ~/.config/htflow-panel/logs/
func LogsDir() string {
	return filepath.Join(configDir(), "logs")
}

// Path returns the default config file path
func Path() string {
	return filepath.Join(configDir(), "config.toml")
}

// Load reads configuration from path. A missing or unreadable file yields defaults.
func Load(path string) *Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return Default()
	}
	cfg.fillDefaults()
	return cfg
}

// Save persists the config atomically
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return renameio.WriteFile(path, data, 0o644)
}

func (c *Config) fillDefaults() {
	if c.Tool == "" {
		c.Tool = DefaultTool
	}
	if c.Package == "" {
		c.Package = DefaultPackage
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.BrowserOpenDelayMs < 0 {
		c.BrowserOpenDelayMs = 0
	}
	if c.Settings == nil {
		c.Settings = make(map[string]any)
	}
}

// BrowserOpenDelay returns the wait before a started server is opened in the browser
func (c *Config) BrowserOpenDelay() time.Duration {
	return time.Duration(c.BrowserOpenDelayMs) * time.Millisecond
}

// Apply updates a setting by name. Known settings map onto typed fields,
// anything else is kept in Settings as-is.
func (c *Config) Apply(setting string, value any) error {
	switch normalizeKey(setting) {
	case "tool", "htflowpath", "clipath":
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("setting %q expects a non-empty string", setting)
		}
		c.Tool = strings.TrimSpace(s)
	case "package":
		s, ok := value.(string)
		if !ok || s == "" {
			return fmt.Errorf("setting %q expects a non-empty string", setting)
		}
		c.Package = s
	case "autoopenbrowser":
		b, err := asBool(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", setting, err)
		}
		c.AutoOpenBrowser = b
	case "watchfiles":
		b, err := asBool(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", setting, err)
		}
		c.WatchFiles = b
	case "browseropendelayms":
		n, err := asInt(value)
		if err != nil || n < 0 {
			return fmt.Errorf("setting %q expects a non-negative number", setting)
		}
		c.BrowserOpenDelayMs = n
	default:
		if c.Settings == nil {
			c.Settings = make(map[string]any)
		}
		c.Settings[setting] = value
	}
	return nil
}

// normalizeKey lowercases a setting name and drops separators and an "htflow." prefix
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "htflow."))
	return strings.NewReplacer("_", "", "-", "", ".", "").Replace(s)
}

func asBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
