// Package config handles the scrollguard daemon configuration: a YAML file
// with defaults, overridable by SCROLLGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/scrollguard/protocol"
)

// Config is the top-level daemon configuration.
type Config struct {
	DBPath      string            `yaml:"db_path"`
	LogLevel    string            `yaml:"log_level"`
	// TraceSQL logs every settings database statement at debug level.
	TraceSQL    bool              `yaml:"trace_sql"`
	HTTP        HTTPConfig        `yaml:"http"`
	Browser     BrowserConfig     `yaml:"browser"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Settings    SettingsConfig    `yaml:"settings"`
	Journal     JournalConfig     `yaml:"journal"`
	// Pages are opened in observed tabs at startup.
	Pages []string `yaml:"pages"`
	// Remote sends some message types to another daemon instead of the
	// local coordinator.
	Remote []RemoteRoute `yaml:"remote"`
}

// HTTPConfig controls the local HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote   string `yaml:"remote"`
	Headless bool   `yaml:"headless"`
	Bin      string `yaml:"bin"`
}

// CoordinatorConfig controls intervention arbitration.
type CoordinatorConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	// PopupURL defaults to the intervention page on HTTP.Addr.
	PopupURL string `yaml:"popup_url"`
}

// TrackerConfig controls the per-page timers.
type TrackerConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	NoScrollTimeout time.Duration `yaml:"no_scroll_timeout"`
	PendingTimeout  time.Duration `yaml:"pending_timeout"`
}

// SettingsConfig controls the settings change feed.
type SettingsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// JournalConfig controls the intervention journal.
type JournalConfig struct {
	Disabled  bool          `yaml:"disabled"`
	Retention time.Duration `yaml:"retention"`
}

// RemoteRoute sends one message type to a remote daemon.
type RemoteRoute struct {
	Type    protocol.Type `yaml:"type"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given:
// environment overrides over built-in defaults, validated.
func Default() (*Config, error) {
	c := &Config{}
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile reads a YAML configuration file, applies environment overrides
// and defaults, then validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is LoadFile for an in-memory document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve applies environment overrides, then defaults, then validates.
func (c *Config) resolve() error {
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return err
	}
	c.applyDefaults()
	return c.Validate()
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "scrollguard.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:7879"
	}
	if c.Coordinator.Cooldown <= 0 {
		c.Coordinator.Cooldown = 5 * time.Second
	}
	if c.Coordinator.PopupURL == "" {
		c.Coordinator.PopupURL = "http://" + c.HTTP.Addr + "/intervention"
	}
	if c.Tracker.IdleTimeout <= 0 {
		c.Tracker.IdleTimeout = 5 * time.Minute
	}
	if c.Tracker.NoScrollTimeout <= 0 {
		c.Tracker.NoScrollTimeout = 30 * time.Second
	}
	if c.Settings.PollInterval <= 0 {
		c.Settings.PollInterval = 500 * time.Millisecond
	}
	if c.Settings.Debounce <= 0 {
		c.Settings.Debounce = 200 * time.Millisecond
	}
	if c.Journal.Retention == 0 {
		c.Journal.Retention = 30 * 24 * time.Hour
	}
	for i := range c.Remote {
		if c.Remote[i].Timeout <= 0 {
			c.Remote[i].Timeout = 10 * time.Second
		}
	}
}

// applyEnv overrides file values with SCROLLGUARD_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SCROLLGUARD_DB"); ok {
		c.DBPath = v
	}
	if v, ok := lookup("SCROLLGUARD_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("SCROLLGUARD_HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("SCROLLGUARD_BROWSER_REMOTE"); ok {
		c.Browser.Remote = v
	}
	if v, ok := lookup("SCROLLGUARD_TRACE_SQL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SCROLLGUARD_TRACE_SQL: %w", err)
		}
		c.TraceSQL = b
	}
	if v, ok := lookup("SCROLLGUARD_HEADLESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SCROLLGUARD_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}
	return nil
}

// Validate reports configuration errors that defaults cannot fix.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("config: http.addr: %w", err))
	}
	if c.Tracker.PendingTimeout < 0 {
		errs = append(errs, errors.New("config: tracker.pending_timeout must not be negative"))
	}
	for i, r := range c.Remote {
		if !r.Type.Valid() {
			errs = append(errs, fmt.Errorf("config: remote[%d]: unknown message type %q", i, r.Type))
		}
		if r.URL == "" {
			errs = append(errs, fmt.Errorf("config: remote[%d]: url is required", i))
		}
	}
	return errors.Join(errs...)
}
