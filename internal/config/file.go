package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	kdl "github.com/sblinch/kdl-go"
)

// ConfigFileName is the project config file searched for by FindConfigFile.
const ConfigFileName = ".tauri-mcp.kdl"

// fileConfig mirrors Config in file form. Durations are strings such as
// "10s"; unset fields leave the current value alone.
type fileConfig struct {
	Host              string         `kdl:"host" toml:"host"`
	Port              int            `kdl:"port" toml:"port"`
	RequestTimeout    string         `kdl:"request-timeout" toml:"request_timeout"`
	KeepAliveInterval string         `kdl:"keep-alive-interval" toml:"keep_alive_interval"`
	ConnectTimeout    string         `kdl:"connect-timeout" toml:"connect_timeout"`
	CommandTimeout    string         `kdl:"command-timeout" toml:"command_timeout"`
	RequireVersion    string         `kdl:"require-version" toml:"require_version"`
	LogLevel          string         `kdl:"log-level" toml:"log_level"`
	MetricsPath       *string        `kdl:"metrics-path" toml:"metrics_path"`
	Reconnect         *fileReconnect `kdl:"reconnect" toml:"reconnect"`
	Browser           *fileBrowser   `kdl:"browser" toml:"browser"`
}

type fileReconnect struct {
	Enabled     *bool  `kdl:"enabled" toml:"enabled"`
	MaxAttempts *int   `kdl:"max-attempts" toml:"max_attempts"`
	BaseDelay   string `kdl:"base-delay" toml:"base_delay"`
}

type fileBrowser struct {
	ControlURL   string `kdl:"control-url" toml:"control_url"`
	Headless     *bool  `kdl:"headless" toml:"headless"`
	StartURL     string `kdl:"start-url" toml:"start_url"`
	ConsoleLimit *int   `kdl:"console-limit" toml:"console_limit"`
}

// FindConfigFile searches for .tauri-mcp.kdl starting from dir and walking up.
func FindConfigFile(dir string) string {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(absDir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			break
		}
		absDir = parent
	}

	return ""
}

// LoadFile merges a .kdl or .toml file into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		if err := kdl.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := c.merge(&fc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	c.Source = path
	return nil
}

// ParseKDL merges KDL text into c.
func (c *Config) ParseKDL(data string) error {
	var fc fileConfig
	if err := kdl.Unmarshal([]byte(data), &fc); err != nil {
		return err
	}
	return c.merge(&fc)
}

func (c *Config) merge(fc *fileConfig) error {
	if fc.Host != "" {
		c.Host = fc.Host
	}
	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.RequireVersion != "" {
		c.RequireVersion = fc.RequireVersion
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.MetricsPath != nil {
		c.MetricsPath = *fc.MetricsPath
	}

	durations := []durationField{
		{"request-timeout", fc.RequestTimeout, &c.RequestTimeout},
		{"keep-alive-interval", fc.KeepAliveInterval, &c.KeepAliveInterval},
		{"connect-timeout", fc.ConnectTimeout, &c.ConnectTimeout},
		{"command-timeout", fc.CommandTimeout, &c.CommandTimeout},
	}
	if r := fc.Reconnect; r != nil {
		if r.Enabled != nil {
			c.Reconnect.Enabled = *r.Enabled
		}
		if r.MaxAttempts != nil {
			c.Reconnect.MaxAttempts = *r.MaxAttempts
		}
		durations = append(durations, durationField{"reconnect base-delay", r.BaseDelay, &c.Reconnect.BaseDelay})
	}
	for _, d := range durations {
		if err := d.apply(); err != nil {
			return err
		}
	}

	if b := fc.Browser; b != nil {
		if b.ControlURL != "" {
			c.Browser.ControlURL = b.ControlURL
		}
		if b.Headless != nil {
			c.Browser.Headless = *b.Headless
		}
		if b.StartURL != "" {
			c.Browser.StartURL = b.StartURL
		}
		if b.ConsoleLimit != nil {
			c.Browser.ConsoleLimit = *b.ConsoleLimit
		}
	}
	return nil
}

type durationField struct {
	name string
	raw  string
	dst  *time.Duration
}

func (d durationField) apply() error {
	if d.raw == "" {
		return nil
	}
	v, err := time.ParseDuration(d.raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
	}
	*d.dst = v
	return nil
}
