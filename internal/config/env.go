package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable, e.g. TAURI_MCP_PORT.
const EnvPrefix = "TAURI_MCP"

// envConfig lists the environment overrides. Unset variables leave the
// current value alone.
type envConfig struct {
	Host              string        `envconfig:"HOST"`
	Port              int           `envconfig:"PORT"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT"`
	KeepAliveInterval time.Duration `envconfig:"KEEP_ALIVE_INTERVAL"`
	ConnectTimeout    time.Duration `envconfig:"CONNECT_TIMEOUT"`
	CommandTimeout    time.Duration `envconfig:"COMMAND_TIMEOUT"`
	ReconnectEnabled  *bool         `envconfig:"RECONNECT"`
	MaxAttempts       *int          `envconfig:"RECONNECT_MAX_ATTEMPTS"`
	BaseDelay         time.Duration `envconfig:"RECONNECT_BASE_DELAY"`
	RequireVersion    string        `envconfig:"REQUIRE_VERSION"`
	LogLevel          string        `envconfig:"LOG_LEVEL"`
	BrowserURL        string        `envconfig:"BROWSER_URL"`
	Headless          *bool         `envconfig:"HEADLESS"`
	ConsoleLimit      int           `envconfig:"CONSOLE_LIMIT"`
}

// ApplyEnv overlays TAURI_MCP_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var e envConfig
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	if e.Host != "" {
		c.Host = e.Host
	}
	if e.Port != 0 {
		c.Port = e.Port
	}
	if e.RequestTimeout != 0 {
		c.RequestTimeout = e.RequestTimeout
	}
	if e.KeepAliveInterval != 0 {
		c.KeepAliveInterval = e.KeepAliveInterval
	}
	if e.ConnectTimeout != 0 {
		c.ConnectTimeout = e.ConnectTimeout
	}
	if e.CommandTimeout != 0 {
		c.CommandTimeout = e.CommandTimeout
	}
	if e.ReconnectEnabled != nil {
		c.Reconnect.Enabled = *e.ReconnectEnabled
	}
	if e.MaxAttempts != nil {
		c.Reconnect.MaxAttempts = *e.MaxAttempts
	}
	if e.BaseDelay != 0 {
		c.Reconnect.BaseDelay = e.BaseDelay
	}
	if e.RequireVersion != "" {
		c.RequireVersion = e.RequireVersion
	}
	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
	if e.BrowserURL != "" {
		c.Browser.ControlURL = e.BrowserURL
	}
	if e.Headless != nil {
		c.Browser.Headless = *e.Headless
	}
	if e.ConsoleLimit != 0 {
		c.Browser.ConsoleLimit = e.ConsoleLimit
	}
	return nil
}
