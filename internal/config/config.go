// Package config contains configuration for tauri-mcp.
//
// Values are layered, lowest precedence first: built-in defaults, a project
// file (.tauri-mcp.kdl found by walking up from the working directory, or an
// explicit .kdl/.toml path), TAURI_MCP_* environment variables, and finally
// command-line flags applied by the caller.
package config

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/vdavid/tauri-mcp/internal/browser"
	"github.com/vdavid/tauri-mcp/internal/dispatch"
	"github.com/vdavid/tauri-mcp/internal/protocol"
	"github.com/vdavid/tauri-mcp/internal/session"
)

// Config holds the complete configuration.
type Config struct {
	// Host and Port locate the in-app command host.
	Host string
	Port int

	// RequestTimeout is the client-side per-request deadline.
	RequestTimeout time.Duration
	// KeepAliveInterval is the ping interval on an open session.
	KeepAliveInterval time.Duration
	// ConnectTimeout bounds each dial.
	ConnectTimeout time.Duration
	// CommandTimeout bounds each command on the host side.
	CommandTimeout time.Duration

	Reconnect Reconnect

	// RequireVersion is a semver constraint on the host protocol version.
	RequireVersion string

	LogLevel string

	// MetricsPath is served by the host server; empty disables it.
	MetricsPath string

	Browser Browser

	// Source is the config file that was loaded, if any.
	Source string
}

// Reconnect holds the automatic reconnection policy.
type Reconnect struct {
	Enabled     bool
	MaxAttempts int
	BaseDelay   time.Duration
}

// Browser configures the browser-backed host.
type Browser struct {
	// ControlURL attaches to a running browser; empty launches one.
	ControlURL string
	Headless   bool
	StartURL   string

	// ConsoleLimit is how many console entries each page keeps.
	ConsoleLimit int
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Host:              protocol.DefaultHost,
		Port:              protocol.DefaultPort,
		RequestTimeout:    10 * time.Second,
		KeepAliveInterval: 30 * time.Second,
		ConnectTimeout:    5 * time.Second,
		CommandTimeout:    dispatch.DefaultCommandTimeout,
		Reconnect: Reconnect{
			Enabled:     true,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		LogLevel:    "info",
		MetricsPath: "/metrics",
		Browser: Browser{
			Headless:     true,
			StartURL:     "about:blank",
			ConsoleLimit: 25,
		},
	}
}

// Load builds a config from defaults, the config file and the environment.
// explicitPath wins over the walk-up search from dir.
func Load(dir, explicitPath string) (*Config, error) {
	cfg := Default()

	path := explicitPath
	if path == "" {
		path = FindConfigFile(dir)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"request timeout", c.RequestTimeout},
		{"connect timeout", c.ConnectTimeout},
		{"command timeout", c.CommandTimeout},
	} {
		if t.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", t.name, t.d)
		}
	}
	if c.KeepAliveInterval < 0 {
		return fmt.Errorf("keep-alive interval must not be negative")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect max attempts must not be negative")
	}
	if c.Reconnect.Enabled && c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect base delay must be positive")
	}
	if c.Browser.ConsoleLimit <= 0 {
		return fmt.Errorf("browser console limit must be positive, got %d", c.Browser.ConsoleLimit)
	}
	if c.RequireVersion != "" {
		if _, err := semver.NewConstraint(c.RequireVersion); err != nil {
			return fmt.Errorf("invalid require-version %q: %w", c.RequireVersion, err)
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return protocol.Address(c.Host, c.Port)
}

// SessionConfig converts to a client session configuration.
func (c *Config) SessionConfig(logger zerolog.Logger) session.Config {
	sc := session.DefaultConfig()
	sc.RequestTimeout = c.RequestTimeout
	sc.KeepAliveInterval = c.KeepAliveInterval
	sc.ConnectTimeout = c.ConnectTimeout
	sc.Dialer = session.WebSocketDialer{HandshakeTimeout: c.ConnectTimeout}
	sc.Reconnect = session.ReconnectPolicy{
		Enabled:     c.Reconnect.Enabled,
		MaxAttempts: c.Reconnect.MaxAttempts,
		BaseDelay:   c.Reconnect.BaseDelay,
	}
	sc.RequireVersion = c.RequireVersion
	sc.Logger = logger
	return sc
}

// ServerConfig converts to a host server configuration.
func (c *Config) ServerConfig(logger zerolog.Logger) dispatch.ServerConfig {
	sc := dispatch.DefaultServerConfig()
	sc.Host = c.Host
	sc.Port = c.Port
	sc.PingInterval = c.KeepAliveInterval
	sc.MetricsPath = c.MetricsPath
	sc.Logger = logger
	return sc
}

// BrowserOptions converts to browser host options.
func (c *Config) BrowserOptions(logger zerolog.Logger) browser.Options {
	return browser.Options{
		ControlURL:   c.Browser.ControlURL,
		Headless:     c.Browser.Headless,
		StartURL:     c.Browser.StartURL,
		ConsoleLimit: c.Browser.ConsoleLimit,
		Logger:       logger,
	}
}

// DispatchOptions converts to dispatcher options.
func (c *Config) DispatchOptions(logger zerolog.Logger) dispatch.Options {
	return dispatch.Options{CommandTimeout: c.CommandTimeout, Logger: logger}
}
