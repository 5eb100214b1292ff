package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vdavid/tauri-mcp/internal/config"
	"github.com/vdavid/tauri-mcp/internal/logging"
	"github.com/vdavid/tauri-mcp/internal/protocol"
)

const (
	appName    = "tauri-mcp"
	appVersion = "0.2.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Drive a running app from an AI assistant",
	Long: `tauri-mcp connects to a command host embedded in a running application
and exposes its automation commands:
  - MCP server for AI coding assistants (serve)
  - Command host backed by a browser or a demo target set (host)
  - One-shot command execution for scripts (exec)`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Default behavior: if stdin is not a terminal, run as MCP server
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return runServe(cmd, args)
		}
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s (protocol %s)\n", appName, appVersion, protocol.ProtocolVersion)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (.kdl or .toml); default: nearest "+config.ConfigFileName)
	flags.String("host", "", "Command host address")
	flags.Int("port", 0, "Command host port")
	flags.Duration("timeout", 0, "Per-request timeout")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error, disabled")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers the persistent flags over config.Load.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	dir, err := os.Getwd()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.Load(dir, path)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}

	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("timeout") {
		var d time.Duration
		d, _ = flags.GetDuration("timeout")
		cfg.RequestTimeout = d
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}

	logger := logging.New(appName, cfg.LogLevel)
	if cfg.Source != "" {
		logger.Debug().Str("file", cfg.Source).Msg("loaded config")
	}
	return cfg, logger, nil
}
