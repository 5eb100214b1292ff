package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/vdavid/tauri-mcp/internal/session"
	"github.com/vdavid/tauri-mcp/internal/snapshot"
	"github.com/vdavid/tauri-mcp/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as MCP server",
	Long: `Run as an MCP (Model Context Protocol) server over stdio.

Tools connect to the command host on first use (see --host/--port), or
explicitly through the app tool. A dropped connection is re-established
automatically with bounded backoff.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Create root context with signal cancellation
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	s := session.New(cfg.SessionConfig(logger.With().Str("component", "session").Logger()))
	st := tools.NewSessionTools(s, cfg.Address(), logger)
	defer st.Close()

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    appName,
			Version: appVersion,
		},
		&mcp.ServerOptions{
			HasTools: true,
			Instructions: `Automation server for a running application.

Available tools:
- app: Connect, disconnect and inspect the connection (start, stop, status)
- execute_js: Run JavaScript in a window
- screenshot: Capture a window
- window_list / window_info / window_resize: Inspect and size windows
- navigate: Load a URL in a window
- console_logs: Read captured console output
- dom_snapshot: Page structure or accessibility tree as YAML
- interact: Click, type, focus, hover or scroll
- wait_for: Wait for an element, text or script condition
- command: Send any command the host registers
- snapshot: Baseline and compare window screenshots

Windows are addressed by window_id; when omitted the focused window is used
and the result carries a warning if the app has more than one.`,
		},
	)
	tools.RegisterAppTool(server, st)
	tools.RegisterCommandTools(server, st)

	// Register snapshot tool (visual regression testing)
	store, err := snapshot.NewStore("", snapshot.DefaultThreshold)
	if err != nil {
		logger.Warn().Err(err).Msg("snapshot tool disabled")
	} else {
		tools.RegisterSnapshotTool(server, st, store)
	}

	logger.Info().Str("version", appVersion).Str("host", cfg.Address()).Msg("starting MCP server")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Msg("MCP server shutdown complete")
	return nil
}
