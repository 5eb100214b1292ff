package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vdavid/tauri-mcp/internal/browser"
	"github.com/vdavid/tauri-mcp/internal/dispatch"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run a command host",
	Long: `Run a WebSocket command host on --host/--port.

By default commands run against Chrome pages over the DevTools protocol:
each page is a window, addressed by its target id. A browser is launched
unless --browser-url points at a running one.

With --demo the host serves echo, sleep and fail against a fixed set of
in-memory windows, which is handy for trying out clients. The browser host
serves echo alongside its own commands.`,
	RunE: runHost,
}

var (
	hostDemo       bool
	hostDemoWindow []string
	hostBrowserURL string
	hostHeadless   bool
	hostStartURL   string
)

func init() {
	hostCmd.Flags().BoolVar(&hostDemo, "demo", false, "Serve demo commands instead of a browser")
	hostCmd.Flags().StringSliceVar(&hostDemoWindow, "window", []string{"main"}, "Demo window ids (first is focused)")
	hostCmd.Flags().StringVar(&hostBrowserURL, "browser-url", "", "DevTools URL of a running browser")
	hostCmd.Flags().BoolVar(&hostHeadless, "headless", false, "Launch the browser headless")
	hostCmd.Flags().StringVar(&hostStartURL, "start-url", "", "Page to open when the browser has none")
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("browser-url") {
		cfg.Browser.ControlURL = hostBrowserURL
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = hostHeadless
	}
	if cmd.Flags().Changed("start-url") {
		cfg.Browser.StartURL = hostStartURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	var d *dispatch.Dispatcher
	if hostDemo {
		host := dispatch.NewStaticHost(hostDemoWindow...)
		d = dispatch.New(host, cfg.DispatchOptions(logger))
		dispatch.RegisterDemo(d)
	} else {
		b, err := browser.Open(ctx, cfg.BrowserOptions(logger.With().Str("component", "browser").Logger()))
		if err != nil {
			return err
		}
		defer b.Close()
		d = browserDispatcher(b, cfg.DispatchOptions(logger))
	}

	srv := dispatch.NewServer(d, cfg.ServerConfig(logger))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Command host listening on ws://%s/\n", srv.Addr())

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn().Err(err).Msg("host server stop")
	}
	stats := srv.Stats()
	logger.Info().Uint64("requests", stats.Requests).Msg("command host stopped")
	return nil
}

// browserDispatcher serves the browser command set plus echo.
func browserDispatcher(b *browser.Host, opts dispatch.Options) *dispatch.Dispatcher {
	d := dispatch.New(b, opts)
	b.Register(d)
	dispatch.RegisterEcho(d)
	return d
}
