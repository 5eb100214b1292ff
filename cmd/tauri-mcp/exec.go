package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vdavid/tauri-mcp/internal/protocol"
	"github.com/vdavid/tauri-mcp/internal/session"
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Send one command and print the response",
	Long: `Connect to the command host, send a single command, print the response
envelope as JSON and disconnect. Exits non-zero when the command fails.

Examples:
  tauri-mcp exec version
  tauri-mcp exec execute_js --args '{"script":"document.title"}'
  tauri-mcp exec window_info --target main`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var (
	execArgs   string
	execTarget string
)

func init() {
	execCmd.Flags().StringVar(&execArgs, "args", "", "Command arguments as a JSON object")
	execCmd.Flags().StringVar(&execTarget, "target", "", "Target window id (default: focused)")
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var cmdArgs map[string]any
	if execArgs != "" {
		if err := json.Unmarshal([]byte(execArgs), &cmdArgs); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}

	sc := cfg.SessionConfig(logger)
	// One-shot: a dropped connection is an error, not something to wait out.
	sc.Reconnect.Enabled = false
	s := session.New(sc)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Connect(ctx, cfg.Address()); err != nil {
		return err
	}
	defer s.Disconnect()

	var opts []session.CallOption
	if execTarget != "" {
		opts = append(opts, session.WithTarget(execTarget))
	}
	resp, err := s.SendCommand(ctx, args[0], cmdArgs, opts...)
	var cerr *session.CommandError
	if err != nil && !errors.As(err, &cerr) {
		return err
	}
	if werr := writeResponse(cmd.OutOrStdout(), resp); werr != nil {
		return werr
	}
	return err
}

func writeResponse(w io.Writer, resp *protocol.Response) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
