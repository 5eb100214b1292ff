package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/vdavid/tauri-mcp/internal/protocol"
	"github.com/vdavid/tauri-mcp/internal/session"
)

// SessionTools exposes a session to MCP tool handlers. Commands connect
// implicitly to the configured address when the session is not open.
type SessionTools struct {
	s   *session.Session
	log zerolog.Logger

	mu        sync.Mutex
	addr      string
	started   time.Time
	connected bool
}

// NewSessionTools wraps s. addr is the default host address ("host:port").
func NewSessionTools(s *session.Session, addr string, log zerolog.Logger) *SessionTools {
	return &SessionTools{s: s, addr: addr, log: log}
}

// Close disconnects the session.
func (st *SessionTools) Close() error {
	return st.s.Disconnect()
}

// Addr returns the address connect uses.
func (st *SessionTools) Addr() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.addr
}

func (st *SessionTools) connect(ctx context.Context, addr string) error {
	st.mu.Lock()
	if addr == "" {
		addr = st.addr
	}
	st.addr = addr
	st.mu.Unlock()

	if err := st.s.Connect(ctx, addr); err != nil {
		return err
	}

	st.mu.Lock()
	if !st.connected {
		st.started = time.Now()
		st.connected = true
	}
	st.mu.Unlock()
	return nil
}

// ensureConnected connects if the session is not open. A session that is
// reconnecting on its own is left alone and the command fails fast.
func (st *SessionTools) ensureConnected(ctx context.Context) error {
	switch st.s.State() {
	case session.StateOpen:
		return nil
	case session.StateDisconnected:
		return st.connect(ctx, "")
	default:
		return session.ErrNotConnected
	}
}

// send connects if needed and issues one command.
func (st *SessionTools) send(ctx context.Context, command string, args map[string]any, target string, timeout time.Duration) (*protocol.Response, error) {
	if err := st.ensureConnected(ctx); err != nil {
		return nil, err
	}
	var opts []session.CallOption
	if target != "" {
		opts = append(opts, session.WithTarget(target))
	}
	if timeout > 0 {
		opts = append(opts, session.WithTimeout(timeout))
	}
	return st.s.SendCommand(ctx, command, args, opts...)
}

// AppInput defines input for the app tool.
type AppInput struct {
	Action string `json:"action" jsonschema:"Action: start, stop, status"`
	Host   string `json:"host,omitempty" jsonschema:"For start: host to connect to (default from config)"`
	Port   int    `json:"port,omitempty" jsonschema:"For start: port to connect to (default from config)"`
}

// AppOutput defines output for the app tool.
type AppOutput struct {
	Success           bool   `json:"success,omitempty"`
	Message           string `json:"message,omitempty"`
	State             string `json:"state,omitempty"`
	Address           string `json:"address,omitempty"`
	Connected         bool   `json:"connected"`
	Uptime            string `json:"uptime,omitempty"`
	Pending           int    `json:"pending,omitempty"`
	ReconnectAttempts int    `json:"reconnect_attempts,omitempty"`
	RequestsSent      uint64 `json:"requests_sent,omitempty"`
}

// RegisterAppTool adds the app session management tool to the server.
func RegisterAppTool(server *mcp.Server, st *SessionTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "app",
		Description: `Manage the connection to the application's automation host.

Actions:
  start: Connect to the host (optional host/port override)
  stop: Disconnect from the host
  status: Get connection state and statistics

Examples:
  app {action: "start"}
  app {action: "start", host: "localhost", port: 9223}
  app {action: "status"}
  app {action: "stop"}

Command tools connect on first use, so start is only needed to pick a
different address or to verify the host is reachable.`,
	}, makeAppHandler(st))
}

func makeAppHandler(st *SessionTools) func(context.Context, *mcp.CallToolRequest, AppInput) (*mcp.CallToolResult, AppOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AppInput) (*mcp.CallToolResult, AppOutput, error) {
		switch input.Action {
		case "start":
			return handleAppStart(ctx, st, input)
		case "stop":
			return handleAppStop(st)
		case "status", "":
			return handleAppStatus(st)
		default:
			return errorResult(fmt.Sprintf("unknown action %q. Use: start, stop, status", input.Action)), AppOutput{}, nil
		}
	}
}

func handleAppStart(ctx context.Context, st *SessionTools, input AppInput) (*mcp.CallToolResult, AppOutput, error) {
	addr := ""
	if input.Host != "" || input.Port != 0 {
		addr = protocol.Address(input.Host, input.Port)
	}
	if err := st.connect(ctx, addr); err != nil {
		return errorResult(fmt.Sprintf("failed to connect: %v", err)), AppOutput{}, nil
	}
	stats := st.s.Stats()
	return nil, AppOutput{
		Success:   true,
		Connected: true,
		State:     stats.State,
		Address:   stats.Address,
		Message:   fmt.Sprintf("Connected to %s", stats.Address),
	}, nil
}

func handleAppStop(st *SessionTools) (*mcp.CallToolResult, AppOutput, error) {
	if err := st.s.Disconnect(); err != nil {
		return errorResult(fmt.Sprintf("failed to disconnect: %v", err)), AppOutput{}, nil
	}
	st.mu.Lock()
	st.connected = false
	st.mu.Unlock()
	return nil, AppOutput{
		Success: true,
		State:   st.s.State().String(),
		Message: "Disconnected",
	}, nil
}

func handleAppStatus(st *SessionTools) (*mcp.CallToolResult, AppOutput, error) {
	stats := st.s.Stats()
	out := AppOutput{
		State:             stats.State,
		Address:           stats.Address,
		Connected:         st.s.IsConnected(),
		Pending:           stats.Pending,
		ReconnectAttempts: stats.ReconnectAttempts,
		RequestsSent:      stats.RequestsSent,
	}
	if out.Address == "" {
		out.Address = st.Addr()
	}
	st.mu.Lock()
	if st.connected && out.Connected {
		out.Uptime = formatDuration(time.Since(st.started))
	}
	st.mu.Unlock()
	return nil, out, nil
}

// commandErrorResult turns a SendCommand error into a tool error result.
func commandErrorResult(command string, err error) *mcp.CallToolResult {
	var cerr *session.CommandError
	var terr *session.TimeoutError
	switch {
	case errors.As(err, &cerr):
		if cerr.Code != "" {
			return errorResult(fmt.Sprintf("%s failed [%s]: %s", command, cerr.Code, cerr.Message))
		}
		return errorResult(fmt.Sprintf("%s failed: %s", command, cerr.Message))
	case errors.As(err, &terr):
		return errorResult(fmt.Sprintf("%s timed out after %s", command, formatDuration(terr.Elapsed)))
	case errors.Is(err, session.ErrNotConnected):
		return errorResult(fmt.Sprintf("%s: not connected to the app. Use app {action: \"start\"} to connect", command))
	default:
		return errorResult(fmt.Sprintf("%s: %v", command, err))
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
