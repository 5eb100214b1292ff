package tools

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/tauri-mcp/internal/dispatch"
	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// recordingHost answers the page commands with canned data and keeps the
// args each one received.
type recordingHost struct {
	mu   sync.Mutex
	args map[string]map[string]any
}

func (r *recordingHost) last(command string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.args[command]
}

func startRecordingHost(t *testing.T) (string, *recordingHost) {
	t.Helper()
	rec := &recordingHost{args: map[string]map[string]any{}}
	d := dispatch.New(dispatch.NewStaticHost("main"), dispatch.Options{CommandTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	answers := map[string]any{
		protocol.CommandConsoleLogs: []map[string]string{{"level": "error", "message": "boom"}},
		protocol.CommandDOMSnapshot: "- role: heading\n  name: Settings\n",
		protocol.CommandInteract:    "Clicked #save",
		protocol.CommandWaitFor:     map[string]any{"matched": "text 'Saved'", "elapsed_ms": 12},
	}
	for command, answer := range answers {
		d.Handle(command, func(_ context.Context, call *dispatch.Call) (any, error) {
			rec.mu.Lock()
			rec.args[command] = call.Args
			rec.mu.Unlock()
			return answer, nil
		})
	}
	ts := httptest.NewServer(dispatch.NewServer(d, dispatch.DefaultServerConfig()).Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/", rec
}

func TestPageTools_OverMCP(t *testing.T) {
	addr, rec := startRecordingHost(t)
	st := newTools(t, addr)
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	RegisterCommandTools(server, st)

	ctx := context.Background()
	ct, srvT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, srvT, nil)
	require.NoError(t, err)
	defer ss.Close()
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0"}, nil).Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer cs.Close()

	call := func(name string, args map[string]any) *mcp.CallToolResult {
		t.Helper()
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		require.NoError(t, err)
		return res
	}

	res := call("console_logs", map[string]any{"filter": "error", "clear": true})
	require.False(t, res.IsError)
	assert.Equal(t, map[string]any{"filter": "error", "clear": true}, rec.last(protocol.CommandConsoleLogs))

	res = call("dom_snapshot", map[string]any{"type": "structure", "selector": "#app", "window_id": "main"})
	require.False(t, res.IsError)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "- role: heading\n  name: Settings\n", text.Text)
	assert.Equal(t, map[string]any{"type": "structure", "selector": "#app", protocol.TargetArg: "main"}, rec.last(protocol.CommandDOMSnapshot))

	res = call("interact", map[string]any{"action": "scroll", "y": 600})
	require.False(t, res.IsError)
	assert.Equal(t, map[string]any{"action": "scroll", "y": float64(600)}, rec.last(protocol.CommandInteract))

	res = call("interact", map[string]any{})
	assert.True(t, res.IsError)

	res = call("wait_for", map[string]any{"text": "Saved", "timeout": 2000})
	require.False(t, res.IsError)
	assert.Equal(t, map[string]any{"text": "Saved", "timeout": float64(2000)}, rec.last(protocol.CommandWaitFor))

	res = call("wait_for", map[string]any{"state": "visible"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "selector, text or script")
}
