package tools

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/tauri-mcp/internal/dispatch"
	"github.com/vdavid/tauri-mcp/internal/protocol"
	"github.com/vdavid/tauri-mcp/internal/session"
)

func startHost(t *testing.T, targets ...string) string {
	t.Helper()
	d := dispatch.New(dispatch.NewStaticHost(targets...), dispatch.Options{CommandTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	dispatch.RegisterDemo(d)
	d.Handle(protocol.CommandScreenshot, func(context.Context, *dispatch.Call) (any, error) {
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png")), nil
	})
	ts := httptest.NewServer(dispatch.NewServer(d, dispatch.DefaultServerConfig()).Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
}

func newTools(t *testing.T, addr string) *SessionTools {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.Logger = zerolog.Nop()
	st := NewSessionTools(session.New(cfg), addr, zerolog.Nop())
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRun_ConnectsImplicitly(t *testing.T) {
	st := newTools(t, startHost(t, "main", "settings"))
	require.False(t, st.s.IsConnected())

	result, out, err := st.run(context.Background(), "echo", map[string]any{"n": 7}, "", 0)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.True(t, st.s.IsConnected())
	assert.Equal(t, float64(7), out.Data)
	assert.Equal(t, "main", out.Target)
	assert.Equal(t, 2, out.TotalTargets)
	assert.NotEmpty(t, out.Warning)
}

func TestRun_TargetNotFound(t *testing.T) {
	st := newTools(t, startHost(t, "main"))

	result, _, err := st.run(context.Background(), "echo", nil, "nope", 0)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	text := result.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, "target_not_found")
	assert.Contains(t, text, "main")
}

func TestRun_Timeout(t *testing.T) {
	st := newTools(t, startHost(t, "main"))

	result, _, err := st.run(context.Background(), "sleep", map[string]any{"ms": 500}, "", 30*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.Content[0].(*mcp.TextContent).Text, "timed out")
}

func TestRun_HostUnreachable(t *testing.T) {
	st := newTools(t, "127.0.0.1:1")

	result, _, err := st.run(context.Background(), "echo", nil, "", 0)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, session.StateDisconnected, st.s.State())
}

func TestAppHandler(t *testing.T) {
	addr := startHost(t, "main")
	st := newTools(t, "127.0.0.1:1")
	handler := makeAppHandler(st)
	ctx := context.Background()

	_, status, err := handler(ctx, nil, AppInput{Action: "status"})
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, "disconnected", status.State)
	assert.Equal(t, "127.0.0.1:1", status.Address)

	st.mu.Lock()
	st.addr = addr
	st.mu.Unlock()
	result, started, err := handler(ctx, nil, AppInput{Action: "start"})
	require.NoError(t, err)
	require.Nil(t, result)
	assert.True(t, started.Success)
	assert.Equal(t, addr, started.Address)

	_, status, _ = handler(ctx, nil, AppInput{Action: "status"})
	assert.True(t, status.Connected)
	assert.Equal(t, "open", status.State)
	assert.NotEmpty(t, status.Uptime)

	_, stopped, err := handler(ctx, nil, AppInput{Action: "stop"})
	require.NoError(t, err)
	assert.True(t, stopped.Success)
	assert.False(t, st.s.IsConnected())

	result, _, _ = handler(ctx, nil, AppInput{Action: "restart"})
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestDecodeDataURL(t *testing.T) {
	mime, data, ok := decodeDataURL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("abc")))
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, []byte("abc"), data)

	for _, bad := range []string{"", "image/png;base64,AAAA", "data:image/png,AAAA", "data:image/png;base64,%%%"} {
		_, _, ok := decodeDataURL(bad)
		assert.False(t, ok, bad)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.0m", formatDuration(2*time.Minute))
	assert.Equal(t, "1.0h", formatDuration(time.Hour))
}

func TestTools_OverMCP(t *testing.T) {
	st := newTools(t, startHost(t, "main"))
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	RegisterAppTool(server, st)
	RegisterCommandTools(server, st)

	ctx := context.Background()
	ct, srvT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, srvT, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "command",
		Arguments: map[string]any{"name": "echo", "args": map[string]any{"n": 3}},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "command",
		Arguments: map[string]any{"name": "fail", "args": map[string]any{"message": "boom"}},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "boom")

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "screenshot", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	img, ok := res.Content[0].(*mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, []byte("png"), img.Data)
}
