package browser

import (
	"context"
	"encoding/base64"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/tauri-mcp/internal/dispatch"
	"github.com/vdavid/tauri-mcp/internal/protocol"
)

const testPage = `<!doctype html>
<html>
<head><title>Fixture</title></head>
<body>
	<h1>Settings</h1>
	<nav><a href="/home">Home</a></nav>
	<label for="name">Name</label>
	<input id="name" value="old">
	<button id="save" onclick="document.getElementById('status').textContent = 'Saved'">Save</button>
	<p id="status"></p>
	<div id="later" style="display:none">Later</div>
	<div style="height:3000px"></div>
</body>
</html>`

// chromeHost launches headless Chrome, or skips when none is installed.
func chromeHost(t *testing.T) (*Host, *dispatch.Dispatcher) {
	t.Helper()
	if _, found := launcher.LookPath(); !found {
		t.Skip("no Chrome or Chromium installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h, err := Open(ctx, Options{
		Headless:  true,
		NoSandbox: os.Geteuid() == 0,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	d := dispatch.New(h, dispatch.Options{CommandTimeout: 10 * time.Second, Logger: zerolog.Nop()})
	h.Register(d)
	return h, d
}

// openPage creates a page showing html and returns its target id.
func openPage(t *testing.T, h *Host, html string) string {
	t.Helper()
	p, err := h.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	require.NoError(t, err)
	require.NoError(t, p.SetDocumentContent(html))
	return string(p.TargetID)
}

func run(t *testing.T, d *dispatch.Dispatcher, target, command string, args map[string]any) *protocol.Response {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	if target != "" {
		args[protocol.TargetArg] = target
	}
	req, err := protocol.NewRequest("req_1", command, args)
	require.NoError(t, err)
	return d.Dispatch(context.Background(), req)
}

func decode[T any](t *testing.T, resp *protocol.Response) T {
	t.Helper()
	require.True(t, resp.Success, resp.Error)
	var v T
	require.NoError(t, resp.Decode(&v))
	return v
}

func TestChrome_ExecuteJS(t *testing.T) {
	h, d := chromeHost(t)
	id := openPage(t, h, testPage)

	assert.Equal(t, "Fixture", decode[string](t, run(t, d, id, protocol.CommandExecuteJS, map[string]any{"script": "document.title"})))
	assert.Equal(t, float64(3), decode[float64](t, run(t, d, id, protocol.CommandExecuteJS, map[string]any{"script": "const a = 1; return a + 2"})))
	assert.Equal(t, "late", decode[string](t, run(t, d, id, protocol.CommandExecuteJS, map[string]any{
		"script": "await new Promise(r => setTimeout(() => r('late'), 50))",
	})))

	resp := run(t, d, id, protocol.CommandExecuteJS, map[string]any{"script": "throw new Error('nope')"})
	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Error, "Script error: "), resp.Error)

	resp = run(t, d, id, protocol.CommandExecuteJS, map[string]any{"script": "await new Promise(() => {})", "timeout": float64(1)})
	assert.False(t, resp.Success)
	assert.Equal(t, "Script execution timeout after 1s", resp.Error)

	resp = run(t, d, id, protocol.CommandExecuteJS, nil)
	assert.Equal(t, "Missing required 'script' argument", resp.Error)
}

func TestChrome_Screenshot(t *testing.T) {
	h, d := chromeHost(t)
	id := openPage(t, h, testPage)

	tests := []struct {
		name   string
		args   map[string]any
		prefix string
		magic  []byte
	}{
		{name: "default png", args: nil, prefix: "data:image/png;base64,", magic: []byte("\x89PNG")},
		{name: "jpeg", args: map[string]any{"format": "jpeg", "quality": float64(50)}, prefix: "data:image/jpeg;base64,", magic: []byte{0xFF, 0xD8}},
		{name: "quality clamped", args: map[string]any{"format": "jpg", "quality": float64(400)}, prefix: "data:image/jpeg;base64,", magic: []byte{0xFF, 0xD8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := decode[string](t, run(t, d, id, protocol.CommandScreenshot, tt.args))
			require.True(t, strings.HasPrefix(url, tt.prefix), url[:min(len(url), 40)])
			img, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, tt.prefix))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(img), string(tt.magic)))
		})
	}
}

func TestChrome_Windows(t *testing.T) {
	h, d := chromeHost(t)
	id := openPage(t, h, testPage)

	list := decode[[]WindowSummary](t, run(t, d, "", protocol.CommandWindowList, nil))
	var labels []string
	for _, w := range list {
		labels = append(labels, w.Label)
	}
	assert.Contains(t, labels, id)

	resized := decode[string](t, run(t, d, id, protocol.CommandWindowResize, map[string]any{"width": float64(640), "height": float64(480)}))
	assert.Equal(t, "Resized to 640x480", resized)

	info := decode[WindowInfo](t, run(t, d, id, protocol.CommandWindowInfo, nil))
	assert.Equal(t, id, info.Label)
	assert.Equal(t, "Fixture", info.Title)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 480, info.Height)

	resp := run(t, d, id, protocol.CommandWindowResize, map[string]any{"width": float64(0), "height": float64(480)})
	assert.Equal(t, "'width' must be a positive integer, got: 0", resp.Error)
}

func TestChrome_Navigate(t *testing.T) {
	h, d := chromeHost(t)
	id := openPage(t, h, testPage)

	out := decode[map[string]string](t, run(t, d, id, protocol.CommandNavigate, map[string]any{
		"url": "data:text/html,<title>Next</title><p>next page</p>",
	}))
	assert.Equal(t, "Next", out["title"])
	assert.True(t, strings.HasPrefix(out["url"], "data:text/html"))

	resp := run(t, d, id, protocol.CommandNavigate, nil)
	assert.Equal(t, "Missing required 'url' argument", resp.Error)
}

func TestChrome_ConsoleLogs(t *testing.T) {
	h, d := chromeHost(t)
	id := openPage(t, h, testPage)

	// first lookup starts the capture
	assert.Empty(t, decode[[]ConsoleEntry](t, run(t, d, id, protocol.CommandConsoleLogs, nil)))
	mark := time.Now().Add(-time.Second).UTC().Format(time.RFC3339Nano)

	run(t, d, id, protocol.CommandExecuteJS, map[string]any{"script": "console.log('hello', 42); console.error('boom')"})

	var logs []ConsoleEntry
	require.Eventually(t, func() bool {
		logs = decode[[]ConsoleEntry](t, run(t, d, id, protocol.CommandConsoleLogs, map[string]any{"since": mark}))
		return len(logs) == 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "log", logs[0].Level)
	assert.Equal(t, "hello 42", logs[0].Message)

	errs := decode[[]ConsoleEntry](t, run(t, d, id, protocol.CommandConsoleLogs, map[string]any{"filter": "error", "clear": true}))
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Message)
	assert.Empty(t, decode[[]ConsoleEntry](t, run(t, d, id, protocol.CommandConsoleLogs, nil)))

	resp := run(t, d, id, protocol.CommandConsoleLogs, map[string]any{"since": "yesterday"})
	assert.Equal(t, "'since' must be an RFC 3339 timestamp, got: yesterday", resp.Error)
}

func TestChrome_DOMSnapshot(t *testing.T) {
	h, d := chromeHost(t)
	id := openPage(t, h, testPage)

	tree := decode[string](t, run(t, d, id, protocol.CommandDOMSnapshot, nil))
	assert.Contains(t, tree, "role: heading")
	assert.Contains(t, tree, "name: Settings")
	assert.Contains(t, tree, "href: /home")
	assert.Contains(t, tree, "role: button")
	assert.NotContains(t, tree, "Later", "hidden elements are left out")

	structure := decode[string](t, run(t, d, id, protocol.CommandDOMSnapshot, map[string]any{"type": "structure", "selector": "nav"}))
	assert.Contains(t, structure, "tag: nav")
	assert.Contains(t, structure, "tag: a")
	assert.NotContains(t, structure, "button")

	resp := run(t, d, id, protocol.CommandDOMSnapshot, map[string]any{"type": "full"})
	assert.Equal(t, "Invalid snapshot type: 'full'. Use 'accessibility' or 'structure'.", resp.Error)
	resp = run(t, d, id, protocol.CommandDOMSnapshot, map[string]any{"selector": "#missing"})
	assert.Equal(t, "Element not found: '#missing'", resp.Error)
}

func TestChrome_InteractAndWait(t *testing.T) {
	h, d := chromeHost(t)
	id := openPage(t, h, testPage)

	assert.Equal(t, "Clicked #save", decode[string](t, run(t, d, id, protocol.CommandInteract, map[string]any{"action": "click", "selector": "#save"})))
	res := decode[WaitResult](t, run(t, d, id, protocol.CommandWaitFor, map[string]any{"text": "Saved", "timeout": float64(2000)}))
	assert.Equal(t, "text 'Saved'", res.Matched)

	run(t, d, id, protocol.CommandInteract, map[string]any{"action": "type", "selector": "#name", "text": "new", "clear": true})
	value := decode[string](t, run(t, d, id, protocol.CommandExecuteJS, map[string]any{"script": "document.getElementById('name').value"}))
	assert.Equal(t, "new", value)

	scrolled := decode[string](t, run(t, d, id, protocol.CommandInteract, map[string]any{"action": "scroll", "y": float64(500)}))
	assert.Equal(t, "Scrolled to 0,500", scrolled)

	resp := run(t, d, id, protocol.CommandInteract, map[string]any{"action": "click", "selector": "#ghost"})
	assert.Equal(t, "Element not found: '#ghost'", resp.Error)
	resp = run(t, d, id, protocol.CommandInteract, map[string]any{"action": "drag", "selector": "#save"})
	assert.True(t, strings.HasPrefix(resp.Error, "Invalid action: 'drag'."), resp.Error)

	run(t, d, id, protocol.CommandExecuteJS, map[string]any{
		"script": "setTimeout(() => { document.getElementById('later').style.display = 'block' }, 100); return true",
	})
	res = decode[WaitResult](t, run(t, d, id, protocol.CommandWaitFor, map[string]any{"selector": "#later", "state": "visible"}))
	assert.Equal(t, "selector '#later' to be visible", res.Matched)

	resp = run(t, d, id, protocol.CommandWaitFor, map[string]any{"selector": "#never", "timeout": float64(200)})
	assert.Equal(t, "Timed out after 200ms waiting for selector '#never'", resp.Error)

	res = decode[WaitResult](t, run(t, d, id, protocol.CommandWaitFor, map[string]any{"script": "document.title === 'Fixture'"}))
	assert.Equal(t, "script to return a truthy value", res.Matched)
}
