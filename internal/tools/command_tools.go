package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// CommandOutput is the structured result of every command tool.
type CommandOutput struct {
	Data         any    `json:"data,omitempty"`
	Target       string `json:"target,omitempty"`
	TotalTargets int    `json:"total_targets,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

// ExecuteJSInput defines input for execute_js.
type ExecuteJSInput struct {
	Script   string `json:"script" jsonschema:"JavaScript to run. A bare expression is returned; multi-statement code needs an explicit return"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
	Timeout  int    `json:"timeout,omitempty" jsonschema:"Script timeout in seconds (default: 5)"`
}

// ScreenshotInput defines input for screenshot.
type ScreenshotInput struct {
	Format   string `json:"format,omitempty" jsonschema:"Image format: png (default) or jpeg"`
	Quality  int    `json:"quality,omitempty" jsonschema:"JPEG quality 0-100"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// WindowInput addresses a single window.
type WindowInput struct {
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// WindowResizeInput defines input for window_resize.
type WindowResizeInput struct {
	Width    int    `json:"width" jsonschema:"New width in pixels"`
	Height   int    `json:"height" jsonschema:"New height in pixels"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// NavigateInput defines input for navigate.
type NavigateInput struct {
	URL      string `json:"url" jsonschema:"URL to load"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// ConsoleLogsInput defines input for console_logs.
type ConsoleLogsInput struct {
	Filter   string `json:"filter,omitempty" jsonschema:"Level (log, info, warn, error, debug) or text the message must contain"`
	Since    string `json:"since,omitempty" jsonschema:"Only entries at or after this RFC 3339 timestamp"`
	Clear    bool   `json:"clear,omitempty" jsonschema:"Empty the buffer after reading"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// DOMSnapshotInput defines input for dom_snapshot.
type DOMSnapshotInput struct {
	Type     string `json:"type,omitempty" jsonschema:"accessibility (default) or structure"`
	Selector string `json:"selector,omitempty" jsonschema:"CSS selector of the subtree root (default: body)"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// InteractInput defines input for interact.
type InteractInput struct {
	Action   string `json:"action" jsonschema:"click, double_click, type, focus, hover or scroll"`
	Selector string `json:"selector,omitempty" jsonschema:"CSS selector of the element (optional for scroll)"`
	Text     string `json:"text,omitempty" jsonschema:"Text to type"`
	Clear    bool   `json:"clear,omitempty" jsonschema:"Replace the current value when typing"`
	X        int    `json:"x,omitempty" jsonschema:"Horizontal scroll offset in pixels (scroll without selector)"`
	Y        int    `json:"y,omitempty" jsonschema:"Vertical scroll offset in pixels (scroll without selector)"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// WaitForInput defines input for wait_for.
type WaitForInput struct {
	Selector string `json:"selector,omitempty" jsonschema:"Wait for an element matching this CSS selector"`
	State    string `json:"state,omitempty" jsonschema:"Element state: attached (default), visible or hidden"`
	Text     string `json:"text,omitempty" jsonschema:"Wait until the page text contains this"`
	Script   string `json:"script,omitempty" jsonschema:"Wait until this JavaScript returns a truthy value"`
	Timeout  int    `json:"timeout,omitempty" jsonschema:"Timeout in milliseconds (default: 5000)"`
	WindowID string `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
}

// CommandInput defines input for the generic command tool.
type CommandInput struct {
	Name      string         `json:"name" jsonschema:"Command name as registered on the host"`
	Args      map[string]any `json:"args,omitempty" jsonschema:"Command arguments"`
	WindowID  string         `json:"window_id,omitempty" jsonschema:"Target window (default: focused window)"`
	TimeoutMs int            `json:"timeout_ms,omitempty" jsonschema:"Request timeout in milliseconds (default from config)"`
}

// RegisterCommandTools adds one tool per host command plus a generic
// command tool.
func RegisterCommandTools(server *mcp.Server, st *SessionTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "execute_js",
		Description: `Execute JavaScript in an application window and return the result.

Examples:
  execute_js {script: "document.title"}
  execute_js {script: "const n = document.querySelectorAll('li').length; return n", window_id: "main"}`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ExecuteJSInput) (*mcp.CallToolResult, CommandOutput, error) {
		if input.Script == "" {
			return errorResult("script required"), CommandOutput{}, nil
		}
		args := map[string]any{"script": input.Script}
		timeout := time.Duration(0)
		if input.Timeout > 0 {
			args["timeout"] = input.Timeout
			// Leave the remote side room to report its own timeout.
			timeout = time.Duration(input.Timeout)*time.Second + 5*time.Second
		}
		return st.run(ctx, protocol.CommandExecuteJS, args, input.WindowID, timeout)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "screenshot",
		Description: `Capture a screenshot of an application window. Returns the image.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ScreenshotInput) (*mcp.CallToolResult, CommandOutput, error) {
		args := map[string]any{}
		if input.Format != "" {
			args["format"] = input.Format
		}
		if input.Quality > 0 {
			args["quality"] = input.Quality
		}
		result, out, err := st.run(ctx, protocol.CommandScreenshot, args, input.WindowID, 0)
		if result != nil || err != nil {
			return result, out, err
		}
		dataURL, _ := out.Data.(string)
		mime, img, ok := decodeDataURL(dataURL)
		if !ok {
			return nil, out, nil
		}
		out.Data = nil
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.ImageContent{Data: img, MIMEType: mime}},
		}, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "window_list",
		Description: `List all application windows with label, title, URL and focus.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, CommandOutput, error) {
		return st.run(ctx, protocol.CommandWindowList, nil, "", 0)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "window_info",
		Description: `Get size, position, focus and visibility of a window.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input WindowInput) (*mcp.CallToolResult, CommandOutput, error) {
		return st.run(ctx, protocol.CommandWindowInfo, nil, input.WindowID, 0)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "window_resize",
		Description: `Resize a window's content area.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input WindowResizeInput) (*mcp.CallToolResult, CommandOutput, error) {
		if input.Width <= 0 || input.Height <= 0 {
			return errorResult("width and height must be positive"), CommandOutput{}, nil
		}
		args := map[string]any{"width": input.Width, "height": input.Height}
		return st.run(ctx, protocol.CommandWindowResize, args, input.WindowID, 0)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "navigate",
		Description: `Load a URL in a window and wait for it to finish loading.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input NavigateInput) (*mcp.CallToolResult, CommandOutput, error) {
		if input.URL == "" {
			return errorResult("url required"), CommandOutput{}, nil
		}
		return st.run(ctx, protocol.CommandNavigate, map[string]any{"url": input.URL}, input.WindowID, 0)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "console_logs",
		Description: `Read console output captured from a window, oldest first.

Capture starts the first time the host sees a window.

Examples:
  console_logs {}
  console_logs {filter: "error", clear: true}`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ConsoleLogsInput) (*mcp.CallToolResult, CommandOutput, error) {
		args := map[string]any{}
		if input.Filter != "" {
			args["filter"] = input.Filter
		}
		if input.Since != "" {
			args["since"] = input.Since
		}
		if input.Clear {
			args["clear"] = true
		}
		return st.run(ctx, protocol.CommandConsoleLogs, args, input.WindowID, 0)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "dom_snapshot",
		Description: `Get the DOM of a window as YAML.

Types:
  accessibility: roles, names and form state, wrappers flattened (default)
  structure: tags, ids and classes

Examples:
  dom_snapshot {}
  dom_snapshot {type: "structure", selector: "#sidebar"}`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input DOMSnapshotInput) (*mcp.CallToolResult, CommandOutput, error) {
		args := map[string]any{}
		if input.Type != "" {
			args["type"] = input.Type
		}
		if input.Selector != "" {
			args["selector"] = input.Selector
		}
		result, out, err := st.run(ctx, protocol.CommandDOMSnapshot, args, input.WindowID, 0)
		if result != nil || err != nil {
			return result, out, err
		}
		tree, ok := out.Data.(string)
		if !ok {
			return nil, out, nil
		}
		out.Data = nil
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: tree}}}, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "interact",
		Description: `Click, type, focus, hover or scroll in a window.

Examples:
  interact {action: "click", selector: "#save"}
  interact {action: "type", selector: "input[name=q]", text: "hello", clear: true}
  interact {action: "scroll", y: 600}`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input InteractInput) (*mcp.CallToolResult, CommandOutput, error) {
		if input.Action == "" {
			return errorResult("action required"), CommandOutput{}, nil
		}
		args := map[string]any{"action": input.Action}
		if input.Selector != "" {
			args["selector"] = input.Selector
		}
		if input.Action == "type" {
			args["text"] = input.Text
		}
		if input.Clear {
			args["clear"] = true
		}
		if input.X != 0 {
			args["x"] = input.X
		}
		if input.Y != 0 {
			args["y"] = input.Y
		}
		return st.run(ctx, protocol.CommandInteract, args, input.WindowID, 0)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "wait_for",
		Description: `Wait until an element, some text or a script condition appears in a window.

Examples:
  wait_for {selector: ".toast", state: "visible"}
  wait_for {text: "Saved", timeout: 10000}
  wait_for {script: "window.appReady === true"}`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input WaitForInput) (*mcp.CallToolResult, CommandOutput, error) {
		if input.Selector == "" && input.Text == "" && input.Script == "" {
			return errorResult("one of selector, text or script required"), CommandOutput{}, nil
		}
		args := map[string]any{}
		for k, v := range map[string]string{"selector": input.Selector, "state": input.State, "text": input.Text, "script": input.Script} {
			if v != "" {
				args[k] = v
			}
		}
		timeout := time.Duration(0)
		if input.Timeout > 0 {
			args["timeout"] = input.Timeout
			timeout = time.Duration(input.Timeout)*time.Millisecond + 5*time.Second
		}
		return st.run(ctx, protocol.CommandWaitFor, args, input.WindowID, timeout)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "command",
		Description: `Send any command registered on the host.

Examples:
  command {name: "version"}
  command {name: "echo", args: {n: 1}}`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CommandInput) (*mcp.CallToolResult, CommandOutput, error) {
		if input.Name == "" {
			return errorResult("name required"), CommandOutput{}, nil
		}
		return st.run(ctx, input.Name, input.Args, input.WindowID, time.Duration(input.TimeoutMs)*time.Millisecond)
	})
}

// run sends a command and converts the outcome into a tool result. Failures
// are reported as tool errors, never as protocol errors.
func (st *SessionTools) run(ctx context.Context, command string, args map[string]any, target string, timeout time.Duration) (*mcp.CallToolResult, CommandOutput, error) {
	resp, err := st.send(ctx, command, args, target, timeout)
	if err != nil {
		st.log.Debug().Err(err).Str("command", command).Msg("command failed")
		return commandErrorResult(command, err), CommandOutput{}, nil
	}

	out := CommandOutput{}
	if len(resp.Data) > 0 {
		var data any
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return errorResult(fmt.Sprintf("%s: bad response data: %v", command, err)), CommandOutput{}, nil
		}
		out.Data = data
	}
	if resp.Context != nil {
		out.Target = resp.Context.TargetID
		out.TotalTargets = resp.Context.TotalTargets
		out.Warning = resp.Context.Warning
	}
	return nil, out, nil
}

// decodeDataURL splits "data:<mime>;base64,<payload>".
func decodeDataURL(s string) (string, []byte, bool) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, false
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return mime, data, true
}
