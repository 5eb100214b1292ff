package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vdavid/tauri-mcp/internal/protocol"
	"github.com/vdavid/tauri-mcp/internal/snapshot"
)

// SnapshotInput defines input for the snapshot tool.
type SnapshotInput struct {
	Action  string   `json:"action" jsonschema:"Action: baseline, compare, list, get, delete"`
	Name    string   `json:"name,omitempty" jsonschema:"Baseline name (required for baseline/compare/get/delete)"`
	Windows []string `json:"windows,omitempty" jsonschema:"Window labels to capture (default: all windows)"`
}

// SnapshotOutput defines output for the snapshot tool.
type SnapshotOutput struct {
	Message   string               `json:"message,omitempty"`
	Baseline  *snapshot.Baseline   `json:"baseline,omitempty"`
	Baselines []*snapshot.Baseline `json:"baselines,omitempty"`
	Report    *snapshot.Report     `json:"report,omitempty"`
}

// RegisterSnapshotTool adds the visual regression tool to the server.
func RegisterSnapshotTool(server *mcp.Server, st *SessionTools, store *snapshot.Store) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "snapshot",
		Description: `Visual regression testing over application windows.

Actions:
  baseline: Screenshot windows and save them under a name
  compare: Screenshot windows again and diff against a baseline
  list: List saved baselines
  get: Show one baseline
  delete: Remove a baseline

Examples:
  snapshot {action: "baseline", name: "before-refactor"}
  snapshot {action: "compare", name: "before-refactor"}
  snapshot {action: "baseline", name: "settings", windows: ["settings"]}`,
	}, makeSnapshotHandler(st, store))
}

func makeSnapshotHandler(st *SessionTools, store *snapshot.Store) func(context.Context, *mcp.CallToolRequest, SnapshotInput) (*mcp.CallToolResult, SnapshotOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SnapshotInput) (*mcp.CallToolResult, SnapshotOutput, error) {
		switch input.Action {
		case "baseline", "compare", "get", "delete":
			if input.Name == "" {
				return errorResult(fmt.Sprintf("name required for %s", input.Action)), SnapshotOutput{}, nil
			}
		}

		switch input.Action {
		case "baseline":
			captures, result := st.captureWindows(ctx, input.Windows)
			if result != nil {
				return result, SnapshotOutput{}, nil
			}
			b, err := store.Create(input.Name, captures)
			if err != nil {
				return errorResult(fmt.Sprintf("failed to save baseline: %v", err)), SnapshotOutput{}, nil
			}
			return nil, SnapshotOutput{
				Baseline: b,
				Message:  fmt.Sprintf("Baseline %s saved with %d window(s)", b.Name, len(b.Windows)),
			}, nil
		case "compare":
			captures, result := st.captureWindows(ctx, input.Windows)
			if result != nil {
				return result, SnapshotOutput{}, nil
			}
			r, err := store.Compare(input.Name, captures)
			if err != nil {
				return errorResult(fmt.Sprintf("failed to compare: %v", err)), SnapshotOutput{}, nil
			}
			msg := fmt.Sprintf("%d unchanged, %d changed", r.Unchanged, r.Changed)
			return nil, SnapshotOutput{Report: r, Message: msg}, nil
		case "list":
			list, err := store.List()
			if err != nil {
				return errorResult(err.Error()), SnapshotOutput{}, nil
			}
			return nil, SnapshotOutput{Baselines: list, Message: fmt.Sprintf("%d baseline(s)", len(list))}, nil
		case "get":
			b, err := store.Get(input.Name)
			if err != nil {
				return errorResult(err.Error()), SnapshotOutput{}, nil
			}
			return nil, SnapshotOutput{Baseline: b}, nil
		case "delete":
			if err := store.Delete(input.Name); err != nil {
				return errorResult(err.Error()), SnapshotOutput{}, nil
			}
			return nil, SnapshotOutput{Message: fmt.Sprintf("Baseline %s deleted", input.Name)}, nil
		default:
			return errorResult(fmt.Sprintf("unknown action %q. Use: baseline, compare, list, get, delete", input.Action)), SnapshotOutput{}, nil
		}
	}
}

// captureWindows screenshots the named windows, or every window the host
// lists when labels is empty.
func (st *SessionTools) captureWindows(ctx context.Context, labels []string) ([]snapshot.Capture, *mcp.CallToolResult) {
	resp, err := st.send(ctx, protocol.CommandWindowList, nil, "", 0)
	if err != nil {
		return nil, commandErrorResult(protocol.CommandWindowList, err)
	}
	var windows []struct {
		Label string `json:"label"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := resp.Decode(&windows); err != nil {
		return nil, errorResult(fmt.Sprintf("window_list: %v", err))
	}

	want := make(map[string]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	found := make(map[string]bool, len(labels))
	var captures []snapshot.Capture
	for _, w := range windows {
		if len(labels) > 0 && !want[w.Label] {
			continue
		}
		found[w.Label] = true

		shot, err := st.send(ctx, protocol.CommandScreenshot, map[string]any{"format": "png"}, w.Label, 0)
		if err != nil {
			return nil, commandErrorResult(protocol.CommandScreenshot, err)
		}
		var dataURL string
		if err := shot.Decode(&dataURL); err != nil {
			return nil, errorResult(fmt.Sprintf("screenshot %s: %v", w.Label, err))
		}
		mime, img, ok := decodeDataURL(dataURL)
		if !ok || mime != "image/png" {
			return nil, errorResult(fmt.Sprintf("screenshot %s: expected a PNG data URL", w.Label))
		}
		captures = append(captures, snapshot.Capture{Label: w.Label, Title: w.Title, URL: w.URL, PNG: img})
	}
	for _, l := range labels {
		if !found[l] {
			return nil, errorResult(fmt.Sprintf("window %q not found", l))
		}
	}
	return captures, nil
}
