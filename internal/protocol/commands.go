// Package protocol defines the JSON envelopes exchanged between an automation
// client and the in-app command host over a WebSocket channel.
package protocol

import "encoding/json"

// Request is sent by the client. Args is an open mapping that the session layer
// never interprets.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// TargetArg is the args key carrying the optional target identifier.
const TargetArg = "windowId"

// Command names understood by the bundled hosts. The set is open: hosts may
// register anything.
const (
	CommandVersion      = "version"
	CommandEcho         = "echo"
	CommandExecuteJS    = "execute_js"
	CommandScreenshot   = "screenshot"
	CommandWindowList   = "window_list"
	CommandWindowInfo   = "window_info"
	CommandWindowResize = "window_resize"
	CommandNavigate     = "navigate"
	CommandConsoleLogs  = "console_logs"
	CommandDOMSnapshot  = "dom_snapshot"
	CommandInteract     = "interact"
	CommandWaitFor      = "wait_for"
)

// ProtocolVersion is reported by the built-in version command.
const ProtocolVersion = "1.1.0"

// MaxMessageSize caps one frame in either direction. Screenshots travel as
// data URLs.
const MaxMessageSize = 64 << 20

// NewRequest builds a request, encoding args as a JSON object. A nil map is
// sent as an empty object.
func NewRequest(id, command string, args map[string]any) (*Request, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Command: command, Args: raw}, nil
}

// ArgsMap decodes Args into a generic map. Missing or null args yield an
// empty map.
func (r *Request) ArgsMap() (map[string]any, error) {
	out := map[string]any{}
	if len(r.Args) == 0 || string(r.Args) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(r.Args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TargetID returns the requested target from args, or "" when absent.
func (r *Request) TargetID() string {
	args, err := r.ArgsMap()
	if err != nil {
		return ""
	}
	if s, ok := args[TargetArg].(string); ok {
		return s
	}
	return ""
}

// VersionInfo is the data returned by the version command.
type VersionInfo struct {
	Protocol string   `json:"protocol"`
	Commands []string `json:"commands"`
}
