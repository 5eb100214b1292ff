package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Default endpoint of the in-app host.
const (
	DefaultHost = "localhost"
	DefaultPort = 9223
)

// ErrEmptyCommand is returned when a request names no command.
var ErrEmptyCommand = errors.New("request has no command")

// ParseRequest decodes a request envelope read from the wire.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.Command == "" {
		return &req, ErrEmptyCommand
	}
	return &req, nil
}

// ParseResponse decodes a response envelope read from the wire.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FormatResponse encodes a response. Encoding a Response cannot fail for
// values built by OK/Fail, but a fallback envelope is produced anyway so the
// caller always has bytes to send.
func FormatResponse(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		fallback, _ := json.Marshal(Fail(resp.ID, ErrExecutionFailed, fmt.Sprintf("encode response: %v", err)))
		return fallback
	}
	return data
}

// Address joins host and port, applying defaults for empty/zero values.
func Address(host string, port int) string {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// URL turns an address into a WebSocket URL. Inputs that already carry a
// ws:// or wss:// scheme are returned unchanged; http(s) schemes are mapped.
func URL(addr string) (string, error) {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		if _, err := url.Parse(addr); err != nil {
			return "", fmt.Errorf("invalid address %q: %w", addr, err)
		}
		return addr, nil
	case strings.HasPrefix(addr, "http://"):
		return "ws://" + strings.TrimPrefix(addr, "http://"), nil
	case strings.HasPrefix(addr, "https://"):
		return "wss://" + strings.TrimPrefix(addr, "https://"), nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return (&url.URL{Scheme: "ws", Host: addr, Path: "/"}).String(), nil
}
