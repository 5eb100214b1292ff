package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies failed responses. It travels in the optional "code"
// field; the human-readable text is always in "error".
type ErrorCode string

const (
	ErrTargetNotFound  ErrorCode = "target_not_found"
	ErrNoTargets       ErrorCode = "no_targets"
	ErrUnknownCommand  ErrorCode = "unknown_command"
	ErrExecutionFailed ErrorCode = "execution_failed"
	ErrInvalidRequest  ErrorCode = "invalid_request"
	ErrTimeout         ErrorCode = "timeout"
)

// TargetContext describes which addressable context served a request.
type TargetContext struct {
	TargetID     string `json:"targetId"`
	TotalTargets int    `json:"totalTargets"`
	Warning      string `json:"warning,omitempty"`
}

// Response is sent by the host, exactly one per request, carrying the
// request's id. Data is present only when Success is true, Error only when it
// is false.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    ErrorCode       `json:"code,omitempty"`
	Context *TargetContext  `json:"context,omitempty"`
}

// OK builds a success response. A nil value is encoded as JSON null so that
// data is always present on success.
func OK(id string, data any, ctx *TargetContext) (*Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{ID: id, Success: true, Data: raw, Context: ctx}, nil
}

// Fail builds a failure response.
func Fail(id string, code ErrorCode, message string) *Response {
	return &Response{ID: id, Success: false, Error: message, Code: code}
}

// Failf builds a failure response with a formatted message.
func Failf(id string, code ErrorCode, format string, args ...any) *Response {
	return Fail(id, code, fmt.Sprintf(format, args...))
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response %s carries no data", r.ID)
	}
	return json.Unmarshal(r.Data, v)
}
