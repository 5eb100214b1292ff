package dispatch

import (
	"fmt"
	"math"
)

// Call is one command invocation as seen by a Handler.
type Call struct {
	ID      string
	Command string
	// Target is the resolved context id, empty for global commands.
	Target string
	Args   map[string]any
}

// String returns a string argument.
func (c *Call) String(key string) (string, bool) {
	s, ok := c.Args[key].(string)
	return s, ok
}

// StringOr returns a string argument or def when absent.
func (c *Call) StringOr(key, def string) string {
	if s, ok := c.String(key); ok {
		return s
	}
	return def
}

// Bool returns a boolean argument.
func (c *Call) Bool(key string) (bool, bool) {
	b, ok := c.Args[key].(bool)
	return b, ok
}

// Int returns an integer argument. JSON numbers with a fractional part are
// rejected.
func (c *Call) Int(key string) (int, bool, error) {
	v, present := c.Args[key]
	if !present || v == nil {
		return 0, false, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, true, fmt.Errorf("%s must be a number", key)
	}
	if f != math.Trunc(f) {
		return 0, true, fmt.Errorf("%s must be an integer", key)
	}
	return int(f), true, nil
}

// Float returns a numeric argument.
func (c *Call) Float(key string) (float64, bool) {
	f, ok := c.Args[key].(float64)
	return f, ok
}
