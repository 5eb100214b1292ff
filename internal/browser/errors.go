package browser

import (
	"fmt"
	"strings"
	"time"
)

// Handler errors become the error text of the response, so each type below
// formats exactly what clients see.

// argError is a missing or malformed command argument.
type argError struct {
	key  string
	want string // empty when the argument is missing
	got  any
}

func (e *argError) Error() string {
	if e.want == "" {
		return fmt.Sprintf("Missing required '%s' argument", e.key)
	}
	return fmt.Sprintf("'%s' must be %s, got: %v", e.key, e.want, e.got)
}

// choiceError is an argument outside a fixed set of values.
type choiceError struct {
	what    string
	got     string
	choices []string
}

func (e *choiceError) Error() string {
	quoted := make([]string, len(e.choices))
	for i, c := range e.choices {
		quoted[i] = "'" + c + "'"
	}
	use := quoted[0]
	if n := len(quoted); n > 1 {
		use = strings.Join(quoted[:n-1], ", ") + " or " + quoted[n-1]
	}
	return fmt.Sprintf("Invalid %s: '%s'. Use %s.", e.what, e.got, use)
}

// scriptError is a failed or timed out script evaluation.
type scriptError struct {
	timeout time.Duration
	err     error // nil on timeout
}

func (e *scriptError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("Script execution timeout after %s", e.timeout)
	}
	return "Script error: " + e.err.Error()
}

func (e *scriptError) Unwrap() error { return e.err }

// elementError reports a selector that matched nothing.
type elementError struct {
	selector string
}

func (e *elementError) Error() string {
	return fmt.Sprintf("Element not found: '%s'", e.selector)
}

// waitError reports a wait_for condition that never held.
type waitError struct {
	timeout time.Duration
	cond    string
}

func (e *waitError) Error() string {
	return fmt.Sprintf("Timed out after %s waiting for %s", e.timeout, e.cond)
}
