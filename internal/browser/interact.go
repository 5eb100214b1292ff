package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vdavid/tauri-mcp/internal/dispatch"
)

var interactActions = []string{"click", "double_click", "type", "focus", "hover", "scroll"}

func (h *Host) interact(ctx context.Context, call *dispatch.Call) (any, error) {
	action, ok := call.String("action")
	if !ok || action == "" {
		return nil, &argError{key: "action"}
	}
	known := false
	for _, a := range interactActions {
		known = known || a == action
	}
	if !known {
		return nil, &choiceError{what: "action", got: action, choices: interactActions}
	}
	selector, hasSelector := call.String("selector")
	if action != "scroll" && (!hasSelector || selector == "") {
		return nil, &argError{key: "selector"}
	}
	text, hasText := call.String("text")
	if action == "type" && !hasText {
		return nil, &argError{key: "text"}
	}

	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	if action == "scroll" && selector == "" {
		return scrollBy(p, call)
	}

	found, el, err := p.Has(selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &elementError{selector: selector}
	}

	var msg string
	switch action {
	case "click":
		msg, err = "Clicked "+selector, el.Click(proto.InputMouseButtonLeft, 1)
	case "double_click":
		msg, err = "Double-clicked "+selector, el.Click(proto.InputMouseButtonLeft, 2)
	case "type":
		if replace, _ := call.Bool("clear"); replace {
			if err := el.SelectAllText(); err != nil {
				return nil, err
			}
		}
		msg = fmt.Sprintf("Typed %d characters into %s", len([]rune(text)), selector)
		err = el.Input(text)
	case "focus":
		msg, err = "Focused "+selector, el.Focus()
	case "hover":
		msg, err = "Hovered "+selector, el.Hover()
	default:
		msg, err = "Scrolled "+selector+" into view", el.ScrollIntoView()
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func scrollBy(p *rod.Page, call *dispatch.Call) (any, error) {
	x, _, err := call.Int("x")
	if err != nil {
		return nil, &argError{key: "x", want: "an integer", got: call.Args["x"]}
	}
	y, _, err := call.Int("y")
	if err != nil {
		return nil, &argError{key: "y", want: "an integer", got: call.Args["y"]}
	}
	res, err := p.Eval(`(x, y) => { window.scrollBy(x, y); return [window.scrollX, window.scrollY]; }`, x, y)
	if err != nil {
		return nil, &scriptError{err: err}
	}
	var pos [2]float64
	if err := res.Value.Unmarshal(&pos); err != nil {
		return nil, fmt.Errorf("decode scroll position: %w", err)
	}
	return fmt.Sprintf("Scrolled to %d,%d", int(pos[0]), int(pos[1])), nil
}

const (
	// DefaultWaitTimeout bounds wait_for unless args.timeout (ms) is given.
	DefaultWaitTimeout = 5 * time.Second
	waitPollInterval   = 50 * time.Millisecond
)

var waitStates = []string{"attached", "visible", "hidden"}

// waitSpec is a wait_for condition. Exactly one of Selector, Text and Script
// is set.
type waitSpec struct {
	Selector string `json:"selector,omitempty"`
	State    string `json:"state,omitempty"`
	Text     string `json:"text,omitempty"`
	Script   string `json:"-"`
}

func (w waitSpec) String() string {
	switch {
	case w.Selector != "" && w.State == "attached":
		return fmt.Sprintf("selector '%s'", w.Selector)
	case w.Selector != "":
		return fmt.Sprintf("selector '%s' to be %s", w.Selector, w.State)
	case w.Text != "":
		return fmt.Sprintf("text '%s'", w.Text)
	}
	return "script to return a truthy value"
}

// parseWait reads the condition and timeout of a wait_for call.
func parseWait(call *dispatch.Call) (waitSpec, time.Duration, error) {
	var w waitSpec
	w.Selector = call.StringOr("selector", "")
	w.Text = call.StringOr("text", "")
	w.Script = call.StringOr("script", "")
	switch {
	case w.Selector != "":
		w.Text, w.Script = "", ""
		w.State = call.StringOr("state", "attached")
		valid := false
		for _, s := range waitStates {
			valid = valid || s == w.State
		}
		if !valid {
			return w, 0, &choiceError{what: "state", got: w.State, choices: waitStates}
		}
	case w.Text != "":
		w.Script = ""
	case w.Script == "":
		return w, 0, &argError{key: "selector"}
	}

	timeout := DefaultWaitTimeout
	ms, present, err := call.Int("timeout")
	if err != nil || (present && ms <= 0) {
		return w, 0, &argError{key: "timeout", want: "a positive number of milliseconds", got: call.Args["timeout"]}
	}
	if present {
		timeout = time.Duration(ms) * time.Millisecond
	}
	return w, timeout, nil
}

const waitCheckJS = `(cond) => {
	if (cond.selector) {
		const el = document.querySelector(cond.selector);
		const shown = el && el.getClientRects().length > 0 && getComputedStyle(el).visibility !== 'hidden';
		if (cond.state === 'hidden') return !shown;
		if (cond.state === 'visible') return !!shown;
		return !!el;
	}
	return !!document.body && document.body.innerText.includes(cond.text);
}`

// WaitResult is the data returned by wait_for.
type WaitResult struct {
	Matched   string `json:"matched"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (h *Host) waitFor(ctx context.Context, call *dispatch.Call) (any, error) {
	w, timeout, err := parseWait(call)
	if err != nil {
		return nil, err
	}
	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}

	js, args := waitCheckJS, []any{w}
	if w.Script != "" {
		js, args = "async () => !!(await ("+wrapScript(prepareScript(w.Script))+")())", nil
	}

	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(waitPollInterval)
	defer tick.Stop()
	for {
		res, err := p.Eval(js, args...)
		if err != nil {
			return nil, &scriptError{err: err}
		}
		if res.Value.Bool() {
			return WaitResult{Matched: w.String(), ElapsedMS: time.Since(start).Milliseconds()}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, &waitError{timeout: timeout, cond: w.String()}
		case <-tick.C:
		}
	}
}
