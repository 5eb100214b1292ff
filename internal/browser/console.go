package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vdavid/tauri-mcp/internal/dispatch"
)

// ConsoleEntry is one captured console call.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// consoleBuffer keeps the newest entries of one page, oldest first.
type consoleBuffer struct {
	mu      sync.Mutex
	limit   int
	entries []ConsoleEntry
}

func newConsoleBuffer(limit int) *consoleBuffer {
	return &consoleBuffer{limit: limit}
}

func (b *consoleBuffer) add(e ConsoleEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if over := len(b.entries) - b.limit; over > 0 {
		b.entries = append(b.entries[:0:0], b.entries[over:]...)
	}
}

// logs returns the entries at or after since whose level equals filter or
// whose message contains it. Empty filter and zero since match everything.
func (b *consoleBuffer) logs(filter string, since time.Time) []ConsoleEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ConsoleEntry, 0, len(b.entries))
	for _, e := range b.entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if filter != "" && e.Level != filter && !strings.Contains(e.Message, filter) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (b *consoleBuffer) clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

// watch starts capturing console output of p, once per page.
func (h *Host) watch(p *rod.Page) *consoleBuffer {
	h.mu.Lock()
	buf, ok := h.consoles[p.TargetID]
	if !ok {
		buf = newConsoleBuffer(h.consoleLimit)
		h.consoles[p.TargetID] = buf
	}
	h.mu.Unlock()
	if ok {
		return buf
	}

	wait := p.Context(h.ctx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		buf.add(consoleEntry(e, time.Now()))
	})
	go func() {
		wait()
		h.mu.Lock()
		delete(h.consoles, p.TargetID)
		h.mu.Unlock()
	}()
	h.log.Debug().Str("page", string(p.TargetID)).Msg("capturing console")
	return buf
}

func consoleEntry(e *proto.RuntimeConsoleAPICalled, at time.Time) ConsoleEntry {
	level := string(e.Type)
	if e.Type == proto.RuntimeConsoleAPICalledTypeWarning {
		level = "warn"
	}
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		parts = append(parts, formatArg(arg))
	}
	return ConsoleEntry{Level: level, Message: strings.Join(parts, " "), Timestamp: at}
}

func formatArg(o *proto.RuntimeRemoteObject) string {
	switch {
	case o.Type == proto.RuntimeRemoteObjectTypeString:
		return o.Value.Str()
	case o.UnserializableValue != "":
		return string(o.UnserializableValue)
	case o.Description != "":
		return o.Description
	case o.Value.Val() != nil:
		return fmt.Sprint(o.Value.Val())
	}
	return string(o.Type)
}

func (h *Host) consoleLogs(ctx context.Context, call *dispatch.Call) (any, error) {
	var since time.Time
	if s, ok := call.String("since"); ok && s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, &argError{key: "since", want: "an RFC 3339 timestamp", got: s}
		}
		since = t
	}
	reset, _ := call.Bool("clear")

	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	buf := h.watch(p)
	logs := buf.logs(call.StringOr("filter", ""), since)
	if reset {
		buf.clear()
	}
	return logs, nil
}
