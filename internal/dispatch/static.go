package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// StaticHost is an in-memory Host with a fixed, mutable list of contexts.
type StaticHost struct {
	mu      sync.RWMutex
	targets []string
	focused string
}

// NewStaticHost creates a host with the given contexts, in order.
func NewStaticHost(targets ...string) *StaticHost {
	return &StaticHost{targets: append([]string(nil), targets...)}
}

// Targets implements Host.
func (h *StaticHost) Targets(context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.targets...), nil
}

// Focused implements Host.
func (h *StaticHost) Focused(context.Context) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.focused
}

// SetTargets replaces the context list.
func (h *StaticHost) SetTargets(targets ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targets = append([]string(nil), targets...)
}

// Focus designates the focused context.
func (h *StaticHost) Focus(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = id
}

// RegisterEcho installs the echo command, which every host serves for
// connectivity checks.
func RegisterEcho(d *Dispatcher) {
	d.Handle(protocol.CommandEcho, echo)
}

// RegisterDemo installs commands useful for trying the channel without an
// application: echo, sleep and fail.
func RegisterDemo(d *Dispatcher) {
	RegisterEcho(d)
	d.Handle("sleep", sleep)
	d.Handle("fail", func(_ context.Context, call *Call) (any, error) {
		return nil, errors.New(call.StringOr("message", "failed on purpose"))
	})
}

// echo returns args.n when given, otherwise every argument except the target.
func echo(_ context.Context, call *Call) (any, error) {
	if n, ok := call.Args["n"]; ok {
		return n, nil
	}
	out := make(map[string]any, len(call.Args))
	for k, v := range call.Args {
		if k != protocol.TargetArg {
			out[k] = v
		}
	}
	return out, nil
}

func sleep(ctx context.Context, call *Call) (any, error) {
	ms, _, err := call.Int("ms")
	if err != nil {
		return nil, err
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return fmt.Sprintf("slept %dms", ms), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
