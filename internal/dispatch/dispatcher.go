// Package dispatch is the host side of the command channel: it resolves the
// target of each inbound request, runs the named command and produces exactly
// one response carrying the request's id.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vdavid/tauri-mcp/internal/protocol"
	"github.com/vdavid/tauri-mcp/internal/target"
)

// Host exposes the live set of addressable contexts. Targets must return ids
// in a stable order and is called once per request.
type Host interface {
	Targets(ctx context.Context) ([]string, error)
	Focused(ctx context.Context) string
}

// Handler runs one command. A returned error becomes a success:false
// response with the error's text.
type Handler func(ctx context.Context, call *Call) (any, error)

// Options configures a Dispatcher.
type Options struct {
	// CommandTimeout bounds each handler (0 disables)
	CommandTimeout time.Duration
	Logger         zerolog.Logger
}

// DefaultCommandTimeout matches the client's default request timeout.
const DefaultCommandTimeout = 10 * time.Second

type entry struct {
	handler Handler
	global  bool
}

// Dispatcher routes requests to registered handlers.
type Dispatcher struct {
	host    Host
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]entry
}

// New creates a dispatcher with the built-in version command registered.
func New(host Host, opts Options) *Dispatcher {
	d := &Dispatcher{
		host:     host,
		timeout:  opts.CommandTimeout,
		log:      opts.Logger,
		handlers: make(map[string]entry),
	}
	d.HandleGlobal(protocol.CommandVersion, d.version)
	return d
}

// Handle registers a command that runs against a resolved target.
func (d *Dispatcher) Handle(name string, h Handler) {
	d.register(name, entry{handler: h})
}

// HandleGlobal registers a command that does not address a target.
func (d *Dispatcher) HandleGlobal(name string, h Handler) {
	d.register(name, entry{handler: h, global: true})
}

func (d *Dispatcher) register(name string, e entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = e
}

func (d *Dispatcher) lookup(name string) (entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.handlers[name]
	return e, ok
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) version(context.Context, *Call) (any, error) {
	return protocol.VersionInfo{Protocol: protocol.ProtocolVersion, Commands: d.Commands()}, nil
}

// DispatchRaw handles one wire message. Undecodable input yields a failure
// with an empty id.
func (d *Dispatcher) DispatchRaw(ctx context.Context, data []byte) *protocol.Response {
	req, err := protocol.ParseRequest(data)
	if errors.Is(err, protocol.ErrEmptyCommand) {
		return protocol.Fail(req.ID, protocol.ErrInvalidRequest, "Invalid request: missing command")
	}
	if err != nil {
		return protocol.Failf("", protocol.ErrInvalidRequest, "Invalid request JSON: %v", err)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch handles one decoded request. It never panics and always returns a
// response with req.ID.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	start := time.Now()
	resp := d.dispatch(ctx, req)

	outcome := "ok"
	if !resp.Success {
		outcome = string(resp.Code)
		d.log.Warn().Str("id", req.ID).Str("command", req.Command).Str("code", outcome).Msg(resp.Error)
	} else {
		ev := d.log.Debug().Str("id", req.ID).Str("command", req.Command)
		if resp.Context != nil {
			ev = ev.Str("target", resp.Context.TargetID)
		}
		ev.Dur("took", time.Since(start)).Msg("dispatched")
	}
	label := req.Command
	if resp.Code == protocol.ErrUnknownCommand || resp.Code == protocol.ErrInvalidRequest {
		label = "unknown"
	}
	recordDispatch(label, outcome, time.Since(start))
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	args, err := req.ArgsMap()
	if err != nil {
		return protocol.Failf(req.ID, protocol.ErrInvalidRequest, "Invalid args: %v", err)
	}

	e, known := d.lookup(req.Command)
	call := &Call{ID: req.ID, Command: req.Command, Args: args}

	var tctx *protocol.TargetContext
	if !known || !e.global {
		available, err := d.host.Targets(ctx)
		if err != nil {
			return protocol.Failf(req.ID, protocol.ErrExecutionFailed, "list targets: %v", err)
		}
		res, err := target.Resolve(req.TargetID(), available, d.host.Focused(ctx))
		if err != nil {
			code := protocol.ErrTargetNotFound
			if errors.Is(err, target.ErrNoTargets) {
				code = protocol.ErrNoTargets
			}
			return protocol.Fail(req.ID, code, err.Error())
		}
		call.Target = res.ID
		tctx = &protocol.TargetContext{TargetID: res.ID, TotalTargets: res.Total, Warning: res.Warning()}
	}

	if !known {
		return protocol.Failf(req.ID, protocol.ErrUnknownCommand,
			"Unknown command: '%s'. Available: %s", req.Command, strings.Join(d.Commands(), ", "))
	}

	data, err := d.run(ctx, e.handler, call)
	if err != nil {
		code := protocol.ErrExecutionFailed
		var te *timeoutError
		if errors.As(err, &te) {
			code = protocol.ErrTimeout
		}
		return protocol.Fail(req.ID, code, err.Error())
	}

	resp, err := protocol.OK(req.ID, data, tctx)
	if err != nil {
		return protocol.Fail(req.ID, protocol.ErrExecutionFailed, err.Error())
	}
	return resp
}

type timeoutError struct{ after time.Duration }

func (e *timeoutError) Error() string { return fmt.Sprintf("Command timed out after %s", e.after) }

type result struct {
	value any
	err   error
}

// run executes h under the command timeout. On expiry the handler goroutine
// keeps running; its result is dropped.
func (d *Dispatcher) run(ctx context.Context, h Handler, call *Call) (any, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("command panicked: %v", r)}
			}
		}()
		v, err := h(ctx, call)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && d.timeout > 0 && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, &timeoutError{after: d.timeout}
		}
		return r.value, r.err
	case <-ctx.Done():
		if d.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &timeoutError{after: d.timeout}
		}
		return nil, ctx.Err()
	}
}
