package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due, in order,
// including timers scheduled by those callbacks.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		live := c.timers[:0]
		for _, t := range c.timers {
			switch {
			case t.stopped || t.fired:
			case !t.when.After(c.now):
				t.fired = true
				due = append(due, t)
			default:
				live = append(live, t)
			}
		}
		c.timers = live
		c.mu.Unlock()

		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
		for _, t := range due {
			t.f()
		}
	}
}

// Active returns the number of armed timers.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

var errPipeClosed = errors.New("pipe closed")

// pipeConn is an in-memory Conn. The test plays the host through in/sent.
type pipeConn struct {
	in   chan []byte
	sent chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	autoPong bool
	pings    atomic.Int32

	mu   sync.Mutex
	pong func()
}

func newPipeConn(autoPong bool) *pipeConn {
	return &pipeConn{
		in:       make(chan []byte, 64),
		sent:     make(chan []byte, 64),
		closed:   make(chan struct{}),
		autoPong: autoPong,
	}
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.closed:
		return nil, errPipeClosed
	}
}

func (p *pipeConn) WriteMessage(data []byte) error {
	select {
	case <-p.closed:
		return errPipeClosed
	default:
	}
	p.sent <- data
	return nil
}

func (p *pipeConn) Ping() error {
	p.pings.Add(1)
	p.mu.Lock()
	pong := p.pong
	p.mu.Unlock()
	if p.autoPong && pong != nil {
		pong()
	}
	return nil
}

func (p *pipeConn) SetPongHandler(f func()) {
	p.mu.Lock()
	p.pong = f
	p.mu.Unlock()
}

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// nextRequest waits for the session to write a request.
func (p *pipeConn) nextRequest(t *testing.T) *protocol.Request {
	t.Helper()
	select {
	case data := <-p.sent:
		req, err := protocol.ParseRequest(data)
		require.NoError(t, err)
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request written")
		return nil
	}
}

func (p *pipeConn) reply(t *testing.T, id string, data any) {
	t.Helper()
	resp, err := protocol.OK(id, data, &protocol.TargetContext{TargetID: "main", TotalTargets: 1})
	require.NoError(t, err)
	p.in <- protocol.FormatResponse(resp)
}

func (p *pipeConn) replyError(id string, code protocol.ErrorCode, msg string) {
	p.in <- protocol.FormatResponse(protocol.Fail(id, code, msg))
}

// echo answers every request with its args until the pipe closes.
func (p *pipeConn) echo() {
	for {
		select {
		case data := <-p.sent:
			req, err := protocol.ParseRequest(data)
			if err != nil {
				continue
			}
			resp := &protocol.Response{ID: req.ID, Success: true, Data: json.RawMessage(req.Args)}
			p.in <- protocol.FormatResponse(resp)
		case <-p.closed:
			return
		}
	}
}

// pipeDialer hands out pipeConns. While down is set, dials fail.
type pipeDialer struct {
	autoPong bool

	mu    sync.Mutex
	down  bool
	dials int
	conns chan *pipeConn
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{autoPong: true, conns: make(chan *pipeConn, 16)}
}

func (d *pipeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.down {
		return nil, errors.New("connection refused")
	}
	c := newPipeConn(d.autoPong)
	d.conns <- c
	return c, nil
}

func (d *pipeDialer) setDown(down bool) {
	d.mu.Lock()
	d.down = down
	d.mu.Unlock()
}

func (d *pipeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *pipeDialer) next(t *testing.T) *pipeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection dialed")
		return nil
	}
}
