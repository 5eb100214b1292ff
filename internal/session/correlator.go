package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// Result is the single terminal event of a pending request: a response or an
// error, never both.
type Result struct {
	Response *protocol.Response
	Err      error
}

// Pending is an outstanding request owned by a Correlator.
type Pending struct {
	ID      string
	Command string

	started time.Time
	timer   Timer
	done    chan Result
}

// Done delivers exactly one Result.
func (p *Pending) Done() <-chan Result { return p.done }

// Correlator matches responses to outstanding requests by id.
//
// An entry is completed by whoever removes it from the map while holding mu,
// so each id gets exactly one terminal event no matter how a response, a
// deadline and a connection loss race.
type Correlator struct {
	clock Clock

	mu      sync.Mutex
	pending map[string]*Pending
}

// NewCorrelator creates an empty correlator. A nil clock means SystemClock.
func NewCorrelator(clock Clock) *Correlator {
	if clock == nil {
		clock = SystemClock
	}
	return &Correlator{
		clock:   clock,
		pending: make(map[string]*Pending),
	}
}

// Register adds a pending entry. When timeout is positive, the entry fails
// with a *TimeoutError once it elapses; the connection is left alone.
func (c *Correlator) Register(id, command string, timeout time.Duration) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	p := &Pending{
		ID:      id,
		Command: command,
		started: c.clock.Now(),
		done:    make(chan Result, 1),
	}
	if timeout > 0 {
		p.timer = c.clock.AfterFunc(timeout, func() { c.expire(p) })
	}
	c.pending[id] = p
	return p, nil
}

func (c *Correlator) expire(p *Pending) {
	if !c.remove(p.ID, p) {
		return
	}
	p.done <- Result{Err: &TimeoutError{
		ID:      p.ID,
		Command: p.Command,
		Elapsed: c.clock.Now().Sub(p.started),
	}}
}

// remove deletes id if it still maps to want (any entry when want is nil).
func (c *Correlator) remove(id string, want *Pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok || (want != nil && p != want) {
		return false
	}
	delete(c.pending, id)
	return true
}

func (c *Correlator) take(id string) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// Resolve completes the entry for resp.ID. It reports false when nothing is
// pending under that id (late, duplicate or foreign responses), which is not
// an error.
func (c *Correlator) Resolve(resp *protocol.Response) bool {
	p := c.take(resp.ID)
	if p == nil {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- Result{Response: resp}
	return true
}

// Cancel fails a single entry with err, typically because the caller stopped
// waiting.
func (c *Correlator) Cancel(id string, err error) bool {
	p := c.take(id)
	if p == nil {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- Result{Err: err}
	return true
}

// FailAll fails every pending entry with reason and returns how many there
// were. The set is empty when it returns.
func (c *Correlator) FailAll(reason error) int {
	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[string]*Pending)
	c.mu.Unlock()

	for _, p := range drained {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.done <- Result{Err: reason}
	}
	return len(drained)
}

// Len returns the number of pending entries.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
