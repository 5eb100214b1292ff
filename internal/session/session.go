// Package session turns a single persistent WebSocket into a concurrent
// request/response channel to an in-app command host.
//
// Architecture:
//
//	caller ──SendCommand──▶ Correlator.Register ──▶ writePump ──▶ conn
//	caller ◀──Pending.Done── Correlator.Resolve ◀── readPump ◀── conn
//
// A Session owns exactly one connection at a time. All writes go through one
// writer goroutine. Each open connection is tagged with a generation number;
// goroutines and timers belonging to an older generation find their work
// stale and exit without touching the current connection.
//
// Lifecycle:
//
//	Disconnected ─Connect─▶ Connecting ─▶ Open ─Disconnect─▶ Closing ─▶ Disconnected
//	Open ─loss─▶ Disconnected ─▶ Reconnecting ─delay─▶ Connecting ─▶ Open
//
// On unplanned loss every pending request fails with ErrConnectionClosed
// before the state leaves Open. A planned Disconnect fails them with
// ErrDisconnected and suppresses reconnection.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// ErrConnecting is returned by Connect while another dial is in progress.
var ErrConnecting = errors.New("connect already in progress")

// Config configures a Session.
type Config struct {
	// RequestTimeout bounds each SendCommand unless overridden (0 disables)
	RequestTimeout time.Duration

	// KeepAliveInterval is how often to ping the host (0 disables)
	KeepAliveInterval time.Duration

	// ConnectTimeout bounds each dial, including automatic redials
	ConnectTimeout time.Duration

	Reconnect ReconnectPolicy

	// RequireVersion is a semver constraint the host's protocol version must
	// satisfy. Empty skips the check.
	RequireVersion string

	Dialer Dialer
	Clock  Clock
	Logger zerolog.Logger

	// OnStateChange is called for every transition, outside any session lock
	// and in transition order. It must not block on session methods that
	// change state.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the defaults: 10s requests, 30s keep-alive, 3
// reconnect attempts with a 1s base delay.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:    10 * time.Second,
		KeepAliveInterval: 30 * time.Second,
		ConnectTimeout:    5 * time.Second,
		Reconnect:         DefaultReconnectPolicy(),
		Dialer:            WebSocketDialer{HandshakeTimeout: 5 * time.Second},
		Clock:             SystemClock,
		Logger:            zerolog.Nop(),
	}
}

// Stats is a point-in-time view of a session.
type Stats struct {
	ID                string `json:"id"`
	State             string `json:"state"`
	Address           string `json:"address,omitempty"`
	Pending           int    `json:"pending"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	RequestsSent      uint64 `json:"requests_sent"`
}

type stateChange struct{ from, to State }

// Session is the client side of the command channel.
type Session struct {
	cfg  Config
	id   string
	log  zerolog.Logger
	corr *Correlator

	seq  atomic.Uint64
	sent atomic.Uint64

	// hookMu serializes OnStateChange delivery.
	hookMu sync.Mutex

	mu           sync.Mutex
	state        State
	addr         string
	url          string
	conn         Conn
	gen          uint64
	out          chan []byte
	done         chan struct{}
	attempts     int
	reconnect    bool
	retryTimer   Timer
	probeTimer   Timer
	awaitingPong bool
	changes      []stateChange
}

// New creates a disconnected session. Zero-valued Dialer, Clock and Logger
// are replaced with defaults.
func New(cfg Config) *Session {
	def := DefaultConfig()
	if cfg.Dialer == nil {
		cfg.Dialer = def.Dialer
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	id := uuid.NewString()
	return &Session{
		cfg:  cfg,
		id:   id,
		log:  cfg.Logger.With().Str("session", id[:8]).Logger(),
		corr: NewCorrelator(cfg.Clock),
	}
}

// setState records a transition. Must hold s.mu.
func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		s.log.Error().Stringer("from", from).Stringer("to", to).Msg("illegal state transition")
	}
	s.state = to
	s.log.Debug().Stringer("from", from).Stringer("to", to).Msg("state")
	if s.cfg.OnStateChange != nil {
		s.changes = append(s.changes, stateChange{from, to})
	}
}

// flush delivers queued transitions. Must not hold s.mu.
func (s *Session) flush() {
	if s.cfg.OnStateChange == nil {
		return
	}
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.mu.Lock()
	changes := s.changes
	s.changes = nil
	s.mu.Unlock()

	for _, c := range changes {
		s.cfg.OnStateChange(c.from, c.to)
	}
}

// Connect opens the channel to addr (host:port or a ws:// URL). Connecting
// again to the address of an open session is a no-op; any other existing
// connection is torn down first, failing its requests with ErrDisconnected.
func (s *Session) Connect(ctx context.Context, addr string) error {
	url, err := protocol.URL(addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case StateOpen:
		if s.addr == addr {
			s.mu.Unlock()
			return nil
		}
	case StateConnecting, StateClosing:
		s.mu.Unlock()
		return ErrConnecting
	}
	old := s.teardownLocked(ErrDisconnected, true)
	s.reconnect = s.cfg.Reconnect.Enabled
	s.attempts = 0
	s.addr = addr
	s.url = url
	s.gen++
	gen := s.gen
	s.setState(StateConnecting)
	s.mu.Unlock()
	s.flush()
	if old != nil {
		old.Close()
	}

	s.log.Info().Str("url", url).Msg("connecting")
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, err := s.cfg.Dialer.Dial(dialCtx, url)
	cancel()
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.setState(StateDisconnected)
		}
		s.mu.Unlock()
		s.flush()
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	if _, ok := s.open(gen, conn); !ok {
		conn.Close()
		return ErrDisconnected
	}
	s.log.Info().Str("url", url).Msg("connected")

	if s.cfg.RequireVersion != "" {
		if err := s.checkVersion(ctx); err != nil {
			s.Disconnect()
			return err
		}
	}
	return nil
}

// teardownLocked detaches the current connection, if any, failing pending
// requests with reason and cancelling timers. A planned teardown passes
// through StateClosing. The returned conn must be closed by the caller after
// releasing s.mu. Must hold s.mu.
func (s *Session) teardownLocked(reason error, planned bool) Conn {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.probeTimer != nil {
		s.probeTimer.Stop()
		s.probeTimer = nil
	}
	if s.state == StateDisconnected {
		return nil
	}

	s.gen++
	conn := s.conn
	if s.done != nil {
		close(s.done)
	}
	s.conn, s.out, s.done = nil, nil, nil
	s.awaitingPong = false

	if planned {
		s.setState(StateClosing)
	}
	if n := s.corr.FailAll(reason); n > 0 {
		s.log.Debug().Int("count", n).Err(reason).Msg("failed pending requests")
	}
	s.setState(StateDisconnected)
	return conn
}

// open installs conn if gen is still current.
func (s *Session) open(gen uint64, conn Conn) (uint64, bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return 0, false
	}
	s.gen++
	g := s.gen
	s.conn = conn
	s.out = make(chan []byte, 16)
	s.done = make(chan struct{})
	s.awaitingPong = false
	conn.SetPongHandler(func() { s.pong(g) })
	go s.readPump(g, conn)
	go s.writePump(g, conn, s.out, s.done)
	s.armProbeLocked(g)
	s.setState(StateOpen)
	s.mu.Unlock()
	s.flush()
	return g, true
}

// Disconnect closes the channel and disables reconnection. Pending requests
// fail with ErrDisconnected. It is safe to call on a closed session.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.reconnect = false
	s.attempts = 0
	conn := s.teardownLocked(ErrDisconnected, true)
	s.mu.Unlock()
	s.flush()

	if conn != nil {
		s.log.Info().Str("addr", s.Addr()).Msg("disconnected")
		return conn.Close()
	}
	return nil
}

// IsConnected reports whether the session is open.
func (s *Session) IsConnected() bool {
	return s.State() == StateOpen
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the address passed to the last Connect.
func (s *Session) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stats returns current session statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ID:                s.id,
		State:             s.state.String(),
		Address:           s.addr,
		Pending:           s.corr.Len(),
		ReconnectAttempts: s.attempts,
		RequestsSent:      s.sent.Load(),
	}
}

// CallOption customizes a single SendCommand.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
	target  string
}

// WithTimeout overrides the request timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithTarget addresses a specific context on the host.
func WithTarget(id string) CallOption {
	return func(o *callOptions) { o.target = id }
}

// SendCommand sends command with args and waits for its terminal event.
//
// Errors are ErrNotConnected, ErrConnectionClosed, ErrDisconnected, a
// *TimeoutError, the context's error, or a *CommandError for a success:false
// response. In the last case the response is returned as well.
func (s *Session) SendCommand(ctx context.Context, command string, args map[string]any, opts ...CallOption) (*protocol.Response, error) {
	o := callOptions{timeout: s.cfg.RequestTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.target != "" {
		withTarget := make(map[string]any, len(args)+1)
		for k, v := range args {
			withTarget[k] = v
		}
		withTarget[protocol.TargetArg] = o.target
		args = withTarget
	}

	id := fmt.Sprintf("req_%d", s.seq.Add(1))
	req, err := protocol.NewRequest(id, command, args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := s.cfg.Clock.Now()
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		recordRequest(command, "not_connected", 0)
		return nil, ErrNotConnected
	}
	p, err := s.corr.Register(id, command, o.timeout)
	out, done := s.out, s.done
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.sent.Add(1)
	trackPending(1)
	defer trackPending(-1)

	select {
	case out <- data:
	case <-done:
		// The loss that closed done has already failed p.
	case <-ctx.Done():
		s.corr.Cancel(id, ctx.Err())
	}

	var res Result
	select {
	case res = <-p.Done():
	case <-ctx.Done():
		s.corr.Cancel(id, ctx.Err())
		res = <-p.Done()
	}
	return s.finish(command, start, res)
}

func (s *Session) finish(command string, start time.Time, res Result) (*protocol.Response, error) {
	elapsed := s.cfg.Clock.Now().Sub(start)
	if res.Err != nil {
		recordRequest(command, outcome(res.Err), elapsed)
		return nil, res.Err
	}
	resp := res.Response
	if !resp.Success {
		cerr := &CommandError{ID: resp.ID, Command: command, Code: resp.Code, Message: resp.Error}
		recordRequest(command, outcome(cerr), elapsed)
		return resp, cerr
	}
	recordRequest(command, "ok", elapsed)
	return resp, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionClosed):
		return "connection_closed"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrTargetNotFound):
		return "target_not_found"
	case errors.Is(err, ErrRemoteExecution):
		return "remote_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func (s *Session) checkVersion(ctx context.Context) error {
	constraint, err := semver.NewConstraint(s.cfg.RequireVersion)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", s.cfg.RequireVersion, err)
	}
	resp, err := s.SendCommand(ctx, protocol.CommandVersion, nil)
	if err != nil {
		return fmt.Errorf("version check: %w", err)
	}
	var info protocol.VersionInfo
	if err := resp.Decode(&info); err != nil {
		return fmt.Errorf("version check: %w", err)
	}
	v, err := semver.NewVersion(info.Protocol)
	if err != nil {
		return fmt.Errorf("%w: host reported %q", ErrVersionMismatch, info.Protocol)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: host speaks %s, want %s", ErrVersionMismatch, v, s.cfg.RequireVersion)
	}
	return nil
}

func (s *Session) readPump(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleLoss(gen, err)
			return
		}
		resp, err := protocol.ParseResponse(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed response")
			continue
		}
		if !s.corr.Resolve(resp) {
			recordLateResponse()
			s.log.Debug().Str("id", resp.ID).Msg("discarding response with no pending request")
		}
	}
}

func (s *Session) writePump(gen uint64, conn Conn, out <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case data := <-out:
			if err := conn.WriteMessage(data); err != nil {
				s.handleLoss(gen, fmt.Errorf("write: %w", err))
				return
			}
		case <-done:
			return
		}
	}
}

// handleLoss reacts to an unplanned failure of connection gen.
func (s *Session) handleLoss(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.log.Warn().Err(cause).Str("addr", s.addr).Msg("connection lost")
	conn := s.teardownLocked(ErrConnectionClosed, false)
	s.scheduleRetryLocked()
	s.mu.Unlock()
	s.flush()
	conn.Close()
}

// scheduleRetryLocked arms the next automatic dial, if the policy allows.
// Must hold s.mu.
func (s *Session) scheduleRetryLocked() {
	if !s.reconnect {
		return
	}
	delay, ok := s.cfg.Reconnect.Next(s.attempts)
	if !ok {
		s.log.Warn().Int("attempts", s.attempts).Msg("giving up on reconnection")
		recordReconnect("exhausted")
		return
	}
	s.attempts++
	s.setState(StateReconnecting)
	s.log.Info().Int("attempt", s.attempts).Dur("delay", delay).Msg("scheduling reconnect")
	gen := s.gen
	s.retryTimer = s.cfg.Clock.AfterFunc(delay, func() { s.redial(gen) })
}

func (s *Session) redial(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	s.gen++
	gen = s.gen
	url := s.url
	s.setState(StateConnecting)
	s.mu.Unlock()
	s.flush()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	conn, err := s.cfg.Dialer.Dial(ctx, url)
	cancel()
	if err != nil {
		recordReconnect("failed")
		s.log.Warn().Err(err).Msg("reconnect failed")
		s.mu.Lock()
		if s.gen == gen {
			s.setState(StateDisconnected)
			s.scheduleRetryLocked()
		}
		s.mu.Unlock()
		s.flush()
		return
	}

	g, ok := s.open(gen, conn)
	if !ok {
		conn.Close()
		return
	}
	if s.cfg.RequireVersion != "" {
		// The check round-trips through the read pump, so it cannot run on
		// the timer callback.
		go s.verifyReconnect(g, url)
		return
	}
	s.reconnected(g, url)
}

// verifyReconnect applies the version gate to a redialed connection. A host
// speaking an unacceptable protocol ends reconnection; any other failure
// counts as a failed attempt.
func (s *Session) verifyReconnect(gen uint64, url string) {
	err := s.checkVersion(context.Background())
	if err == nil {
		s.reconnected(gen, url)
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.log.Warn().Err(err).Str("url", url).Msg("reconnected host rejected")
	var conn Conn
	if errors.Is(err, ErrVersionMismatch) {
		recordReconnect("version_mismatch")
		s.reconnect = false
		s.attempts = 0
		conn = s.teardownLocked(err, false)
	} else {
		recordReconnect("failed")
		conn = s.teardownLocked(ErrConnectionClosed, false)
		s.scheduleRetryLocked()
	}
	s.mu.Unlock()
	s.flush()
	conn.Close()
}

func (s *Session) reconnected(gen uint64, url string) {
	s.mu.Lock()
	if s.gen == gen {
		s.attempts = 0
	}
	s.mu.Unlock()
	recordReconnect("ok")
	s.log.Info().Str("url", url).Msg("reconnected")
}

// armProbeLocked schedules the next keep-alive check. Must hold s.mu.
func (s *Session) armProbeLocked(gen uint64) {
	if s.cfg.KeepAliveInterval <= 0 {
		return
	}
	s.probeTimer = s.cfg.Clock.AfterFunc(s.cfg.KeepAliveInterval, func() { s.probe(gen) })
}

// probe fails the connection if the previous ping went unanswered, otherwise
// sends a new one.
func (s *Session) probe(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	if s.awaitingPong {
		s.mu.Unlock()
		s.handleLoss(gen, ErrKeepAliveTimeout)
		return
	}
	s.awaitingPong = true
	conn := s.conn
	s.armProbeLocked(gen)
	s.mu.Unlock()

	if err := conn.Ping(); err != nil {
		s.handleLoss(gen, fmt.Errorf("ping: %w", err))
	}
}

func (s *Session) pong(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.awaitingPong = false
	}
	s.mu.Unlock()
}
