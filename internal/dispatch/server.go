package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Host string
	Port int

	// PingInterval is how often each client is pinged (0 disables)
	PingInterval time.Duration

	// WriteTimeout bounds each frame write
	WriteTimeout time.Duration

	// MaxMessageSize closes clients that send a larger frame (0 means
	// protocol.MaxMessageSize)
	MaxMessageSize int64

	// MetricsPath serves Prometheus metrics when non-empty
	MetricsPath string

	Logger zerolog.Logger
}

// DefaultServerConfig listens on localhost:9223 and pings every 30s.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           protocol.DefaultHost,
		Port:           protocol.DefaultPort,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: protocol.MaxMessageSize,
		MetricsPath:    "/metrics",
		Logger:         zerolog.Nop(),
	}
}

// ServerStats summarizes server activity.
type ServerStats struct {
	Addr        string        `json:"addr"`
	Running     bool          `json:"running"`
	Uptime      time.Duration `json:"uptime"`
	Connections int           `json:"connections"`
	Requests    uint64        `json:"requests"`
	Commands    []string      `json:"commands"`
}

// Server accepts WebSocket clients and feeds their requests to a Dispatcher.
// Requests on one connection are dispatched concurrently; responses are
// written by a single writer per connection.
type Server struct {
	cfg      ServerConfig
	d        *Dispatcher
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
	startTime  time.Time
	cancel     context.CancelFunc
	running    atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once

	conns    sync.Map // id -> *serverConn
	requests atomic.Uint64
}

// NewServer creates a server for d.
func NewServer(d *Dispatcher, cfg ServerConfig) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		cfg: cfg,
		d:   d,
		log: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ready: make(chan struct{}),
	}
}

// Handler returns the HTTP handler: WebSocket upgrade at "/" and, when
// configured, metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.cfg.MetricsPath != "" {
		RegisterMetrics()
		mux.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}
	mux.HandleFunc("/", s.handleWebSocket)
	return mux
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("host server already running")
	}

	addr := protocol.Address(s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = listener.Addr().String()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.startTime = time.Now()
	s.running.Store(true)
	s.readyOnce.Do(func() { close(s.ready) })

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("host server stopped")
		}
		s.running.Store(false)
	}()

	s.log.Info().Str("addr", s.addr).Strs("commands", s.d.Commands()).Msg("host server listening")
	return nil
}

// Stop closes every client connection and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return fmt.Errorf("host server not running")
	}
	s.cancel()
	s.DropClients()

	err := s.httpServer.Shutdown(ctx)
	s.running.Store(false)
	return err
}

// DropClients closes every client connection and returns how many there were.
func (s *Server) DropClients() int {
	n := 0
	s.conns.Range(func(_, v any) bool {
		v.(*serverConn).close()
		n++
		return true
	})
	return n
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Stats returns server statistics.
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	stats := ServerStats{
		Addr:     s.addr,
		Running:  s.running.Load(),
		Requests: s.requests.Load(),
		Commands: s.d.Commands(),
	}
	if stats.Running {
		stats.Uptime = time.Since(s.startTime)
	}
	s.mu.Unlock()

	s.conns.Range(func(_, _ any) bool {
		stats.Connections++
		return true
	})
	return stats
}

type serverConn struct {
	id   string
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *serverConn) close() {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.ws.Close()
	})
}

// send queues a response; it is dropped once the connection is gone.
func (c *serverConn) send(data []byte) {
	select {
	case c.out <- data:
	case <-c.done:
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	c := &serverConn{
		id:   uuid.NewString(),
		ws:   ws,
		out:  make(chan []byte, 32),
		done: make(chan struct{}),
	}
	s.conns.Store(c.id, c)
	trackConnection(1)
	log := s.log.With().Str("conn", c.id[:8]).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		c.close()
		s.conns.Delete(c.id)
		trackConnection(-1)
		log.Info().Msg("client disconnected")
	}()

	limit := s.cfg.MaxMessageSize
	if limit <= 0 {
		limit = protocol.MaxMessageSize
	}
	ws.SetReadLimit(limit)

	if s.cfg.PingInterval > 0 {
		deadline := 2 * s.cfg.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(deadline))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(deadline))
		})
	}
	go s.writePump(c, log)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		s.requests.Add(1)
		go func() {
			resp := s.d.DispatchRaw(ctx, data)
			c.send(protocol.FormatResponse(resp))
		}()
	}
}

func (s *Server) writePump(c *serverConn, log zerolog.Logger) {
	var tick <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("write failed")
				c.close()
				return
			}
		case <-tick:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				log.Debug().Err(err).Msg("ping failed")
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
