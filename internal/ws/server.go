// Package ws handles WebSocket connection management, including upgrading
// authenticated HTTP connections, maintaining the per-user connection
// registry, and dispatching incoming frames to the appropriate handlers.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/artxchange/skillswap/internal/apperr"
	"github.com/artxchange/skillswap/internal/identity"
	"github.com/artxchange/skillswap/internal/metrics"
	"github.com/artxchange/skillswap/internal/protocol"
	"github.com/artxchange/skillswap/internal/ratelimit"
)

// MaxFrameBytes caps a single inbound data frame. Chat text is limited far
// below this; the slack covers the JSON envelope.
const MaxFrameBytes = 16 << 10

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	Heartbeat      HeartbeatConfig

	// AllowedOrigins lists the browser origins that may open a socket. A
	// handshake with any other Origin header is refused. Requests without an
	// Origin header (non-browser clients) are not affected. Empty allows all.
	AllowedOrigins []string
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server is the WebSocket server built on gobwas/ws and Linux epoll. It
// authenticates and upgrades HTTP requests, registers the connections with an
// epoll instance for I/O readiness notifications, and dispatches ready
// connections to a bounded worker pool for frame reading.
//
// Server implements http.Handler so it can be mounted on any router.
type Server struct {
	config       ServerConfig
	epoll        *Epoll
	registry     *Registry
	verifier     identity.Verifier
	limiter      ratelimit.Checker
	workerPool   chan struct{}                       // semaphore limiting concurrent read workers
	onMessage    func(conn *Connection, data []byte) // message handler callback
	onConnect    func(conn *Connection, first bool)  // called after registration
	onDisconnect func(conn *Connection, last bool)   // called when a connection is removed
	onHeartbeat  func(userIDs []string)              // called with live users after each sweep
	done         chan struct{}
	startedAt    time.Time
	started      atomic.Bool
	stopOnce     sync.Once
}

// NewServer creates a Server. The onMessage function is called from a worker
// goroutine whenever a complete WebSocket text frame is received.
func NewServer(config ServerConfig, verifier identity.Verifier, onMessage func(conn *Connection, data []byte)) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	return &Server{
		config:     config,
		registry:   NewRegistry(),
		verifier:   verifier,
		limiter:    ratelimit.AllowAll{},
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// SetLimiter installs the per-address handshake limiter.
func (s *Server) SetLimiter(l ratelimit.Checker) {
	s.limiter = l
}

// SetOnConnect registers a callback invoked after a connection is registered.
// first reports whether it is the user's only open connection.
func (s *Server) SetOnConnect(fn func(conn *Connection, first bool)) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback invoked when a connection is removed
// (due to read error, heartbeat timeout, or graceful close). last reports
// whether the user has no connections left.
func (s *Server) SetOnDisconnect(fn func(conn *Connection, last bool)) {
	s.onDisconnect = fn
}

// SetOnHeartbeat registers a callback invoked after every heartbeat sweep with
// the users that still hold at least one live connection.
func (s *Server) SetOnHeartbeat(fn func(userIDs []string)) {
	s.onHeartbeat = fn
}

// Start initializes the epoll instance and starts the event loop and the
// heartbeat monitor in the background. Requests served before Start are
// refused with 503.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	s.startedAt = time.Now()
	s.started.Store(true)

	go s.startEventLoop()
	StartHeartbeat(s, s.config.Heartbeat)

	log.Printf("ws: server started (workers=%d, max_conns=%d)",
		s.config.WorkerPoolSize, s.config.MaxConnections)
	return nil
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP authenticates the handshake and upgrades it to a WebSocket
// connection using the gobwas/ws zero-copy upgrader. A request without a
// valid token is answered 401 and never upgraded.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.started.Load() || s.isStopped() {
		http.Error(w, "server not accepting connections", http.StatusServiceUnavailable)
		return
	}

	// Enforce maximum connection limit.
	if s.registry.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r)
	if ok, _ := s.limiter.Allow(r.Context(), ip, ratelimit.RuleConnect); !ok {
		ratelimit.WriteHeaders(r.Context(), w.Header(), s.limiter, ip, ratelimit.RuleConnect, false)
		metrics.RateLimited.WithLabelValues("connect").Inc()
		writeHandshakeError(w, apperr.RateLimited("Too many connection attempts"))
		return
	}

	if origin := r.Header.Get("Origin"); origin != "" && !s.originAllowed(origin) {
		log.Printf("ws: rejected origin %q from %s", origin, ip)
		writeHandshakeError(w, apperr.Authorization("Origin not allowed"))
		return
	}

	userID, err := s.verifier.Verify(r.Context(), identity.HandshakeToken(r))
	if err != nil {
		if !apperr.Is(err, apperr.KindAuthentication) {
			log.Printf("ws: token verification failed: %v", err)
		}
		writeHandshakeError(w, apperr.Authentication("Authentication required"))
		return
	}

	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed user=%s: %v", userID, err)
		return
	}

	netConn := s.epoll.Wrap(raw)
	c := newConnection(uuid.NewString(), userID, netConn, s.config.WriteTimeout)

	first := s.registry.Add(c)
	if err := s.epoll.Add(netConn); err != nil {
		log.Printf("ws: epoll add failed conn=%s: %v", c.ID, err)
		s.registry.Remove(c.ID)
		return
	}

	metrics.ConnectionsTotal.Inc()
	if first {
		metrics.OnlineUsers.Inc()
	}

	if s.onConnect != nil {
		s.onConnect(c, first)
	}

	hello, err := protocol.NewServerMessage(protocol.TypeConnected, protocol.ConnectedMsg{
		UserID:       userID,
		ConnectionID: c.ID,
	})
	if err != nil {
		log.Printf("ws: failed to build connected message conn=%s: %v", c.ID, err)
	} else if err := c.WriteMessage(hello); err != nil {
		log.Printf("ws: failed to send connected message conn=%s: %v", c.ID, err)
	}

	log.Printf("ws: new connection user=%s conn=%s (total=%d)", userID, c.ID, s.registry.Count())
}

// writeHandshakeError answers a refused handshake with the structured error
// body used by the HTTP API.
func writeHandshakeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(apperr.Body(err))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Stats is a point-in-time view of the server used by health checks.
type Stats struct {
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
	Uptime      string `json:"uptime"`
}

// Stats returns the current connection and user counts and the uptime.
func (s *Server) Stats() Stats {
	st := Stats{
		Connections: s.registry.Count(),
		Users:       s.registry.Users(),
	}
	if s.started.Load() {
		st.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	return st
}

// startEventLoop runs the epoll wait loop. For each batch of ready
// connections, it dispatches each to a worker goroutine (bounded by the
// worker pool semaphore) that reads and processes the WebSocket frame.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				// EINTR is expected during signal handling.
				if isEINTR(err) {
					continue
				}
				log.Printf("ws: epoll wait error: %v", err)
				continue
			}
		}

		for _, conn := range conns {
			conn := conn

			// Acquire a worker slot (blocks if pool is full).
			s.workerPool <- struct{}{}

			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
				s.epoll.Rearm(conn)
			}()
		}
	}
}

// handleConn reads a single WebSocket frame from a ready connection using
// wsutil.NextReader so that control frames (ping, pong) are handled without
// blocking on a data frame that may never arrive. If the read fails
// (connection closed, protocol error, etc.) the connection is removed.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.registry.GetByConn(netConn)
	if c == nil {
		return
	}

	// Guard against duplicate dispatch from level-triggered epoll.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A read timeout means no data was available (stale epoll dispatch).
		// The heartbeat handles dead connections.
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}

	_ = netConn.SetReadDeadline(time.Time{})

	// Any frame proves the connection is alive.
	c.Touch()

	if header.OpCode.IsControl() {
		// Control payloads are at most 125 bytes and must be consumed to keep
		// the stream aligned on the next frame.
		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			s.RemoveConnection(c)
			return
		}
		switch header.OpCode {
		case ws.OpClose:
			s.RemoveConnection(c)
		case ws.OpPing:
			c.writeMu.Lock()
			err := ws.WriteFrame(c.Conn, ws.NewPongFrame(payload))
			c.writeMu.Unlock()
			if err != nil {
				s.RemoveConnection(c)
			}
		}
		return
	}

	if header.Length > MaxFrameBytes {
		log.Printf("ws: frame too large conn=%s len=%d", c.ID, header.Length)
		s.RemoveConnection(c)
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}

	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// RemoveConnection removes a connection from epoll and the registry and
// closes the underlying network connection. It is exported so that the
// heartbeat monitor can evict dead connections. Removing an already removed
// connection is a no-op.
func (s *Server) RemoveConnection(c *Connection) {
	if s.epoll != nil {
		_ = s.epoll.Remove(c.Conn)
	}

	removed, last := s.registry.Remove(c.ID)
	if removed == nil {
		return
	}

	metrics.ConnectionsTotal.Dec()
	if last {
		metrics.OnlineUsers.Dec()
	}

	if s.onDisconnect != nil {
		s.onDisconnect(c, last)
	}

	log.Printf("ws: connection closed user=%s conn=%s (total=%d)", c.UserID, c.ID, s.registry.Count())
}

// SendToUser writes data to every open connection of userID on this node and
// returns how many connections received it.
func (s *Server) SendToUser(userID string, data []byte) int {
	return s.registry.SendToUser(userID, data)
}

// UserConnections returns how many connections userID holds on this node.
func (s *Server) UserConnections(userID string) int {
	return s.registry.UserConnections(userID)
}

// Registry returns the connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Shutdown signals the event loop to exit, closes all active connections
// (running the disconnect callback for each) and cleans up the epoll
// instance. The HTTP listener is owned by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		log.Println("ws: shutting down server...")
		close(s.done)

		for _, c := range s.registry.All() {
			if ctx.Err() != nil {
				break
			}
			s.RemoveConnection(c)
		}

		if s.epoll != nil {
			_ = s.epoll.Close()
		}
		log.Printf("ws: server stopped, all connections closed")
	})
	return ctx.Err()
}

func (s *Server) isStopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// isEINTR checks if the error is a syscall interrupted error (EINTR),
// which is expected during signal handling and should be retried.
func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "interrupted system call" ||
		err.Error() == "errno 4"
}
