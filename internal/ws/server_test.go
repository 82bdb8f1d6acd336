package ws

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/artxchange/skillswap/internal/identity"
	"github.com/artxchange/skillswap/internal/protocol"
	"github.com/artxchange/skillswap/internal/ratelimit"
)

type denyAll struct{}

func (denyAll) Allow(context.Context, string, ratelimit.Rule) (bool, error) { return false, nil }

func testServerConfig() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.WorkerPoolSize = 4
	cfg.MaxConnections = 10
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func startServer(t *testing.T, cfg ServerConfig, onMessage func(*Connection, []byte)) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(cfg, identity.StaticVerifier{"tok-alice": "alice", "tok-bob": "bob"}, onMessage)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hs := httptest.NewServer(s)
	t.Cleanup(func() {
		hs.Close()
		_ = s.Shutdown(context.Background())
	})
	return s, hs
}

// dial opens a websocket to hs and returns a reader that includes any bytes
// buffered during the handshake.
func dial(t *testing.T, hs *httptest.Server, token string) (net.Conn, io.ReadWriter) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?token=" + token
	conn, br, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var r io.Reader = conn
	if br != nil {
		r = br
	}
	return conn, struct {
		io.Reader
		io.Writer
	}{r, conn}
}

func readJSON(t *testing.T, conn net.Conn, rw io.ReadWriter) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	data, err := wsutil.ReadServerText(rw)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

// ---------- Handshake refusals ----------

func TestServeHTTP_NotStarted(t *testing.T) {
	s := NewServer(testServerConfig(), identity.StaticVerifier{}, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=x", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServeHTTP_RejectsMissingOrBadToken(t *testing.T) {
	s, _ := startServer(t, testServerConfig(), nil)

	for _, target := range []string{"/ws", "/ws?token=forged"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", target, rec.Code)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode body: %v", target, err)
		}
		if body["error"] != "authentication_error" {
			t.Errorf("%s: error = %v, want authentication_error", target, body["error"])
		}
		if body["msg"] != "Authentication required" {
			t.Errorf("%s: msg = %v", target, body["msg"])
		}
	}
	if s.Registry().Count() != 0 {
		t.Error("a refused handshake must not register a connection")
	}
}

func TestServeHTTP_IgnoresCookieToken(t *testing.T) {
	s, _ := startServer(t, testServerConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: "tok-alice"})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if s.Registry().Count() != 0 {
		t.Error("a cookie-only handshake must not register a connection")
	}
}

func TestServeHTTP_RejectsForeignOrigin(t *testing.T) {
	cfg := testServerConfig()
	cfg.AllowedOrigins = []string{"https://app.skillswap.example"}
	s, _ := startServer(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=tok-alice", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: "tok-alice"})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "authorization_error" {
		t.Errorf("error = %v, want authorization_error", body["error"])
	}
	if s.Registry().Count() != 0 {
		t.Error("a foreign-origin handshake must not register a connection")
	}
}

func TestServeHTTP_AllowedOriginUpgrades(t *testing.T) {
	cfg := testServerConfig()
	cfg.AllowedOrigins = []string{"https://app.skillswap.example"}
	s, hs := startServer(t, cfg, nil)

	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(http.Header{
		"Origin": []string{"https://APP.skillswap.example"},
	})}
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?token=tok-alice"
	conn, _, _, err := dialer.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Registry().Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.Registry().Count(); got != 1 {
		t.Errorf("registered connections = %d, want 1", got)
	}
}

func TestServeHTTP_RateLimited(t *testing.T) {
	s, _ := startServer(t, testServerConfig(), nil)
	s.SetLimiter(denyAll{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=tok-alice", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestServeHTTP_AfterShutdown(t *testing.T) {
	s, _ := startServer(t, testServerConfig(), nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=tok-alice", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// ---------- Full round trip ----------

func TestServer_ConnectPingAndDisconnect(t *testing.T) {
	d := NewMessageDispatcher()
	s, hs := startServer(t, testServerConfig(), d.Dispatch)

	var mu sync.Mutex
	var connected, disconnected []bool
	disconnectedCh := make(chan struct{}, 1)
	s.SetOnConnect(func(c *Connection, first bool) {
		mu.Lock()
		connected = append(connected, first)
		mu.Unlock()
	})
	s.SetOnDisconnect(func(c *Connection, last bool) {
		mu.Lock()
		disconnected = append(disconnected, last)
		mu.Unlock()
		disconnectedCh <- struct{}{}
	})

	conn, rw := dial(t, hs, "tok-alice")

	hello := readJSON(t, conn, rw)
	if hello["type"] != protocol.TypeConnected || hello["userId"] != "alice" {
		t.Fatalf("unexpected greeting: %v", hello)
	}
	if id, _ := hello["connectionId"].(string); id == "" {
		t.Error("greeting should carry the connection id")
	}

	if err := wsutil.WriteClientText(conn, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	pong := readJSON(t, conn, rw)
	if pong["type"] != protocol.TypePong {
		t.Fatalf("expected pong, got %v", pong)
	}

	st := s.Stats()
	if st.Connections != 1 || st.Users != 1 {
		t.Errorf("Stats() = %+v, want one connection for one user", st)
	}

	_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
	conn.Close()

	select {
	case <-disconnectedCh:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not notice the disconnect")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(connected) != 1 || !connected[0] {
		t.Errorf("onConnect calls = %v, want [true]", connected)
	}
	if len(disconnected) != 1 || !disconnected[0] {
		t.Errorf("onDisconnect calls = %v, want [true]", disconnected)
	}
	if s.Registry().Count() != 0 {
		t.Errorf("registry still holds %d connections", s.Registry().Count())
	}
}

func TestServer_SendToUserAcrossConnections(t *testing.T) {
	s, hs := startServer(t, testServerConfig(), nil)

	c1, rw1 := dial(t, hs, "tok-bob")
	c2, rw2 := dial(t, hs, "tok-bob")
	readJSON(t, c1, rw1)
	readJSON(t, c2, rw2)

	deadline := time.Now().Add(2 * time.Second)
	for s.Registry().UserConnections("bob") < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if n := s.SendToUser("bob", []byte(`{"type":"chat:new","text":"hey"}`)); n != 2 {
		t.Fatalf("SendToUser = %d, want 2", n)
	}
	for i, pair := range []struct {
		conn net.Conn
		rw   io.ReadWriter
	}{{c1, rw1}, {c2, rw2}} {
		m := readJSON(t, pair.conn, pair.rw)
		if m["text"] != "hey" {
			t.Errorf("connection %d got %v", i, m)
		}
	}
}
