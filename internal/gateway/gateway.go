// Package gateway binds the websocket server to the chat service. It routes
// chat socket events into chat lanes, bridges per-user NATS inbox subjects to
// local sockets, and keeps presence current in Redis.
package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/artxchange/skillswap/internal/apperr"
	"github.com/artxchange/skillswap/internal/chat"
	"github.com/artxchange/skillswap/internal/metrics"
	"github.com/artxchange/skillswap/internal/protocol"
	"github.com/artxchange/skillswap/internal/ratelimit"
	"github.com/artxchange/skillswap/internal/ws"
)

// presenceTimeout bounds each Redis presence call made from socket callbacks.
const presenceTimeout = 2 * time.Second

// Bus is the inbox side of the message bus. messaging.NATSClient implements it.
type Bus interface {
	Publisher
	SubscribeInbox(userID string, handler func(data []byte)) error
	UnsubscribeInbox(userID string) error
}

// Sockets is the node-local delivery surface. ws.Server implements it.
type Sockets interface {
	SendToUser(userID string, data []byte) int
	UserConnections(userID string) int
}

// Presence records live connections. presence.Store implements it.
type Presence interface {
	Connect(ctx context.Context, userID, connID string) error
	Disconnect(ctx context.Context, userID, connID string) error
	Refresh(ctx context.Context, userID string) error
}

// Chat is the asynchronous half of chat.Service.
type Chat interface {
	SendAsync(from, to, text string, done func(*chat.Message, error)) bool
	MarkSeenAsync(caller, partner string, done func(int64, error)) bool
}

// replier is the part of a ws.Connection handlers answer on.
type replier interface {
	WriteMessage(data []byte) error
}

// Gateway wires socket events to the chat service.
type Gateway struct {
	sockets  Sockets
	chat     Chat
	bus      Bus
	presence Presence
	limiter  ratelimit.Checker

	mu         sync.Mutex
	subscribed map[string]bool // users whose inbox this node listens on
}

// New creates a Gateway. presence may be nil; limiter may be nil to disable
// per-user send limits.
func New(sockets Sockets, chatSvc Chat, bus Bus, presence Presence, limiter ratelimit.Checker) *Gateway {
	if limiter == nil {
		limiter = ratelimit.AllowAll{}
	}
	return &Gateway{
		sockets:    sockets,
		chat:       chatSvc,
		bus:        bus,
		presence:   presence,
		limiter:    limiter,
		subscribed: make(map[string]bool),
	}
}

// Attach registers the chat handlers on d and installs the connection
// lifecycle callbacks on server.
func (g *Gateway) Attach(server *ws.Server, d *ws.MessageDispatcher) {
	d.Register(protocol.TypeChatSend, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ChatSendMsg)
		if !ok {
			return
		}
		g.handleSend(conn.UserID, conn, m)
	})
	d.Register(protocol.TypeChatSeen, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ChatSeenMsg)
		if !ok {
			return
		}
		g.handleSeen(conn.UserID, conn, m)
	})

	server.SetOnConnect(func(c *ws.Connection, _ bool) {
		g.Connected(c.UserID, c.ID)
	})
	server.SetOnDisconnect(func(c *ws.Connection, _ bool) {
		g.Disconnected(c.UserID, c.ID)
	})
	server.SetOnHeartbeat(g.Heartbeat)
}

// Connected records a new socket for userID and makes sure this node listens
// on the user's inbox.
func (g *Gateway) Connected(userID, connID string) {
	if g.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		if err := g.presence.Connect(ctx, userID, connID); err != nil {
			log.Printf("[gateway] presence connect user=%s conn=%s: %v", userID, connID, err)
		}
		cancel()
	}
	g.reconcile(userID)
}

// Disconnected drops a socket of userID and stops listening on the inbox when
// it was the user's last one on this node.
func (g *Gateway) Disconnected(userID, connID string) {
	if g.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		if err := g.presence.Disconnect(ctx, userID, connID); err != nil {
			log.Printf("[gateway] presence disconnect user=%s conn=%s: %v", userID, connID, err)
		}
		cancel()
	}
	g.reconcile(userID)
}

// Heartbeat extends the presence of every user still connected.
func (g *Gateway) Heartbeat(userIDs []string) {
	if g.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	for _, id := range userIDs {
		if err := g.presence.Refresh(ctx, id); err != nil {
			log.Printf("[gateway] presence refresh user=%s: %v", id, err)
		}
	}
}

// reconcile brings the inbox subscription for userID in line with the number
// of local sockets. Connect and disconnect callbacks for the same user can
// race; deciding from the registry under one lock makes the last caller win
// with the correct answer.
func (g *Gateway) reconcile(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	want := g.sockets.UserConnections(userID) > 0
	have := g.subscribed[userID]

	switch {
	case want && !have:
		err := g.bus.SubscribeInbox(userID, func(data []byte) {
			g.deliver(userID, data)
		})
		if err != nil {
			log.Printf("[gateway] subscribe inbox user=%s: %v", userID, err)
			return
		}
		g.subscribed[userID] = true
	case !want && have:
		if err := g.bus.UnsubscribeInbox(userID); err != nil {
			log.Printf("[gateway] unsubscribe inbox user=%s: %v", userID, err)
		}
		delete(g.subscribed, userID)
	}
}

// Subscribed reports whether this node listens on userID's inbox.
func (g *Gateway) Subscribed(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subscribed[userID]
}

func (g *Gateway) deliver(userID string, data []byte) {
	n := g.sockets.SendToUser(userID, data)
	if n > 0 {
		metrics.MessagesTotal.WithLabelValues("delivered").Add(float64(n))
	}
}

func (g *Gateway) handleSend(userID string, r replier, m protocol.ChatSendMsg) {
	if ok, _ := g.limiter.Allow(context.Background(), userID, ratelimit.RuleChatSend); !ok {
		metrics.RateLimited.WithLabelValues("chat_send").Inc()
		g.chatError(r, protocol.TypeChatSend, protocol.CodeRateLimited, "Too many messages")
		return
	}

	accepted := g.chat.SendAsync(userID, m.To, m.Text, func(_ *chat.Message, err error) {
		if err != nil {
			log.Printf("[gateway] chat:send from=%s to=%s dropped: %v", userID, m.To, err)
			g.replyErr(r, protocol.TypeChatSend, err)
		}
	})
	if !accepted {
		g.chatError(r, protocol.TypeChatSend, protocol.CodeBusy, "Chat is unavailable")
	}
}

func (g *Gateway) handleSeen(userID string, r replier, m protocol.ChatSeenMsg) {
	accepted := g.chat.MarkSeenAsync(userID, m.PartnerID, func(_ int64, err error) {
		if err != nil {
			log.Printf("[gateway] chat:seen user=%s partner=%s dropped: %v", userID, m.PartnerID, err)
			g.replyErr(r, protocol.TypeChatSeen, err)
		}
	})
	if !accepted {
		g.chatError(r, protocol.TypeChatSeen, protocol.CodeBusy, "Chat is unavailable")
	}
}

func (g *Gateway) replyErr(r replier, event string, err error) {
	body := apperr.Body(err)
	code, _ := body["error"].(string)
	msg, _ := body["msg"].(string)
	g.chatError(r, event, code, msg)
}

// chatError acknowledges a dropped socket event. The connection stays open.
func (g *Gateway) chatError(r replier, event, code, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeChatError, protocol.ChatErrorMsg{
		Event:   event,
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Printf("[gateway] build chat:error: %v", err)
		return
	}
	if err := r.WriteMessage(data); err != nil {
		log.Printf("[gateway] send chat:error: %v", err)
	}
}
