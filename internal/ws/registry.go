package ws

import (
	"net"
	"sync"
)

// Registry is a thread-safe index of open connections by connection ID, by
// net.Conn (for epoll readiness lookups) and by user. A user may hold any
// number of connections; a message for the user goes to all of them.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byConn map[net.Conn]*Connection
	byUser map[string]map[string]*Connection
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Connection),
		byConn: make(map[net.Conn]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Add registers a connection. It reports whether this is the user's first
// open connection.
func (r *Registry) Add(c *Connection) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[c.ID] = c
	r.byConn[c.Conn] = c

	conns, ok := r.byUser[c.UserID]
	if !ok {
		conns = make(map[string]*Connection)
		r.byUser[c.UserID] = conns
	}
	conns[c.ID] = c
	return len(conns) == 1
}

// Remove unregisters a connection by ID and closes it. It returns the removed
// connection (nil if it was already gone) and whether it was the user's last.
func (r *Registry) Remove(id string) (c *Connection, last bool) {
	r.mu.Lock()
	c, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byConn, c.Conn)
		if conns := r.byUser[c.UserID]; conns != nil {
			delete(conns, id)
			if len(conns) == 0 {
				delete(r.byUser, c.UserID)
				last = true
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	c.Close()
	return c, last
}

// GetByConn returns the connection wrapping netConn, or nil if not found.
func (r *Registry) GetByConn(netConn net.Conn) *Connection {
	r.mu.RLock()
	c := r.byConn[netConn]
	r.mu.RUnlock()
	return c
}

// Count returns the current number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}

// Users returns the number of users with at least one open connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	n := len(r.byUser)
	r.mu.RUnlock()
	return n
}

// UserConnections returns how many connections userID holds.
func (r *Registry) UserConnections(userID string) int {
	r.mu.RLock()
	n := len(r.byUser[userID])
	r.mu.RUnlock()
	return n
}

// SendToUser writes msg to every connection of userID and returns how many
// writes succeeded. The connection set is snapshotted under the read lock and
// written outside it, so a slow client never blocks registration.
func (r *Registry) SendToUser(userID string, msg []byte) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if err := c.WriteMessage(msg); err == nil {
			sent++
		}
	}
	return sent
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}
