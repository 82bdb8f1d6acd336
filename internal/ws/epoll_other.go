//go:build !linux

package ws

import (
	"bufio"
	"net"
	"sync"
)

// Epoll provides a goroutine-per-connection fallback for non-Linux platforms.
// Each connection is wrapped in a peekConn whose monitor goroutine blocks on
// a one-byte Peek, so readiness is detected without consuming frame bytes.
type Epoll struct {
	mu      sync.RWMutex
	conns   map[net.Conn]*peekConn
	readyCh chan net.Conn // channel that receives connections with pending data
	done    chan struct{}
	once    sync.Once
}

// peekConn routes reads through a buffered reader shared with the monitor.
type peekConn struct {
	net.Conn
	r       *bufio.Reader
	rearm   chan struct{}
	removed chan struct{}
	once    sync.Once
}

func (p *peekConn) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// NewEpoll creates a new fallback epoll instance that uses goroutines to
// monitor each connection for incoming data.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns:   make(map[net.Conn]*peekConn),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Wrap returns a connection whose reads go through a peekable buffer. The
// server must register and read the wrapped connection.
func (e *Epoll) Wrap(conn net.Conn) net.Conn {
	return &peekConn{
		Conn:    conn,
		r:       bufio.NewReader(conn),
		rearm:   make(chan struct{}, 1),
		removed: make(chan struct{}),
	}
}

// Add starts monitoring a connection returned by Wrap.
func (e *Epoll) Add(conn net.Conn) error {
	pc, ok := conn.(*peekConn)
	if !ok {
		pc = e.Wrap(conn).(*peekConn)
	}

	e.mu.Lock()
	e.conns[conn] = pc
	e.mu.Unlock()

	go e.monitor(conn, pc)
	return nil
}

// monitor blocks on a one-byte peek until data is available, reports the
// connection as ready and waits for Rearm before peeking again, so the peek
// never races the server's frame read.
func (e *Epoll) monitor(conn net.Conn, pc *peekConn) {
	for {
		_, err := pc.r.Peek(1)

		select {
		case e.readyCh <- conn:
		case <-pc.removed:
			return
		case <-e.done:
			return
		}
		if err != nil {
			// The server's read will observe the same error and remove us.
			return
		}

		select {
		case <-pc.rearm:
		case <-pc.removed:
			return
		case <-e.done:
			return
		}
	}
}

// Rearm lets the monitor look for the next frame after the server has
// finished reading from conn.
func (e *Epoll) Rearm(conn net.Conn) {
	e.mu.RLock()
	pc := e.conns[conn]
	e.mu.RUnlock()
	if pc == nil {
		return
	}
	select {
	case pc.rearm <- struct{}{}:
	default:
	}
}

// Remove unregisters a connection from the fallback epoll.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	pc := e.conns[conn]
	delete(e.conns, conn)
	e.mu.Unlock()

	if pc != nil {
		pc.once.Do(func() { close(pc.removed) })
	}
	return nil
}

// Wait blocks until at least one connection is ready for reading. It
// collects all currently ready connections from the channel and returns them.
func (e *Epoll) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}

	// Drain any additional ready connections without blocking.
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close shuts down the fallback epoll instance.
func (e *Epoll) Close() error {
	e.once.Do(func() { close(e.done) })
	e.mu.Lock()
	e.conns = make(map[net.Conn]*peekConn)
	e.mu.Unlock()
	return nil
}
