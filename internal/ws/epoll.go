//go:build linux

package ws

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	// waitTimeoutMillis bounds one epoll_wait so the event loop can observe
	// shutdown while every socket is idle.
	waitTimeoutMillis = 1000

	// maxEventsPerWait caps how many ready sockets one Wait hands back.
	maxEventsPerWait = 128

	// readinessMask is level-triggered: a socket with unread frames keeps
	// reporting until the worker drains it, so nothing is lost between Waits.
	readinessMask = unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLRDHUP
)

var errNoFD = errors.New("ws: connection exposes no file descriptor")

// Epoll multiplexes every upgraded socket over one epoll instance. The event
// loop calls Wait; a worker reads each returned connection.
type Epoll struct {
	fd     int
	events []unix.EpollEvent // reused by Wait; only the event loop touches it

	mu    sync.RWMutex
	byFD  map[int]net.Conn
	close sync.Once
}

// NewEpoll opens an epoll instance with close-on-exec set.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("ws: epoll create: %w", err)
	}
	return &Epoll{
		fd:     fd,
		events: make([]unix.EpollEvent, maxEventsPerWait),
		byFD:   make(map[int]net.Conn),
	}, nil
}

// Wrap returns conn unchanged. The kernel watches the raw socket.
func (e *Epoll) Wrap(conn net.Conn) net.Conn { return conn }

// Rearm is a no-op under level-triggered readiness.
func (e *Epoll) Rearm(net.Conn) {}

// Add starts watching conn for readable data and peer hang-up.
func (e *Epoll) Add(conn net.Conn) error {
	fd, err := socketFD(conn)
	if err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: readinessMask, Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("ws: epoll add fd=%d: %w", fd, err)
	}

	e.mu.Lock()
	e.byFD[fd] = conn
	e.mu.Unlock()
	return nil
}

// Remove stops watching conn. The map entry is dropped even if the kernel
// already forgot the descriptor because the socket was closed first.
func (e *Epoll) Remove(conn net.Conn) error {
	fd, err := socketFD(conn)
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.byFD, fd)
	e.mu.Unlock()

	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("ws: epoll remove fd=%d: %w", fd, err)
	}
	return nil
}

// Wait returns the connections that are ready to read. It returns an empty
// slice when waitTimeoutMillis passes quietly. Descriptors removed while the
// syscall was in flight are skipped. EINTR is returned unwrapped so the
// caller can retry.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, waitTimeoutMillis)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]net.Conn, 0, n)
	e.mu.RLock()
	for _, ev := range e.events[:n] {
		if conn, ok := e.byFD[int(ev.Fd)]; ok {
			ready = append(ready, conn)
		}
	}
	e.mu.RUnlock()
	return ready, nil
}

// Close releases the epoll descriptor. Later calls are no-ops.
func (e *Epoll) Close() error {
	var err error
	e.close.Do(func() {
		e.mu.Lock()
		e.byFD = make(map[int]net.Conn)
		e.mu.Unlock()
		err = unix.Close(e.fd)
	})
	return err
}

// socketFD reads the descriptor through SyscallConn. net.Conn.File would dup
// it, and epoll must see the descriptor the runtime actually reads from.
func socketFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, errNoFD
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("ws: syscall conn: %w", err)
	}

	fd := -1
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return -1, fmt.Errorf("ws: read fd: %w", err)
	}
	return fd, nil
}
