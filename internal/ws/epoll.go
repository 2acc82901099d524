//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Epoll multiplexes all client sockets through one kernel epoll instance, so
// idle connections cost a map entry instead of a parked goroutine. Wait hands
// ready connections to the server's worker pool.
type Epoll struct {
	fd          int               // epoll file descriptor
	connections map[int]net.Conn  // fd -> net.Conn mapping
	mu          sync.RWMutex      // protects connections map
	events      []unix.EpollEvent // reusable event buffer for Wait
}

// NewEpoll creates the epoll instance via epoll_create1.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:          fd,
		connections: make(map[int]net.Conn),
		events:      make([]unix.EpollEvent, 128),
	}, nil
}

// Add puts a connection's file descriptor on the epoll interest list,
// watching for readable data (EPOLLIN) and peer hangup (EPOLLHUP).
func (e *Epoll) Add(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(fd),
	}); err != nil {
		return err
	}

	e.mu.Lock()
	e.connections[fd] = conn
	e.mu.Unlock()
	return nil
}

// Remove takes a connection's file descriptor off the interest list and
// drops it from the internal map.
func (e *Epoll) Remove(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.connections, fd)
	e.mu.Unlock()
	return nil
}

// Wait blocks in epoll_wait until at least one registered connection is
// readable and returns the corresponding net.Conns. A descriptor that was
// removed between the kernel notification and the map lookup is skipped.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, -1)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn, ok := e.connections[int(e.events[i].Fd)]
		if ok {
			conns = append(conns, conn)
		}
	}
	e.mu.RUnlock()
	return conns, nil
}

// Close closes the epoll file descriptor.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connections = nil
	return unix.Close(e.fd)
}

// socketFD extracts the file descriptor from a net.Conn through the
// SyscallConn interface. Unlike File(), this does not dup the descriptor,
// so the fd stays the one epoll knows about.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	var fd int
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
