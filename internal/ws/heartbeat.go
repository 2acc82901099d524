package ws

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // max time to wait for activity after ping (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// StartHeartbeat launches a background goroutine that pings every connection
// on each tick and evicts those with no successful read within
// Interval + Timeout. It returns immediately; the goroutine exits when the
// server's done channel closes.
func StartHeartbeat(server *Server, config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case <-ticker.C:
				checkConnections(server, config)
			}
		}
	}()
}

// checkConnections walks the active connections once. Anything silent past
// the deadline is removed; everyone else gets a protocol-level ping frame,
// which browsers answer automatically with a pong.
func checkConnections(server *Server, config HeartbeatConfig) {
	deadline := config.Interval + config.Timeout
	now := time.Now()

	for _, c := range server.Connections().All() {
		if now.Sub(c.LastPing) > deadline {
			log.Printf("ws: heartbeat timeout conn=%s last_activity=%s ago",
				c.ID, now.Sub(c.LastPing).Round(time.Second))
			server.RemoveConnection(c)
			continue
		}

		// Send a WebSocket protocol-level ping frame. The write mutex on the
		// connection serializes this with any concurrent application writes.
		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed conn=%s: %v", c.ID, err)
			server.RemoveConnection(c)
		}
	}
}

// WritePing sends a WebSocket ping frame (opcode 0x9) on the connection,
// serialized with application writes by the write mutex.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}
