package gateway

import "time"

// heartbeatLoop is the Heartbeat Monitor (component I): every
// ping_interval it sends a ping and records the send time; after
// sleeping, if no pong arrived since that ping within pong_timeout, the
// connection is considered dead and closed with code 4000.
//
// Runs for the lifetime of the connection; exits when c.ctx is
// cancelled (by unregister when the read loop returns, or by
// closeConnection).
func (m *Manager) heartbeatLoop(c *Connection) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.recordPing(time.Now())
			m.send(c, pingFrame())

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(m.cfg.PongTimeout):
			}

			if c.pongOverdue(m.cfg.PongTimeout) {
				m.closeConnection(c, closePingTimeout, "Ping timeout")
				return
			}
		}
	}
}
