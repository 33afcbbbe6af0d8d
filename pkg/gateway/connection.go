// Package gateway implements the WebSocket-facing half of the system:
// Connection State, the authorize/pong/chat_message/interrupt_stream
// frame handlers, the heartbeat monitor, and the WebSocket Manager that
// ties them together. It is grounded on
// _examples/codeready-toolchain-tarsy/pkg/events/manager.go's
// register/unregister/broadcast shape and pkg/api/handler_ws.go's
// coder/websocket + echo/v5 upgrade, retargeted from a pub/sub relay to
// a per-connection conversational turn driver.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/arcbound/turngate/pkg/orchestrator"
)

// Connection is the per-socket Connection State (component G): one
// websocket, its authentication flag, heartbeat bookkeeping, and the
// MessageProcessor instantiated for it once authorized.
//
// ctx/cancel and the processor pointer are read by the read loop, the
// handlers, and the heartbeat goroutine; all are serialized on this
// connection (see spec.md §5's "per-connection state owned exclusively
// by handlers running serialized on that connection"), so only the
// heartbeat timestamps — touched by both the read loop (pong) and the
// heartbeat goroutine (ping) — need their own mutex.
type Connection struct {
	ID   string
	Conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	authenticated bool
	userID        string
	processor     *orchestrator.Processor
	frameErrors   int

	heartbeatMu   sync.Mutex
	lastPingTime  time.Time
	lastPongTime  time.Time
}

func newConnection(ctx context.Context, id string, conn *websocket.Conn) *Connection {
	cctx, cancel := context.WithCancel(ctx)
	return &Connection{
		ID:     id,
		Conn:   conn,
		ctx:    cctx,
		cancel: cancel,
	}
}

// Authenticated reports whether this connection has completed authorize.
func (c *Connection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// authorize flips the connection into the authenticated state and
// attaches its MessageProcessor. Returns false if already authorized —
// a second authorize frame is a no-op, not a re-authentication.
func (c *Connection) authorize(userID string, p *orchestrator.Processor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authenticated {
		return false
	}
	c.authenticated = true
	c.userID = userID
	c.processor = p
	return true
}

// UserID returns the synthetic user id assigned at authorize time, or
// "" if not yet authenticated.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Processor returns this connection's MessageProcessor, or nil if the
// connection hasn't authorized yet.
func (c *Connection) Processor() *orchestrator.Processor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processor
}

// recordPing/recordPong/pingPongGap back the heartbeat monitor's
// deadline check; they're touched from two different goroutines (the
// read loop and heartbeatLoop) so get their own lock rather than sharing
// the connection-state mutex above.
func (c *Connection) recordPing(at time.Time) {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	c.lastPingTime = at
}

func (c *Connection) recordPong(at time.Time) {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	c.lastPongTime = at
}

// pongOverdue reports whether the most recent ping→pong round trip has
// exceeded pongTimeout, or no pong was ever received after a ping.
func (c *Connection) pongOverdue(pongTimeout time.Duration) bool {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	if c.lastPingTime.IsZero() {
		return false // heartbeat hasn't sent a ping yet
	}
	if c.lastPongTime.Before(c.lastPingTime) {
		return time.Since(c.lastPingTime) > pongTimeout
	}
	return false
}

// noteFrameError increments the consecutive-malformed-frame counter and
// reports whether the connection has exceeded its tolerance.
func (c *Connection) noteFrameError(max int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameErrors++
	return c.frameErrors > max
}

func (c *Connection) resetFrameErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameErrors = 0
}
