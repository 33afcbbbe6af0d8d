package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/arcbound/turngate/pkg/agentstream"
	"github.com/arcbound/turngate/pkg/config"
)

// writeTimeout bounds a single socket write, mirroring
// events.ConnectionManager's sendRaw deadline so one stalled client
// can't hang a forwarder or heartbeat goroutine.
const writeTimeout = 5 * time.Second

// Authenticator validates an authorize frame's token and resolves it to
// a user id. The shipped default (see defaultAuthenticator) accepts any
// non-empty token.
type Authenticator interface {
	Authenticate(token string) (userID string, ok bool)
}

type defaultAuthenticator struct{}

func (defaultAuthenticator) Authenticate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	return "user-" + token, true
}

// Manager is the process-wide WebSocket Manager (component J): it
// tracks every live connection, runs each connection's read loop and
// heartbeat, and owns the forward_turn_events pump for every turn
// started on a connection. Grounded on
// _examples/codeready-toolchain-tarsy/pkg/events/manager.go's
// ConnectionManager, retargeted from channel pub/sub to one
// MessageProcessor per connection.
type Manager struct {
	cfg            *config.GatewayConfig
	streamer       agentstream.Streamer
	authenticator  Authenticator
	logger         *slog.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewManager builds a Manager. streamer is the injected agent service
// shared by every connection's MessageProcessor; auth may be nil to use
// the default accept-any-non-empty-token authenticator.
func NewManager(cfg *config.GatewayConfig, streamer agentstream.Streamer, auth Authenticator, logger *slog.Logger) *Manager {
	if auth == nil {
		auth = defaultAuthenticator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:           cfg,
		streamer:      streamer,
		authenticator: auth,
		logger:        logger,
		connections:   make(map[string]*Connection),
	}
}

// ActiveConnections returns the number of currently registered connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// HandleConnection accepts a connection's lifecycle end to end: register,
// spawn the heartbeat, run the read loop until the socket closes or the
// inactivity timeout fires, then unregister and tear down every turn the
// connection's processor still had in flight. Blocks until the
// connection closes; called from the HTTP upgrade handler.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	id := uuid.New().String()
	c := newConnection(parentCtx, id, conn)

	m.register(c)
	defer m.unregister(c)

	conn.SetReadLimit(1 << 20)

	go m.heartbeatLoop(c)

	for {
		readCtx, cancel := context.WithTimeout(c.ctx, m.cfg.InactivityTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if m.tooManyFrameErrors(c) {
				return
			}
			m.send(c, errorFrame("invalid JSON frame", 0))
			// Throttle a client sending rapid malformed frames instead of
			// spinning the read loop as fast as it can produce garbage.
			time.Sleep(m.cfg.ErrorBackoff)
			continue
		}
		c.resetFrameErrors()

		if !m.dispatch(c, &frame) {
			return
		}
	}
}

// dispatch routes one decoded frame to its handler. Returns false if the
// connection should stop reading (auth failure, which also closes the
// socket itself).
func (m *Manager) dispatch(c *Connection, frame *clientFrame) bool {
	switch frame.Type {
	case "":
		m.send(c, errorFrame("missing frame type", 0))
		return true
	case frameAuthorize:
		return m.handleAuthorize(c, frame)
	case framePong:
		m.handlePong(c)
		return true
	case frameChatMessage:
		m.handleChatMessage(c, frame)
		return true
	case frameInterruptStream:
		m.handleInterruptStream(c, frame)
		return true
	default:
		m.send(c, errorFrame("unsupported frame type: "+frame.Type, 0))
		return true
	}
}

func (m *Manager) tooManyFrameErrors(c *Connection) bool {
	return c.noteFrameError(m.cfg.MaxFrameErrors)
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	if p := c.Processor(); p != nil {
		p.InterruptAllActiveTurns("connection closed")
	}
	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// closeConnection closes c's socket with the given status/reason and
// unregisters it; used for the auth-failure and ping-timeout paths that
// terminate the connection outright (spec §6.1/§7 close codes 4000/4001).
func (m *Manager) closeConnection(c *Connection, status websocket.StatusCode, reason string) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	if p := c.Processor(); p != nil {
		p.InterruptAllActiveTurns(reason)
	}
	c.cancel()
	_ = c.Conn.Close(status, reason)
}

// send marshals v and writes it to c, logging (not propagating) any
// failure — a slow or dead client never takes down the handler calling
// it, per §7's downstream-send-failure policy.
func (m *Manager) send(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("failed to marshal frame", "connection_id", c.ID, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := c.Conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		m.logger.Warn("failed to write frame", "connection_id", c.ID, "error", err)
	}
}

// BroadcastMessage writes v to every currently authenticated connection.
// Connection pointers are snapshotted under the read lock and released
// before sending, so a slow client's write doesn't stall register/
// unregister the way events.ConnectionManager.Broadcast avoids it.
func (m *Manager) BroadcastMessage(v any) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if c.Authenticated() {
			m.send(c, v)
		}
	}
}

// forwardTurnEvents is the transient forwarder task (§5): it pumps
// turnID's event queue to the socket until a terminal event has been
// forwarded, enriching stream_start with connection/user context that
// the orchestrator's turn-scoped event builder doesn't carry.
func (m *Manager) forwardTurnEvents(c *Connection, turnID string) {
	p := c.Processor()
	if p == nil {
		return
	}
	events, err := p.StreamEvents(c.ctx, turnID)
	if err != nil {
		m.logger.Warn("forward_turn_events: stream unavailable", "turn_id", turnID, "error", err)
		return
	}
	for ev := range events {
		m.send(c, enrichTurnEvent(ev, c.ID, c.UserID()))
	}
}
