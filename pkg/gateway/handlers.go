package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/arcbound/turngate/pkg/orchestrator"
)

// handleAuthorize validates frame.Token, and on success instantiates
// this connection's MessageProcessor and replies authorize_success.
// Returns false if the connection should stop reading (auth failure
// closes the socket with 4001 per §6.1/§7).
func (m *Manager) handleAuthorize(c *Connection, frame *clientFrame) bool {
	if c.Authenticated() {
		m.send(c, authorizeSuccessFrame(c.ID))
		return true
	}

	userID, ok := m.authenticator.Authenticate(frame.Token)
	if !ok {
		m.send(c, authorizeErrorFrame("invalid token"))
		m.closeConnection(c, closeAuthFailure, "Authentication failed")
		return false
	}

	proc := orchestrator.New(orchestrator.Options{
		ConnectionID:         c.ID,
		UserID:               userID,
		QueueSize:            m.cfg.QueueSize,
		ReasoningStartTag:    m.cfg.ReasoningStartTag,
		ReasoningEndTag:      m.cfg.ReasoningEndTag,
		TTSRulesPath:         m.cfg.TTSRulesPath,
		InterruptWaitTimeout: m.cfg.InterruptWaitTimeout,
		Logger:               m.logger,
	})
	c.authorize(userID, proc)
	c.resetFrameErrors()
	m.send(c, authorizeSuccessFrame(c.ID))
	return true
}

// handlePong records the most recent pong for the heartbeat monitor's
// deadline check.
func (m *Manager) handlePong(c *Connection) {
	c.recordPong(time.Now())
}

// handleChatMessage rejects unauthenticated callers, validates the
// required fields, starts a new turn against the connection's
// MessageProcessor, and spawns the forwarder task that pumps the turn's
// events back to the socket.
func (m *Manager) handleChatMessage(c *Connection, frame *clientFrame) {
	if !c.Authenticated() {
		m.send(c, errorFrame("Authentication required", codeAuthRequired))
		return
	}
	if frame.AgentID == "" || frame.UserID == "" || frame.Content == "" {
		m.send(c, errorFrame("chat_message requires content, agent_id and user_id", 0))
		return
	}

	conversationID := frame.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	metadata := frame.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["agent_id"] = frame.AgentID
	if len(frame.Images) > 0 {
		metadata["images"] = frame.Images
	}

	p := c.Processor()
	t, err := p.StartTurn(c.ctx, conversationID, frame.Content, metadata, m.streamer)
	if err != nil {
		m.send(c, errorFrame(err.Error(), 0))
		return
	}

	go m.forwardTurnEvents(c, t.ID)
}

// handleInterruptStream interrupts the named turn, or every active turn
// on this connection if no turn_id is given, and replies with the §7
// error-frame code distinguishing "interrupted" from "nothing to
// interrupt" — it is a reply code, not a close code.
func (m *Manager) handleInterruptStream(c *Connection, frame *clientFrame) {
	if !c.Authenticated() {
		m.send(c, errorFrame("Authentication required", codeAuthRequired))
		return
	}
	p := c.Processor()

	if frame.TurnID != "" {
		if p.InterruptTurn(frame.TurnID, "client requested interrupt") {
			m.send(c, errorFrame("interrupted", codeInterrupted))
		} else {
			m.send(c, errorFrame("nothing to interrupt", codeNothingToInterrupt))
		}
		return
	}

	if n := p.InterruptAllActiveTurns("client requested interrupt"); n > 0 {
		m.send(c, errorFrame("interrupted", codeInterrupted))
	} else {
		m.send(c, errorFrame("nothing to interrupt", codeNothingToInterrupt))
	}
}
