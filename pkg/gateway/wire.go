package gateway

import "github.com/coder/websocket"

// clientFrame is the single-struct-with-optional-fields shape every
// inbound frame unmarshals into, matching how
// _examples/codeready-toolchain-tarsy/pkg/events/manager.go's dispatch
// reads msg.Action/msg.Channel/msg.LastEventID off one decoded struct
// rather than a discriminated union of Go types.
type clientFrame struct {
	Type string `json:"type"`

	// authorize
	Token string `json:"token"`

	// chat_message
	Content        string         `json:"content"`
	AgentID        string         `json:"agent_id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	Metadata       map[string]any `json:"metadata"`
	Images         []string       `json:"images"`

	// interrupt_stream
	TurnID string `json:"turn_id"`
}

const (
	frameAuthorize       = "authorize"
	framePong            = "pong"
	frameChatMessage     = "chat_message"
	frameInterruptStream = "interrupt_stream"
)

// Error codes carried in the error frame's "code" field (distinct from
// the WebSocket close codes 4000/4001).
const (
	codeAuthRequired       = 4001
	codeInterrupted        = 4003
	codeNothingToInterrupt = 4004
)

// Close codes.
const (
	closePingTimeout websocket.StatusCode = 4000
	closeAuthFailure websocket.StatusCode = 4001
)

func authorizeSuccessFrame(connectionID string) map[string]any {
	return map[string]any{"type": "authorize_success", "connection_id": connectionID}
}

func authorizeErrorFrame(reason string) map[string]any {
	return map[string]any{"type": "authorize_error", "error": reason}
}

func pingFrame() map[string]any {
	return map[string]any{"type": "ping"}
}

func errorFrame(message string, code int) map[string]any {
	f := map[string]any{"type": "error", "error": message}
	if code != 0 {
		f["code"] = code
	}
	return f
}

// enrichTurnEvent stamps connection_id/user_id onto a stream_start event
// before it's forwarded: the orchestrator's event builder only knows
// type+turn_id, so the socket-facing fields the wire format requires for
// stream_start (§6.1) are added at the gateway boundary instead of
// reaching back into the already-turn-scoped orchestrator event shape.
func enrichTurnEvent(ev map[string]any, connectionID, userID string) map[string]any {
	if t, _ := ev["type"].(string); t == "stream_start" {
		ev["connection_id"] = connectionID
		ev["user_id"] = userID
	}
	return ev
}
