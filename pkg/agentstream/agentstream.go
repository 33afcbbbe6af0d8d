// Package agentstream defines the injected collaborator contract
// between the gateway core and an external LLM agent: a lazy, finite,
// single-pass sequence of typed events delivered over a channel.
//
// The sum-type-over-interface shape is grounded on
// pkg/agent/llm_client.go's Chunk interface (private marker method
// implemented by TextChunk/ThinkingChunk/ToolCallChunk/...); the
// goroutine-plus-buffered-channel delivery wiring is grounded on
// pkg/agent/llm_grpc.go's Generate implementation. Unlike that file,
// this package does not wrap a grpc.ClientConn or generated protobuf
// stubs — see SPEC_FULL.md's §6.2 note for why that wire layer was not
// carried forward.
package agentstream

import "context"

// EventType discriminates the concrete Event implementations.
type EventType string

const (
	EventStreamStart EventType = "stream_start"
	EventStreamToken EventType = "stream_token"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventStreamEnd   EventType = "stream_end"
	EventError       EventType = "error"
)

// Event is implemented by every concrete agent-stream record. The
// private method prevents external packages from inventing new event
// types that this core cannot classify.
type Event interface {
	eventType() EventType
}

// StreamStart marks the beginning of the agent's response.
type StreamStart struct{}

func (StreamStart) eventType() EventType { return EventStreamStart }

// StreamToken carries one raw token fragment.
type StreamToken struct {
	Chunk string
}

func (StreamToken) eventType() EventType { return EventStreamToken }

// ToolCall records the start of a tool invocation.
type ToolCall struct {
	ToolName string
	Args     string // JSON-encoded
}

func (ToolCall) eventType() EventType { return EventToolCall }

// ToolResult records the outcome of the most recent tool invocation.
type ToolResult struct {
	Result string
	Node   string
}

func (ToolResult) eventType() EventType { return EventToolResult }

// StreamEnd marks successful completion of the agent's response.
type StreamEnd struct{}

func (StreamEnd) eventType() EventType { return EventStreamEnd }

// ErrorEvent marks a terminal agent-side failure.
type ErrorEvent struct {
	Error string
}

func (ErrorEvent) eventType() EventType { return EventError }

// Type returns ev's discriminator, for callers outside this package
// that need to switch on event kind (e.g. pkg/orchestrator).
func Type(ev Event) EventType {
	return ev.eventType()
}

// StreamRequest carries the inputs needed to start an agent turn.
type StreamRequest struct {
	ConversationID string
	UserMessage    string
	AgentID        string
	UserID         string
	Images         []string
	Metadata       map[string]any
}

// Streamer is the injected collaborator: given a request, it returns a
// channel of Events representing one agent turn. The channel is closed
// when the sequence ends (whether via StreamEnd, ErrorEvent, or ctx
// cancellation) — callers must range over it to completion or until ctx
// is done, and must not assume a final StreamEnd/ErrorEvent is always
// delivered if ctx was cancelled first.
type Streamer interface {
	Stream(ctx context.Context, req StreamRequest) (<-chan Event, error)
}
