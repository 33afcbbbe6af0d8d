package orchestrator

import (
	"context"
	"time"

	"github.com/arcbound/turngate/pkg/agentstream"
	"github.com/arcbound/turngate/pkg/turn"
)

// toolFrame tracks one in-flight tool call's name and start time, pushed
// on tool_call and popped on the matching tool_result. A stack (not a
// single slot) tolerates an agent that nests tool calls.
type toolFrame struct {
	name  string
	start time.Time
}

// runProducer is the Event Handler's Producer half: it drains the agent
// stream, turns stream_start/stream_end/error into client-visible events,
// routes stream_token payloads to the token queue for the Consumer, and
// logs tool_call/tool_result pairs with their elapsed duration. It never
// runs cleanup itself — that is the job of whoever is reading the event
// queue back out (StreamEvents) or of InterruptTurn, both of which run on
// a different goroutine than this one.
func (p *Processor) runProducer(ctx context.Context, t *turn.Turn, stream <-chan agentstream.Event) {
	var tools []toolFrame

	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				p.finishTurn(t, "error", "agent stream closed before a terminal event")
				return
			}

			switch e := ev.(type) {
			case agentstream.StreamStart:
				t.SetStatus(turn.StatusProcessing)
				p.enqueueEvent(t, buildEvent(t.ID, "stream_start", nil))

			case agentstream.StreamToken:
				p.enqueueToken(t, turn.TokenItem{Chunk: e.Chunk})

			case agentstream.ToolCall:
				tools = append(tools, toolFrame{name: e.ToolName, start: time.Now()})
				p.logger.Info("tool call started",
					"session_id", p.connectionID, "turn_id", t.ID,
					"tool_name", e.ToolName, "args", e.Args)

			case agentstream.ToolResult:
				name, duration := p.popTool(&tools)
				status := p.classify(e.Result)
				p.logger.Info("tool call finished",
					"session_id", p.connectionID, "turn_id", t.ID,
					"tool_name", name, "node", e.Node, "status", status,
					"duration_ms", duration.Milliseconds())

			case agentstream.StreamEnd:
				p.finishTurn(t, "stream_end", "")
				return

			case agentstream.ErrorEvent:
				p.finishTurn(t, "error", e.Error)
				return
			}

		case <-ctx.Done():
			// Interrupted: InterruptTurn owns closing the token stream,
			// draining queues, and delivering the synthetic terminal event.
			return
		}
	}
}

func (p *Processor) popTool(tools *[]toolFrame) (string, time.Duration) {
	if len(*tools) == 0 {
		return "", 0
	}
	last := (*tools)[len(*tools)-1]
	*tools = (*tools)[:len(*tools)-1]
	return last.name, time.Since(last.start)
}

// finishTurn runs when the agent stream ends on its own, successfully or
// not: it closes the token stream, waits (bounded) for the Consumer to
// flush its residual sentence, and, unless the turn is already terminal
// (e.g. interrupted), applies the final status and enqueues the matching
// terminal event.
func (p *Processor) finishTurn(t *turn.Turn, kind, message string) {
	t.CloseTokenStream()
	p.tasks.awaitConsumer(t.ID, p.taskAwaitTimeout)

	switch kind {
	case "stream_end":
		if t.SetStatus(turn.StatusCompleted) {
			p.enqueueEvent(t, buildEvent(t.ID, "stream_end", map[string]any{"status": "completed"}))
		}
	case "error":
		if t.SetStatus(turn.StatusFailed) {
			t.SetError(message)
			p.enqueueEvent(t, buildEvent(t.ID, "error", map[string]any{"error": message}))
		}
	}
}
