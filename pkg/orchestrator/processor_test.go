package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcbound/turngate/pkg/agentstream"
	"github.com/arcbound/turngate/pkg/turn"
)

func newTestProcessor() *Processor {
	return New(Options{
		ConnectionID:         "conn-1",
		UserID:               "user-1",
		QueueSize:            16,
		TaskAwaitTimeout:     2 * time.Second,
		InterruptWaitTimeout: 10 * time.Millisecond,
	})
}

func collectUntilTerminal(t *testing.T, ch <-chan turn.Event) []turn.Event {
	t.Helper()
	var got []turn.Event
	for ev := range ch {
		got = append(got, ev)
		if ev["type"] == "stream_end" || ev["type"] == "error" {
			break
		}
	}
	// Drain the rest so the forwarder goroutine's defer runs and exits.
	for range ch {
	}
	return got
}

func TestStartTurn_HappyPathStreamsSentencesThenEnds(t *testing.T) {
	p := newTestProcessor()
	streamer := &agentstream.FakeStreamer{Events: []agentstream.Event{
		agentstream.StreamStart{},
		agentstream.StreamToken{Chunk: "Hello there. "},
		agentstream.StreamToken{Chunk: "How are you?"},
		agentstream.StreamEnd{},
	}}

	tr, err := p.StartTurn(context.Background(), "conv-1", "hi", nil, streamer)
	require.NoError(t, err)

	out, err := p.StreamEvents(context.Background(), tr.ID)
	require.NoError(t, err)

	events := collectUntilTerminal(t, out)
	require.NotEmpty(t, events)
	assert.Equal(t, "stream_start", events[0]["type"])
	assert.Equal(t, "stream_end", events[len(events)-1]["type"])

	var chunks []string
	for _, ev := range events {
		if ev["type"] == "tts_ready_chunk" {
			chunks = append(chunks, ev["chunk"].(string))
		}
	}
	assert.Equal(t, []string{"Hello there.", "How are you?"}, chunks)

	assert.Eventually(t, func() bool {
		return tr.Status() == turn.StatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestStartTurn_RejectsSecondActiveTurn(t *testing.T) {
	p := newTestProcessor()
	streamer := &agentstream.FakeStreamer{Events: nil}

	_, err := p.StartTurn(context.Background(), "conv-1", "hi", nil, streamer)
	require.NoError(t, err)

	_, err = p.StartTurn(context.Background(), "conv-1", "another", nil, streamer)
	assert.ErrorIs(t, err, ErrTurnAlreadyActive)
}

// stillTalkingStreamer delivers its scripted events, then blocks until ctx
// is cancelled instead of closing — standing in for an agent that is
// still mid-response when the client interrupts it.
type stillTalkingStreamer struct {
	events []agentstream.Event
}

func (s *stillTalkingStreamer) Stream(ctx context.Context, _ agentstream.StreamRequest) (<-chan agentstream.Event, error) {
	ch := make(chan agentstream.Event)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return ch, nil
}

func TestInterruptTurn_TransitionsOnceAndDeliversTerminalEvent(t *testing.T) {
	p := newTestProcessor()
	streamer := &stillTalkingStreamer{events: []agentstream.Event{
		agentstream.StreamStart{},
		agentstream.StreamToken{Chunk: "partial sentence without terminator"},
	}}

	tr, err := p.StartTurn(context.Background(), "conv-1", "hi", nil, streamer)
	require.NoError(t, err)

	out, err := p.StreamEvents(context.Background(), tr.ID)
	require.NoError(t, err)

	ok := p.InterruptTurn(tr.ID, "user requested stop")
	assert.True(t, ok)

	events := collectUntilTerminal(t, out)
	require.NotEmpty(t, events)
	terminal := events[len(events)-1]
	assert.Equal(t, "stream_end", terminal["type"])
	assert.Equal(t, "interrupted", terminal["status"])
	assert.Equal(t, "user requested stop", terminal["reason"])

	terminalCount := 0
	for _, ev := range events {
		if ev["type"] == "stream_end" {
			terminalCount++
		}
	}
	assert.Equal(t, 1, terminalCount, "exactly one terminal event must be delivered")

	assert.False(t, p.InterruptTurn(tr.ID, "again"), "interrupting an already-terminal turn is a no-op")
}

func TestInterruptTurn_UnknownTurnReturnsFalse(t *testing.T) {
	p := newTestProcessor()
	assert.False(t, p.InterruptTurn("no-such-turn", "reason"))
}

func TestCleanup_IdempotentAndFreesActiveSlot(t *testing.T) {
	p := newTestProcessor()
	streamer := &agentstream.FakeStreamer{Events: []agentstream.Event{
		agentstream.StreamStart{},
		agentstream.StreamEnd{},
	}}

	tr, err := p.StartTurn(context.Background(), "conv-1", "hi", nil, streamer)
	require.NoError(t, err)

	out, err := p.StreamEvents(context.Background(), tr.ID)
	require.NoError(t, err)
	collectUntilTerminal(t, out)

	p.Cleanup(tr.ID)
	p.Cleanup(tr.ID) // must not panic or double-count

	// The active-turn slot should be free: a new turn can start immediately.
	_, err = p.StartTurn(context.Background(), "conv-1", "second", nil, streamer)
	assert.NoError(t, err)
}

func TestGetStats_CountsTerminalStatuses(t *testing.T) {
	p := newTestProcessor()
	ok := &agentstream.FakeStreamer{Events: []agentstream.Event{agentstream.StreamStart{}, agentstream.StreamEnd{}}}

	tr, err := p.StartTurn(context.Background(), "conv-1", "hi", nil, ok)
	require.NoError(t, err)
	out, err := p.StreamEvents(context.Background(), tr.ID)
	require.NoError(t, err)
	collectUntilTerminal(t, out)

	stats := p.GetStats()
	assert.Equal(t, 1, stats.TotalTurns)
	assert.Equal(t, 1, stats.CompletedTurns)
	assert.Equal(t, 0, stats.ActiveTurns)
}
