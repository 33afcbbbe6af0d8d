package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/arcbound/turngate/pkg/agentstream"
	"github.com/arcbound/turngate/pkg/config"
)

// blockingStreamer emits stream_start then blocks until ctx is cancelled,
// never sending a stream_end — used to make interrupt_stream
// deterministic instead of racing a FakeStreamer's natural completion.
type blockingStreamer struct{}

func (blockingStreamer) Stream(ctx context.Context, _ agentstream.StreamRequest) (<-chan agentstream.Event, error) {
	ch := make(chan agentstream.Event, 1)
	ch <- agentstream.StreamStart{}
	go func() {
		<-ctx.Done()
	}()
	return ch, nil
}

func startTestServer(t *testing.T, streamer agentstream.Streamer) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.PingInterval = time.Hour // keep the heartbeat out of the way of these tests
	cfg.InactivityTimeout = time.Hour

	mgr := NewManager(cfg, streamer, nil, nil)
	srv := NewServer(mgr, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = srv.StartWithListener(ln)
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})

	return "ws://" + ln.Addr().String() + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func recvFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestAuthorize_SuccessThenChat(t *testing.T) {
	url := startTestServer(t, &agentstream.FakeStreamer{Events: []agentstream.Event{
		agentstream.StreamStart{},
		agentstream.StreamToken{Chunk: "Hello world. "},
		agentstream.StreamEnd{},
	}})
	conn := dial(t, url)

	send(t, conn, clientFrame{Type: frameAuthorize, Token: "tok"})
	ack := recvFrame(t, conn)
	require.Equal(t, "authorize_success", ack["type"])
	require.NotEmpty(t, ack["connection_id"])

	send(t, conn, clientFrame{Type: frameChatMessage, Content: "hi", AgentID: "agent-1", UserID: "user-1"})

	start := recvFrame(t, conn)
	require.Equal(t, "stream_start", start["type"])
	require.Equal(t, ack["connection_id"], start["connection_id"])

	chunk := recvFrame(t, conn)
	require.Equal(t, "tts_ready_chunk", chunk["type"])
	require.Equal(t, "Hello world.", chunk["chunk"])

	end := recvFrame(t, conn)
	require.Equal(t, "stream_end", end["type"])
}

// Scenario 6: an unauthenticated chat_message gets a rejecting error frame
// and the connection stays open (a subsequent authorize still succeeds).
func TestChatMessage_RejectedWithoutAuthorize(t *testing.T) {
	url := startTestServer(t, &agentstream.FakeStreamer{})
	conn := dial(t, url)

	send(t, conn, clientFrame{Type: frameChatMessage, Content: "hi", AgentID: "a", UserID: "u"})

	errFrame := recvFrame(t, conn)
	require.Equal(t, "error", errFrame["type"])
	require.Contains(t, errFrame["error"], "Authentication required")
	require.EqualValues(t, codeAuthRequired, errFrame["code"])

	send(t, conn, clientFrame{Type: frameAuthorize, Token: "tok"})
	ack := recvFrame(t, conn)
	require.Equal(t, "authorize_success", ack["type"])
}

// Scenario 5: interrupting an in-flight turn produces exactly one
// terminal event, and never a tts_ready_chunk after it.
func TestInterruptStream_ProducesExactlyOneTerminalEvent(t *testing.T) {
	url := startTestServer(t, blockingStreamer{})
	conn := dial(t, url)

	send(t, conn, clientFrame{Type: frameAuthorize, Token: "tok"})
	recvFrame(t, conn) // authorize_success

	send(t, conn, clientFrame{Type: frameChatMessage, Content: "hi", AgentID: "a", UserID: "u"})
	start := recvFrame(t, conn)
	require.Equal(t, "stream_start", start["type"])

	send(t, conn, clientFrame{Type: frameInterruptStream})

	seenTerminal := false
	seenReply := false
	for i := 0; i < 3; i++ {
		frame := recvFrame(t, conn)
		switch frame["type"] {
		case "error":
			require.Contains(t, []any{float64(codeInterrupted), float64(codeNothingToInterrupt)}, frame["code"])
			seenReply = true
		case "stream_end":
			require.False(t, seenTerminal, "stream_end must be delivered exactly once")
			require.Equal(t, "interrupted", frame["status"])
			seenTerminal = true
		case "tts_ready_chunk":
			require.False(t, seenTerminal, "no chunk may follow the terminal event")
		}
		if seenTerminal && seenReply {
			break
		}
	}
	require.True(t, seenTerminal, "expected exactly one terminal stream_end after interrupt")
}

func TestInterruptStream_NothingToInterrupt(t *testing.T) {
	url := startTestServer(t, &agentstream.FakeStreamer{})
	conn := dial(t, url)

	send(t, conn, clientFrame{Type: frameAuthorize, Token: "tok"})
	recvFrame(t, conn)

	send(t, conn, clientFrame{Type: frameInterruptStream})
	errFrame := recvFrame(t, conn)
	require.Equal(t, "error", errFrame["type"])
	require.EqualValues(t, codeNothingToInterrupt, errFrame["code"])
}

func TestAuthorize_FailureClosesConnection(t *testing.T) {
	url := startTestServer(t, &agentstream.FakeStreamer{})
	conn := dial(t, url)

	send(t, conn, clientFrame{Type: frameAuthorize, Token: ""})
	errFrame := recvFrame(t, conn)
	require.Equal(t, "authorize_error", errFrame["type"])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)

	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		require.Equal(t, closeAuthFailure, closeErr.Code)
	}
}
