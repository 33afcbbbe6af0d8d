// Package turn defines the Turn record: one user→agent exchange, its
// status state machine, and the bounded queues that carry client-visible
// events and raw agent tokens through the pipeline.
package turn

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Turn.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// IsTerminal reports whether s is one of the turn's terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusInterrupted, StatusFailed:
		return true
	default:
		return false
	}
}

// Event is a client-visible message destined for the event queue (and,
// from there, the WebSocket). Concrete payloads are built by the caller
// (pkg/orchestrator); Turn only moves opaque maps through its queue.
type Event = map[string]any

// TokenItem is a single raw token delivered from the agent stream,
// destined for the token queue (internal — never forwarded to the
// client as-is).
type TokenItem struct {
	Chunk string
}

// Turn is the central entity of one user→agent exchange.
//
// EventQueue and TokenQueue are native Go channels rather than a
// queue-plus-sentinel: closing TokenQueue is the end-of-stream signal
// (see package orchestrator), which is the idiomatic Go substitute for
// the sentinel-object pattern the design notes call out.
type Turn struct {
	ID             string
	ConversationID string
	UserMessage    string
	Metadata       map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time

	ResponseContent string
	ErrorMessage    string

	// mu guards Status and the terminal transition; queues are owned by
	// exactly one producer/consumer pair and are not separately locked.
	mu     sync.Mutex
	status Status

	EventQueue chan Event
	TokenQueue chan TokenItem

	// tokenStreamClosed latches true once TokenQueue has been (or is
	// being) closed by the producer. Guarded by mu.
	tokenStreamClosed bool

	// interruptedOnce ensures invariant 3: the interrupted-turn counter
	// advances only on the first transition into INTERRUPTED.
	interruptedOnce sync.Once

	// closedOnce/closedCh let a producer or consumer mid-send abandon the
	// send once cleanup has run, instead of blocking forever on a queue
	// nobody drains anymore (invariant 4: no events enqueue after cleanup).
	closedOnce sync.Once
	closedCh   chan struct{}
}

// New creates a PENDING turn with freshly allocated bounded queues.
// queueSize is the configured capacity for both EventQueue and
// TokenQueue (spec default 100).
func New(conversationID, userMessage string, metadata map[string]any, queueSize int) *Turn {
	if queueSize < 1 {
		queueSize = 1
	}
	now := time.Now()
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Turn{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserMessage:    userMessage,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		status:         StatusPending,
		EventQueue:     make(chan Event, queueSize),
		TokenQueue:     make(chan TokenItem, queueSize),
		closedCh:       make(chan struct{}),
	}
}

// Closed returns a channel that is closed once MarkClosed has run. Select
// on it alongside a queue send to abandon delivery once the turn has been
// torn down.
func (t *Turn) Closed() <-chan struct{} {
	return t.closedCh
}

// MarkClosed signals that the turn is torn down: no further sends to
// EventQueue or TokenQueue should be attempted. Idempotent.
func (t *Turn) MarkClosed() {
	t.closedOnce.Do(func() { close(t.closedCh) })
}

// Status returns the turn's current status.
func (t *Turn) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus advances the turn to s, honoring invariant 2 (monotonic
// status: a terminal state never transitions back). Returns true if the
// transition was applied.
func (t *Turn) SetStatus(s Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return false
	}
	t.status = s
	t.UpdatedAt = time.Now()
	return true
}

// SetError records the terminal failure message. It does not change the
// status; callers move the turn to FAILED with a separate SetStatus call,
// so a concurrent Snapshot may see the message before the new status.
func (t *Turn) SetError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ErrorMessage = msg
}

// MarkInterruptedOnce runs fn exactly once, the first time the turn
// transitions into INTERRUPTED — the hook invariant 3's counter uses.
func (t *Turn) MarkInterruptedOnce(fn func()) {
	t.interruptedOnce.Do(fn)
}

// CloseTokenStream closes TokenQueue at most once and latches
// tokenStreamClosed. Safe to call concurrently from the producer and
// from an interrupt path.
func (t *Turn) CloseTokenStream() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tokenStreamClosed {
		return
	}
	t.tokenStreamClosed = true
	close(t.TokenQueue)
}

// TokenStreamClosed reports whether CloseTokenStream has run.
func (t *Turn) TokenStreamClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokenStreamClosed
}

// Age returns how long it has been since the turn was created.
func (t *Turn) Age() time.Duration {
	return time.Since(t.CreatedAt)
}

// Snapshot is an immutable copy of turn state safe to hand to callers
// outside the owning goroutine (statistics, `get_turn`).
type Snapshot struct {
	ID              string
	ConversationID  string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResponseContent string
	ErrorMessage    string
}

// Snapshot returns a point-in-time copy of the turn's externally
// observable state.
func (t *Turn) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:              t.ID,
		ConversationID:  t.ConversationID,
		Status:          t.status,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		ResponseContent: t.ResponseContent,
		ErrorMessage:    t.ErrorMessage,
	}
}
