// Package orchestrator drives the asynchronous agent event sequence
// through a turn's queues: Event Handler (producer/consumer), Task
// Manager, and MessageProcessor together. This is the heart of the
// design — every other package feeds it or is fed by it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcbound/turngate/pkg/agentstream"
	"github.com/arcbound/turngate/pkg/ttscleaner"
	"github.com/arcbound/turngate/pkg/turn"
)

var (
	// ErrTurnAlreadyActive is returned by StartTurn when the connection
	// already has a turn in flight (invariant 1: one active turn per
	// connection at a time). The slot is freed by cleanup, not by the
	// turn reaching a terminal status.
	ErrTurnAlreadyActive = errors.New("orchestrator: a turn is already active on this connection")
	// ErrTurnNotFound is returned by any operation naming an unknown turn_id.
	ErrTurnNotFound = errors.New("orchestrator: unknown turn")
	// ErrShuttingDown is returned by StartTurn once Shutdown has begun.
	ErrShuttingDown = errors.New("orchestrator: processor is shutting down")
)

// Options configures a Processor. ConnectionID is logged as session_id
// on every tool-call/tool-result log line; UserID is passed to the agent
// stream request.
type Options struct {
	ConnectionID string
	UserID       string

	QueueSize int // per-turn EventQueue/TokenQueue capacity

	ReasoningStartTag string // default "<think>"
	ReasoningEndTag   string // default "</think>"

	TTSRulesPath string

	// TaskAwaitTimeout bounds how long finishTurn/cleanup wait for the
	// Consumer to drain before giving up and proceeding anyway.
	TaskAwaitTimeout time.Duration
	// InterruptWaitTimeout bounds the brief wait, after enqueueing the
	// synthetic terminal event on interrupt, for a reader to pick it up.
	InterruptWaitTimeout time.Duration

	Classify ResultClassifier
	Logger   *slog.Logger
}

// Processor is the MessageProcessor: it owns every Turn created on one
// connection, enforces the single-active-turn invariant, and exposes the
// lifecycle operations the gateway's message handlers call into.
type Processor struct {
	connectionID string
	userID       string
	queueSize    int
	startTag     string
	endTag       string
	taskAwaitTimeout     time.Duration
	interruptWaitTimeout time.Duration
	classify             ResultClassifier
	logger               *slog.Logger
	cleaner              *ttscleaner.Cleaner
	tasks                *taskManager

	mu           sync.Mutex
	turns        map[string]*turn.Turn
	activeTurnID string
	shuttingDown bool

	cleanupMu sync.Mutex
	cleaned   map[string]bool

	interruptedCount atomic.Int64
}

// New builds a Processor ready to start turns.
func New(opts Options) *Processor {
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	if opts.ReasoningStartTag == "" {
		opts.ReasoningStartTag = "<think>"
	}
	if opts.ReasoningEndTag == "" {
		opts.ReasoningEndTag = "</think>"
	}
	if opts.TaskAwaitTimeout <= 0 {
		opts.TaskAwaitTimeout = 5 * time.Second
	}
	if opts.InterruptWaitTimeout <= 0 {
		opts.InterruptWaitTimeout = time.Second
	}
	if opts.Classify == nil {
		opts.Classify = defaultClassify
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Processor{
		connectionID:         opts.ConnectionID,
		userID:               opts.UserID,
		queueSize:            opts.QueueSize,
		startTag:             opts.ReasoningStartTag,
		endTag:               opts.ReasoningEndTag,
		taskAwaitTimeout:     opts.TaskAwaitTimeout,
		interruptWaitTimeout: opts.InterruptWaitTimeout,
		classify:             opts.Classify,
		logger:               opts.Logger,
		cleaner:              ttscleaner.New(opts.TTSRulesPath, opts.Logger),
		tasks:                newTaskManager(),
		turns:                make(map[string]*turn.Turn),
		cleaned:              make(map[string]bool),
	}
}

// StartTurn creates a PENDING turn, opens the agent stream against it,
// and spawns its producer and consumer. Fails if another turn on this
// connection is still active (invariant 1) or the processor is shutting
// down.
func (p *Processor) StartTurn(ctx context.Context, conversationID, userMessage string, metadata map[string]any, streamer agentstream.Streamer) (*turn.Turn, error) {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if p.activeTurnID != "" {
		p.mu.Unlock()
		return nil, ErrTurnAlreadyActive
	}

	t := turn.New(conversationID, userMessage, metadata, p.queueSize)
	p.activeTurnID = t.ID
	p.turns[t.ID] = t
	p.mu.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	consumerDone := p.tasks.register(t.ID, cancel)

	stream, err := streamer.Stream(turnCtx, agentstream.StreamRequest{
		ConversationID: conversationID,
		UserMessage:    userMessage,
		UserID:         p.userID,
		Metadata:       metadata,
	})
	if err != nil {
		cancel()
		t.SetError(err.Error())
		t.SetStatus(turn.StatusFailed)
		p.cleanup(t.ID)
		return nil, fmt.Errorf("orchestrator: starting agent stream: %w", err)
	}

	go func() {
		defer close(consumerDone)
		p.runConsumer(t)
	}()
	go p.runProducer(turnCtx, t, stream)

	return t, nil
}

// InterruptTurn transitions turnID to INTERRUPTED, tears down its
// producer/consumer, and delivers exactly one synthetic terminal event.
// Returns false if the turn is unknown or already terminal — interrupting
// a finished turn is a no-op, not an error.
func (p *Processor) InterruptTurn(turnID, reason string) bool {
	t, ok := p.GetTurn(turnID)
	if !ok {
		return false
	}
	if !t.SetStatus(turn.StatusInterrupted) {
		return false
	}
	t.MarkInterruptedOnce(func() { p.interruptedCount.Add(1) })

	t.CloseTokenStream()
	drainTokens(t)

	p.tasks.cancel(turnID)
	p.tasks.awaitConsumer(turnID, p.taskAwaitTimeout)

	drainEvents(t)
	p.enqueueEvent(t, buildEvent(turnID, "stream_end", map[string]any{
		"status": "interrupted",
		"reason": reason,
	}))

	deadline := time.Now().Add(p.interruptWaitTimeout)
	for len(t.EventQueue) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.cleanup(turnID)
	return true
}

// InterruptAllActiveTurns interrupts every turn not already in a terminal
// state (used on shutdown, or when a connection resets). Returns the
// count actually interrupted.
func (p *Processor) InterruptAllActiveTurns(reason string) int {
	ids := p.GetActiveTurns()
	n := 0
	for _, id := range ids {
		if p.InterruptTurn(id, reason) {
			n++
		}
	}
	return n
}

// StreamEvents returns a channel forwarding turnID's EventQueue to the
// caller (normally the gateway's per-connection write pump) until a
// terminal event (stream_end or error) is forwarded or ctx is cancelled.
// It runs cleanup exactly once, as soon as a terminal event has been
// handed off or the caller stops reading.
func (p *Processor) StreamEvents(ctx context.Context, turnID string) (<-chan turn.Event, error) {
	t, ok := p.GetTurn(turnID)
	if !ok {
		return nil, ErrTurnNotFound
	}

	out := make(chan turn.Event, p.queueSize)
	go func() {
		defer close(out)
		defer p.cleanup(turnID)

		for {
			select {
			case ev, ok := <-t.EventQueue:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if isTerminalEventType(ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Cleanup exposes the idempotent teardown path for callers (e.g. a
// connection-close handler) that need to force it outside the normal
// terminal-event or interrupt flows.
func (p *Processor) Cleanup(turnID string) {
	p.cleanup(turnID)
}

// cleanup tears a turn's runtime state down exactly once (invariant 6):
// it latches the turn closed so any in-flight enqueue abandons its send,
// makes sure the producer/consumer pairing has actually stopped, drains
// whatever is left in the event queue, clears the active-turn slot if it
// still points at this turn, and forgets the task-manager bookkeeping.
// The Turn record itself is left in p.turns for GetTurn/GetStats/aging.
func (p *Processor) cleanup(turnID string) {
	p.cleanupMu.Lock()
	if p.cleaned[turnID] {
		p.cleanupMu.Unlock()
		return
	}
	p.cleaned[turnID] = true
	p.cleanupMu.Unlock()

	t, ok := p.GetTurn(turnID)
	if !ok {
		return
	}

	t.MarkClosed()
	t.CloseTokenStream()
	p.tasks.cancel(turnID)
	p.tasks.awaitConsumer(turnID, p.taskAwaitTimeout)
	drainEvents(t)

	p.mu.Lock()
	if p.activeTurnID == turnID {
		p.activeTurnID = ""
	}
	p.mu.Unlock()

	p.tasks.forget(turnID)
}

// CleanupCompletedTurns removes terminal turn records that were created
// more than maxAge ago, freeing the memory held by p.turns and
// p.cleaned. Returns the number removed.
func (p *Processor) CleanupCompletedTurns(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, t := range p.turns {
		if t.Status().IsTerminal() && t.Age() > maxAge {
			delete(p.turns, id)
			p.cleanupMu.Lock()
			delete(p.cleaned, id)
			p.cleanupMu.Unlock()
			removed++
		}
	}
	return removed
}

// Shutdown interrupts every active turn, gives cleanup a brief grace
// period to run, then forces cleanup on anything still outstanding. After
// Shutdown is called, StartTurn always fails with ErrShuttingDown.
func (p *Processor) Shutdown(cleanupDelay time.Duration) {
	p.mu.Lock()
	p.shuttingDown = true
	p.mu.Unlock()

	p.InterruptAllActiveTurns("shutdown")
	time.Sleep(cleanupDelay)

	for _, id := range p.GetActiveTurns() {
		p.cleanup(id)
	}
}

// GetActiveTurns returns the IDs of every turn not yet in a terminal state.
func (p *Processor) GetActiveTurns() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.turns))
	for id, t := range p.turns {
		if !t.Status().IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetTurn looks up a turn by ID.
func (p *Processor) GetTurn(turnID string) (*turn.Turn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.turns[turnID]
	return t, ok
}

// Stats is a point-in-time summary of a connection's turn activity.
type Stats struct {
	TotalTurns       int
	ActiveTurns      int
	CompletedTurns   int
	FailedTurns      int
	InterruptedTurns int64
}

// GetStats summarizes the turns this processor still holds (turns removed
// by CleanupCompletedTurns are not counted); InterruptedTurns is the
// running total of interrupts.
func (p *Processor) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{TotalTurns: len(p.turns), InterruptedTurns: p.interruptedCount.Load()}
	for _, t := range p.turns {
		switch t.Status() {
		case turn.StatusCompleted:
			stats.CompletedTurns++
		case turn.StatusFailed:
			stats.FailedTurns++
		default:
			if !t.Status().IsTerminal() {
				stats.ActiveTurns++
			}
		}
	}
	return stats
}

func (p *Processor) enqueueEvent(t *turn.Turn, ev turn.Event) {
	select {
	case t.EventQueue <- ev:
	case <-t.Closed():
		p.logger.Debug("dropped event on closed turn", "turn_id", t.ID, "event_type", ev["type"])
	}
}

func (p *Processor) enqueueToken(t *turn.Turn, item turn.TokenItem) {
	select {
	case t.TokenQueue <- item:
	case <-t.Closed():
	}
}

func drainTokens(t *turn.Turn) {
	for {
		select {
		case _, ok := <-t.TokenQueue:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func drainEvents(t *turn.Turn) {
	for {
		select {
		case <-t.EventQueue:
		default:
			return
		}
	}
}
