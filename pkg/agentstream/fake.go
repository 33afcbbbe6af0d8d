package agentstream

import "context"

// FakeStreamer replays a fixed, pre-scripted sequence of Events. It
// exists to drive the concrete end-to-end scenarios of spec.md §8 in
// tests without a real LLM agent.
type FakeStreamer struct {
	Events []Event
}

// Stream returns a channel that yields Events in order, one per
// goroutine iteration, then closes. Honors ctx cancellation by
// abandoning delivery of any remaining events.
func (f *FakeStreamer) Stream(ctx context.Context, _ StreamRequest) (<-chan Event, error) {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, ev := range f.Events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
