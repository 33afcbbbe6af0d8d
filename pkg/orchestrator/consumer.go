package orchestrator

import (
	"github.com/arcbound/turngate/pkg/chunker"
	"github.com/arcbound/turngate/pkg/ttscleaner"
	"github.com/arcbound/turngate/pkg/turn"
)

// runConsumer is the Consumer half of the turn driver: it ranges the
// token queue until the producer closes it, feeding each raw chunk
// through a per-turn Chunker and cleaning each resulting sentence before
// handing it to the event queue. Ranging over a channel (rather than
// polling a sentinel value) is the Go-native replacement for the
// queue-plus-sentinel shutdown pattern.
func (p *Processor) runConsumer(t *turn.Turn) {
	c := chunker.New(p.startTag, p.endTag)

	for item := range t.TokenQueue {
		for _, sentence := range c.Process(item.Chunk) {
			p.emitSentence(t, sentence)
		}
	}

	if remainder := c.Flush(); remainder != "" {
		p.emitSentence(t, remainder)
	}
}

// emitSentence cleans one chunker-delimited sentence and, if anything
// speakable survives, enqueues it as a tts_ready_chunk event.
func (p *Processor) emitSentence(t *turn.Turn, sentence string) {
	processed := p.cleaner.Process(sentence)
	if !ttscleaner.HasAlphanumeric(processed.FilteredText) {
		return
	}

	fields := map[string]any{"chunk": processed.FilteredText}
	if processed.EmotionTag != "" {
		fields["emotion"] = processed.EmotionTag
	}
	p.enqueueEvent(t, buildEvent(t.ID, "tts_ready_chunk", fields))
}
