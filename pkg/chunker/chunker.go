// Package chunker implements the Sentence Chunker: a stateful buffer
// that absorbs arbitrary-length token fragments from an LLM stream and
// emits completed sentences at terminal punctuation.
package chunker

import (
	"regexp"
	"strings"
)

// sentenceBoundary matches on-or-after a terminator followed by
// optional whitespace. Terminator set: ASCII . ! ? newline, plus the
// CJK full-width counterparts 。！？.
var sentenceBoundary = regexp.MustCompile(`(?:[.!?。！？\n])\s*`)

// toolCallBlob matches embedded tool-call JSON the LLM may accidentally
// echo into prose, e.g. {'type': 'tool_call', ...}}.
var toolCallBlob = regexp.MustCompile(`\{\s*'type'\s*:\s*'tool_call'[\s\S]*?\}\}`)

// Chunker converts a lazy sequence of token fragments into a lazy
// sequence of sentence strings. Not safe for concurrent use — one
// instance is owned by a single Turn's consumer goroutine.
type Chunker struct {
	buf    strings.Builder
	inside bool // inside_reasoning flag; may span token boundaries

	startTag string
	endTag   string
}

// New creates a Chunker with the given reasoning-tag delimiters
// (case-insensitive). Defaults are "<think>" / "</think>" per spec.
func New(startTag, endTag string) *Chunker {
	if startTag == "" {
		startTag = "<think>"
	}
	if endTag == "" {
		endTag = "</think>"
	}
	return &Chunker{startTag: startTag, endTag: endTag}
}

// Process appends token to the internal buffer, stripping reasoning
// markers and embedded tool-call JSON first, then splits off and
// returns one sentence per terminator found. Any remainder stays
// buffered for the next call. Total on arbitrary input — never errors.
func (c *Chunker) Process(token string) []string {
	if token == "" {
		return nil
	}

	filtered := c.filterReasoning(token)
	if filtered == "" {
		return nil
	}

	c.buf.WriteString(filtered)
	buffered := toolCallBlob.ReplaceAllString(c.buf.String(), "")

	locs := sentenceBoundary.FindAllStringIndex(buffered, -1)
	if len(locs) == 0 {
		c.buf.Reset()
		c.buf.WriteString(buffered)
		return nil
	}

	var sentences []string
	start := 0
	for _, loc := range locs {
		piece := strings.TrimSpace(buffered[start:loc[1]])
		if piece != "" {
			sentences = append(sentences, piece)
		}
		start = loc[1]
	}

	c.buf.Reset()
	c.buf.WriteString(buffered[start:])

	return sentences
}

// Flush returns the remaining buffered text (trimmed), if any, and
// clears the buffer. Used at end-of-stream.
func (c *Chunker) Flush() string {
	remainder := toolCallBlob.ReplaceAllString(c.buf.String(), "")
	c.Reset()
	return strings.TrimSpace(remainder)
}

// Reset clears all chunker state, including the in-reasoning flag.
func (c *Chunker) Reset() {
	c.buf.Reset()
	c.inside = false
}

// filterReasoning strips substrings enclosed between startTag and
// endTag (case-insensitive), tracking inside across calls so a tag
// pair spanning token boundaries is still elided.
func (c *Chunker) filterReasoning(chunk string) string {
	pattern := regexp.MustCompile("(?i)(" + regexp.QuoteMeta(c.startTag) + "|" + regexp.QuoteMeta(c.endTag) + ")")
	parts := splitKeepDelim(pattern, chunk)

	var out strings.Builder
	lowerStart := strings.ToLower(c.startTag)
	lowerEnd := strings.ToLower(c.endTag)

	for _, part := range parts {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		switch {
		case lower == lowerStart:
			c.inside = true
		case lower == lowerEnd:
			c.inside = false
		case !c.inside:
			out.WriteString(part)
		}
	}
	return out.String()
}

// splitKeepDelim splits s on pattern but keeps the matched delimiters
// as their own elements, mirroring Python re.split with a capture group.
func splitKeepDelim(pattern *regexp.Regexp, s string) []string {
	var result []string
	last := 0
	for _, loc := range pattern.FindAllStringIndex(s, -1) {
		if loc[0] > last {
			result = append(result, s[last:loc[0]])
		}
		result = append(result, s[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(s) {
		result = append(result, s[last:])
	}
	return result
}
