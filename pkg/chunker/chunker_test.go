package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_HappyPathTwoSentences(t *testing.T) {
	c := New("", "")

	var got []string
	got = append(got, c.Process("Hello")...)
	got = append(got, c.Process(" world. How are")...)
	got = append(got, c.Process(" you?")...)

	require.Len(t, got, 2)
	assert.Equal(t, "Hello world.", got[0])
	assert.Equal(t, "How are you?", got[1])
	assert.Empty(t, c.Flush())
}

func TestProcess_FlushOfResidual(t *testing.T) {
	c := New("", "")

	got := c.Process("No terminator here")
	assert.Empty(t, got)
	assert.Equal(t, "No terminator here", c.Flush())
}

func TestProcess_MultipleTerminatorsNoEmptySplits(t *testing.T) {
	c := New("", "")
	got := c.Process("Wait... really?! Yes.")
	require.NotEmpty(t, got)
	for _, s := range got {
		assert.NotEmpty(t, s)
	}
}

func TestProcess_CJKTerminators(t *testing.T) {
	c := New("", "")
	got := c.Process("你好。今天天气怎么样？")
	require.Len(t, got, 2)
	assert.Equal(t, "你好。", got[0])
	assert.Equal(t, "今天天气怎么样？", got[1])
}

func TestProcess_ReasoningTagsSpanningTokenBoundaries(t *testing.T) {
	c := New("<think>", "</think>")

	var got []string
	got = append(got, c.Process("Visible. <thi")...)
	got = append(got, c.Process("nk>hidden thought.</thi")...)
	got = append(got, c.Process("nk> more visible.")...)

	joined := got
	require.NotEmpty(t, joined)
	for _, s := range joined {
		assert.NotContains(t, s, "hidden")
	}
}

func TestProcess_StripsEmbeddedToolCallJSON(t *testing.T) {
	c := New("", "")
	got := c.Process("Before. {'type': 'tool_call', 'tool_name': 'x', 'args': '{}'}} After.")
	for _, s := range got {
		assert.NotContains(t, s, "tool_call")
	}
}

// P8: process(x) then flush() together yield the same text as
// process(x + terminator), apart from the terminator itself.
func TestIdempotentUnderFlush(t *testing.T) {
	c1 := New("", "")
	sentences := c1.Process("No terminator")
	remainder := c1.Flush()
	var combined string
	for _, s := range sentences {
		combined += s
	}
	combined += remainder

	c2 := New("", "")
	sentences2 := c2.Process("No terminator.")
	var combined2 string
	for _, s := range sentences2 {
		combined2 += s
	}

	assert.Equal(t, "No terminator", combined)
	assert.Equal(t, "No terminator.", combined2)
}

func TestReset_ClearsState(t *testing.T) {
	c := New("<think>", "</think>")
	c.Process("<think>buffered")
	c.Reset()
	assert.Empty(t, c.Flush())
}
