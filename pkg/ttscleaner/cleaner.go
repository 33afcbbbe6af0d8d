// Package ttscleaner implements the TTS Cleaner: rewrites a sentence
// into a TTS-speakable form via an ordered regex rewrite-rule engine and
// extracts a single emotion tag per sentence.
//
// The rewrite-rule engine (load → compile, skip invalid patterns with a
// warning, safety-net fallback) is grounded on
// pkg/masking's compiled-pattern approach to MCP tool-result masking,
// retargeted here from data redaction to TTS-speakability.
package ttscleaner

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
)

// emotionKeywords is the fixed vocabulary scanned for a parenthesized
// emotion tag. Order matches the original implementation's grouping
// (core emotions, conversational reactions, expressive actions).
var emotionKeywords = []string{
	"joyful", "sad", "angry", "surprised", "scared", "disgusted",
	"confused", "curious", "worried", "satisfied", "sarcastic",
	"laughing", "crying loudly", "sighing", "whispering", "hesitating",
}

var emotionPattern = buildEmotionPattern()

func buildEmotionPattern() *regexp.Regexp {
	escaped := make([]string, len(emotionKeywords))
	for i, k := range emotionKeywords {
		escaped[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)\((` + strings.Join(escaped, "|") + `)\)`)
}

// Processed is the result of running a sentence through the cleaner.
type Processed struct {
	FilteredText string
	EmotionTag   string // empty if no emotion tag was found
}

// Cleaner rewrites sentences into TTS-speakable form. One instance may
// be shared across turns (stateless aside from its compiled rules) or
// created per-turn; either way it is safe for concurrent use since its
// only state is immutable after construction.
type Cleaner struct {
	rules []compiledRule
}

// New loads cleanup rules from rulesPath (YAML or JSON; see LoadRules)
// and returns a ready-to-use Cleaner. An empty rulesPath uses the
// built-in defaults directly.
func New(rulesPath string, logger *slog.Logger) *Cleaner {
	return &Cleaner{rules: LoadRules(rulesPath, logger)}
}

// Process extracts an emotion tag (if present) and applies the ordered
// cleanup rules, then collapses whitespace and trims. Never errors —
// a sentence with no recognizable content yields an empty FilteredText.
func (c *Cleaner) Process(text string) Processed {
	if strings.TrimSpace(text) == "" {
		return Processed{}
	}

	emotionTag := ""
	if m := emotionPattern.FindStringSubmatch(text); m != nil {
		// Only the first match yields emotion_tag; the tag token itself
		// is NOT removed here by default — see SPEC_FULL.md's Open
		// Question resolution. A rule-file rule can strip it instead.
		emotionTag = strings.ToLower(m[1])
	}

	filtered := text
	for _, rule := range c.rules {
		filtered = rule.regex.ReplaceAllString(filtered, rule.replacement)
	}

	filtered = collapseWhitespace(filtered)

	return Processed{FilteredText: filtered, EmotionTag: emotionTag}
}

var whitespaceRun = regexp.MustCompile(`\s{2,}`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// HasAlphanumeric reports whether s contains at least one letter or
// digit — the gate the consumer applies before emitting a
// tts_ready_chunk (spec.md §4.C).
func HasAlphanumeric(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return true
		}
		if r > 127 && (unicode.IsLetter(r) || unicode.IsDigit(r)) { // non-ASCII letters/digits (CJK, etc.)
			return true
		}
	}
	return false
}
