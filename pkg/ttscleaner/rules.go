package ttscleaner

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is one ordered (pattern, replacement) rewrite rule, as loaded
// from a YAML or JSON rules file.
type Rule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// rulesFile is the on-disk shape: an object with a top-level "rules"
// key. A bare top-level list does not parse into it and so falls back
// to the defaults.
type rulesFile struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// compiledRule pairs a successfully-compiled regex with its replacement.
type compiledRule struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// defaultRules mirrors the original implementation's built-in fallback
// rules (original_source/.../text_processors.py _DEFAULT_RULES),
// generalized from its Korean-specific filler patterns to the
// equivalent English/CJK-agnostic stage-direction and filler markers
// spec.md §4.B names as defaults.
var defaultRules = []Rule{
	{Pattern: `\*[^*]*\*`, Replacement: "", Description: "bracketed stage directions: *...*"},
	{Pattern: `\[[^\]]*\]`, Replacement: "", Description: "bracketed stage directions: [...]"},
	{Pattern: `\((?:giggle|giggles|laughs softly)\)`, Replacement: "", Description: "giggle/laugh filler markers"},
	{Pattern: `\b(?:um|uh)+[.\x{2026}]*\b`, Replacement: "", Description: "um/uh filler words"},
	{Pattern: `\s{2,}`, Replacement: " ", Description: "collapse whitespace runs"},
}

// LoadRules loads and compiles an ordered rule list from a YAML or JSON
// file at path. Invalid individual patterns are logged and skipped. If
// the file is missing, malformed, or has no rules, falls back to
// defaultRules. If the rules in use (from the file or the defaults)
// yield zero valid compiled rules, a single whitespace-collapse rule is
// installed as a safety net so the cleaner is never left without at
// least one rule.
func LoadRules(path string, logger *slog.Logger) []compiledRule {
	if logger == nil {
		logger = slog.Default()
	}

	rules := loadRawRules(path, logger)
	compiled := compileRules(rules, logger)

	if len(compiled) == 0 {
		logger.Warn("no valid TTS cleanup rules survived compilation, installing whitespace safety net")
		compiled = []compiledRule{{
			name:        "safety_net_whitespace",
			regex:       regexp.MustCompile(`\s{2,}`),
			replacement: " ",
		}}
	}

	return compiled
}

func loadRawRules(path string, logger *slog.Logger) []Rule {
	if path == "" {
		return defaultRules
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("failed to read TTS rules file, falling back to defaults", "path", path, "error", err)
		}
		return defaultRules
	}

	var parsed rulesFile
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			logger.Error("failed to parse TTS rules YAML, falling back to defaults", "path", path, "error", err)
			return defaultRules
		}
	case ".json":
		if err := json.Unmarshal(data, &parsed); err != nil {
			logger.Error("failed to parse TTS rules JSON, falling back to defaults", "path", path, "error", err)
			return defaultRules
		}
	default:
		logger.Warn("unsupported TTS rules file extension, falling back to defaults", "path", path)
		return defaultRules
	}

	if len(parsed.Rules) == 0 {
		return defaultRules
	}
	return parsed.Rules
}

func compileRules(rules []Rule, logger *slog.Logger) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			logger.Warn("skipping invalid TTS cleanup pattern", "index", i, "pattern", r.Pattern, "error", err)
			continue
		}
		name := r.Description
		if name == "" {
			name = r.Pattern
		}
		compiled = append(compiled, compiledRule{name: name, regex: re, replacement: r.Replacement})
	}
	return compiled
}
