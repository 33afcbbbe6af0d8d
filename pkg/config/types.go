// Package config loads and validates the gateway's configuration surface:
// queue sizing, heartbeat/timeout intervals, the TTS rules file path, and
// reasoning-tag delimiters (spec.md §6.4).
package config

import "time"

// GatewayConfig is the complete, validated configuration for one gateway
// process. Every field has a built-in default (see DefaultConfig) that an
// optional YAML file may override.
type GatewayConfig struct {
	// QueueSize is the capacity of each turn's EventQueue and TokenQueue.
	QueueSize int `yaml:"queue_size"`

	// PingInterval is how often the heartbeat monitor sends a ping frame.
	PingInterval time.Duration `yaml:"ping_interval"`
	// PongTimeout is how long after a ping the monitor waits for a pong
	// before treating the connection as dead.
	PongTimeout time.Duration `yaml:"pong_timeout"`
	// InactivityTimeout closes a connection that has sent nothing at all
	// (not even a pong) for this long.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// InterruptWaitTimeout bounds how long interrupt_turn waits for the
	// synthetic terminal event to be picked up before proceeding to cleanup
	// regardless.
	InterruptWaitTimeout time.Duration `yaml:"interrupt_wait_timeout"`
	// ErrorBackoff is the pause after a malformed-frame error before the
	// connection's read loop resumes.
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	// MaxFrameErrors is how many consecutive malformed frames a connection
	// tolerates before it is closed.
	MaxFrameErrors int `yaml:"max_frame_errors"`

	// TTSRulesPath points at the YAML/JSON rewrite-rules file for
	// pkg/ttscleaner. Empty uses the built-in defaults.
	TTSRulesPath string `yaml:"tts_rules_path"`

	// ReasoningStartTag/ReasoningEndTag delimit reasoning spans the chunker
	// elides from client-visible text.
	ReasoningStartTag string `yaml:"reasoning_start_tag"`
	ReasoningEndTag   string `yaml:"reasoning_end_tag"`
}

// DefaultConfig returns the built-in defaults named in spec.md §6.4.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		QueueSize:            100,
		PingInterval:         30 * time.Second,
		PongTimeout:          10 * time.Second,
		InactivityTimeout:    300 * time.Second,
		InterruptWaitTimeout: 1 * time.Second,
		ErrorBackoff:         500 * time.Millisecond,
		MaxFrameErrors:       5,
		ReasoningStartTag:    "<think>",
		ReasoningEndTag:      "</think>",
	}
}
