package config

import "fmt"

// Validator validates a GatewayConfig comprehensively, with one clear
// error message per offending field.
type Validator struct {
	cfg *GatewayConfig
}

// NewValidator creates a validator for cfg.
func NewValidator(cfg *GatewayConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll checks every field, fail-fast on the first violation.
func (v *Validator) ValidateAll() error {
	c := v.cfg

	if c.QueueSize <= 0 {
		return NewValidationError("queue_size", fmt.Errorf("must be positive, got %d", c.QueueSize))
	}
	if c.PingInterval <= 0 {
		return NewValidationError("ping_interval", fmt.Errorf("must be positive, got %v", c.PingInterval))
	}
	if c.PongTimeout <= 0 {
		return NewValidationError("pong_timeout", fmt.Errorf("must be positive, got %v", c.PongTimeout))
	}
	if c.InactivityTimeout <= 0 {
		return NewValidationError("inactivity_timeout", fmt.Errorf("must be positive, got %v", c.InactivityTimeout))
	}
	if c.InterruptWaitTimeout <= 0 {
		return NewValidationError("interrupt_wait_timeout", fmt.Errorf("must be positive, got %v", c.InterruptWaitTimeout))
	}
	if c.ErrorBackoff < 0 {
		return NewValidationError("error_backoff", fmt.Errorf("must be non-negative, got %v", c.ErrorBackoff))
	}
	if c.MaxFrameErrors <= 0 {
		return NewValidationError("max_frame_errors", fmt.Errorf("must be positive, got %d", c.MaxFrameErrors))
	}
	if c.ReasoningStartTag == "" || c.ReasoningEndTag == "" {
		return NewValidationError("reasoning_start_tag", fmt.Errorf("reasoning tag delimiters must not be empty"))
	}
	if c.ReasoningStartTag == c.ReasoningEndTag {
		return NewValidationError("reasoning_end_tag", fmt.Errorf("must differ from reasoning_start_tag"))
	}

	return nil
}
