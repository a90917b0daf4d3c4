package script

import (
	"fmt"
	"time"
)

// Limits is the immutable per-process configuration for the engine.
// Built once at startup and passed into New, never mutated afterwards.
type Limits struct {
	DefaultTimeout time.Duration `json:"default_timeout"` // Applied when a request carries no timeout
	MaxTimeout     time.Duration `json:"max_timeout"`     // Hard ceiling; requests above it are clamped
	MaxConcurrent  int           `json:"max_concurrent"`  // Simultaneous evaluations
	MaxSourceBytes int           `json:"max_source_bytes"`
	MaxLogLines    int           `json:"max_log_lines"` // Output collector line cap
	MaxLogChars    int           `json:"max_log_chars"` // Output collector character cap
}

func DefaultEngineLimits() Limits {
	return Limits{
		DefaultTimeout: 10 * time.Second,
		MaxTimeout:     60 * time.Second,
		MaxConcurrent:  100,
		MaxSourceBytes: 1 << 20, // 1MB
		MaxLogLines:    1000,
		MaxLogChars:    256 * 1024,
	}
}

func (l Limits) Validate() error {
	if l.DefaultTimeout < time.Millisecond {
		return fmt.Errorf("%w: default_timeout must be >= 1ms, got %s", ErrInvalidRequest, l.DefaultTimeout)
	}
	if l.MaxTimeout < l.DefaultTimeout {
		return fmt.Errorf("%w: max_timeout (%s) must be >= default_timeout (%s)", ErrInvalidRequest, l.MaxTimeout, l.DefaultTimeout)
	}
	if l.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max_concurrent must be >= 1, got %d", ErrInvalidRequest, l.MaxConcurrent)
	}
	if l.MaxSourceBytes < 1 {
		return fmt.Errorf("%w: max_source_bytes must be >= 1, got %d", ErrInvalidRequest, l.MaxSourceBytes)
	}
	if l.MaxLogLines < 1 || l.MaxLogChars < 1 {
		return fmt.Errorf("%w: log caps must be >= 1, got lines=%d chars=%d", ErrInvalidRequest, l.MaxLogLines, l.MaxLogChars)
	}
	return nil
}
