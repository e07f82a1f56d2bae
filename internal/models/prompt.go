package models

import "time"

// PromptConfig tunes the interactive password handshake used for
// privileged commands. All values must be strictly positive.
type PromptConfig struct {
	PollInterval    time.Duration `validate:"gt=0"`
	PromptTimeout   time.Duration `validate:"gt=0"` // wait for the first password prompt
	PasswordTimeout time.Duration `validate:"gt=0"` // wait for a re-prompt after sending the password
	MaxReadBytes    int           `validate:"gt=0"`
}

// DefaultPromptConfig returns the handshake defaults.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		PollInterval:    500 * time.Millisecond,
		PromptTimeout:   10 * time.Second,
		PasswordTimeout: 5 * time.Second,
		MaxReadBytes:    1024,
	}
}
