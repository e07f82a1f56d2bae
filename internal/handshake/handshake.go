// Package handshake drives a privileged command through an interactive
// shell: send the command, wait for a password prompt, send the password
// and watch for a second prompt that would mean the password was rejected.
//
// The state machine polls the channel on the caller's goroutine and never
// closes it. It does not log; callers report the returned outcome.
package handshake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fgeck/hostctl/internal/models"
)

// Channel is an interactive shell stream owned by a single caller.
type Channel interface {
	// DataReady reports whether Read would return without blocking.
	DataReady() bool
	// Read returns at most maxBytes of pending output. io.EOF means the
	// remote side closed the stream cleanly.
	Read(maxBytes int) ([]byte, error)
	Write(p []byte) error
	// Finished is closed once the remote command or shell has exited.
	Finished() <-chan struct{}
}

var (
	// ErrPromptTimeout means no password prompt appeared in time.
	ErrPromptTimeout = errors.New("no password prompt")
	// ErrPasswordRejected means the shell asked for the password again.
	ErrPasswordRejected = errors.New("incorrect sudo password")
)

// TransportError wraps a read or write failure on the channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "handshake " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var promptMarker = []byte("password")

type state int

const (
	awaitingPrompt state = iota
	awaitingConfirmation
	done
)

type machine struct {
	ch       Channel
	cfg      models.PromptConfig
	password string
	state    state
	deadline time.Time
	now      func() time.Time
	output   bytes.Buffer
}

// Run sends command, answers the password prompt and confirms the
// password was accepted. The returned error is nil only for
// models.OutcomeAccepted.
func Run(ctx context.Context, ch Channel, command, password string, cfg models.PromptConfig) (models.Outcome, error) {
	outcome, _, err := RunWithOutput(ctx, ch, command, password, cfg)
	return outcome, err
}

// RunWithOutput is Run that also returns everything read from the channel,
// prompts included, up to the point the outcome was decided.
func RunWithOutput(ctx context.Context, ch Channel, command, password string, cfg models.PromptConfig) (models.Outcome, string, error) {
	if err := checkConfig(cfg); err != nil {
		return models.OutcomeUnknown, "", err
	}

	m := &machine{
		ch:       ch,
		cfg:      cfg,
		password: password,
		now:      time.Now,
	}
	outcome, err := m.run(ctx, command)
	return outcome, m.output.String(), err
}

func checkConfig(cfg models.PromptConfig) error {
	if cfg.PollInterval <= 0 || cfg.PromptTimeout <= 0 || cfg.PasswordTimeout <= 0 || cfg.MaxReadBytes <= 0 {
		return fmt.Errorf("invalid prompt config: all values must be positive: %+v", cfg)
	}
	return nil
}

func (m *machine) run(ctx context.Context, command string) (models.Outcome, error) {
	if err := m.ch.Write([]byte(command + "\n")); err != nil {
		return models.OutcomeTransportFailure, &TransportError{Op: "write command", Err: err}
	}
	m.state = awaitingPrompt
	m.deadline = m.now().Add(m.cfg.PromptTimeout)

	for m.state != done {
		if err := ctx.Err(); err != nil {
			return models.OutcomeCanceled, err
		}

		idle, outcome, err := m.tick()
		if err != nil {
			return outcome, err
		}
		if !idle {
			continue
		}

		select {
		case <-ctx.Done():
			return models.OutcomeCanceled, ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}

	return m.awaitFinished(ctx)
}

// tick performs one poll. idle means the caller should sleep before the
// next tick.
func (m *machine) tick() (idle bool, outcome models.Outcome, err error) {
	expired := !m.now().Before(m.deadline)

	switch m.state {
	case awaitingPrompt:
		if expired {
			return false, models.OutcomePromptTimeout, ErrPromptTimeout
		}
		if !m.ch.DataReady() {
			return true, models.OutcomeUnknown, nil
		}
		data, err := m.ch.Read(m.cfg.MaxReadBytes)
		if err != nil {
			return false, models.OutcomeTransportFailure, &TransportError{Op: "read prompt", Err: err}
		}
		m.output.Write(data)
		if !containsPrompt(data) {
			return true, models.OutcomeUnknown, nil
		}
		if err := m.ch.Write([]byte(m.password + "\n")); err != nil {
			return false, models.OutcomeTransportFailure, &TransportError{Op: "write password", Err: err}
		}
		m.state = awaitingConfirmation
		m.deadline = m.now().Add(m.cfg.PasswordTimeout)
		return false, models.OutcomeUnknown, nil

	case awaitingConfirmation:
		if expired {
			m.state = done
			return false, models.OutcomeUnknown, nil
		}
		if !m.ch.DataReady() {
			return true, models.OutcomeUnknown, nil
		}
		data, err := m.ch.Read(m.cfg.MaxReadBytes)
		if errors.Is(err, io.EOF) {
			// Remote closed the shell without asking again.
			m.state = done
			return false, models.OutcomeUnknown, nil
		}
		if err != nil {
			return false, models.OutcomeTransportFailure, &TransportError{Op: "read confirmation", Err: err}
		}
		m.output.Write(data)
		if containsPrompt(data) {
			return false, models.OutcomePasswordRejected, ErrPasswordRejected
		}
		return true, models.OutcomeUnknown, nil
	}

	return false, models.OutcomeUnknown, nil
}

// awaitFinished keeps the channel open until the remote command exits,
// bounded by the prompt timeout.
func (m *machine) awaitFinished(ctx context.Context) (models.Outcome, error) {
	timer := time.NewTimer(m.cfg.PromptTimeout)
	defer timer.Stop()

	select {
	case <-m.ch.Finished():
	case <-timer.C:
	case <-ctx.Done():
		return models.OutcomeCanceled, ctx.Err()
	}
	return models.OutcomeAccepted, nil
}

func containsPrompt(data []byte) bool {
	return bytes.Contains(bytes.ToLower(data), promptMarker)
}
