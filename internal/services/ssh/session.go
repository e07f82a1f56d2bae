package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fgeck/hostctl/internal/handshake"
	"github.com/fgeck/hostctl/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// ErrSessionClosed is returned when a closed session is used again.
var ErrSessionClosed = errors.New("ssh session is closed")

// Session is one logged-in connection to a target. It is not safe for
// concurrent use.
type Session struct {
	target models.TargetConfig
	client SSHClient
	logger zerolog.Logger

	mu     sync.Mutex
	shell  SSHSession // shell of the latest privileged command
	closed bool
}

func newSession(target models.TargetConfig, client SSHClient, logger zerolog.Logger) *Session {
	return &Session{
		target: target,
		client: client,
		logger: logger,
	}
}

// Execute runs a non-interactive command such as ls or df. A non-zero
// exit status is reported through result.Error.
func (s *Session) Execute(ctx context.Context, command string) (*models.CommandResult, error) {
	result := &models.CommandResult{Command: command}

	if s.isClosed() {
		result.Error = ErrSessionClosed
		return result, nil
	}

	session, err := s.client.NewSession()
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		return result, nil
	}
	defer session.Close()

	type output struct {
		data []byte
		err  error
	}
	done := make(chan output, 1)
	go func() {
		data, err := session.CombinedOutput(command)
		done <- output{data, err}
	}()

	var out output
	select {
	case <-ctx.Done():
		result.Error = ctx.Err()
		return result, nil
	case out = <-done:
	}

	result.Output = string(out.data)
	result.CommandRun = true

	if out.err != nil {
		var exitErr *ssh.ExitError
		if errors.As(out.err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			s.logger.Error().
				Str("command", command).
				Int("exit_code", result.ExitCode).
				Msg("command was not successful")
			result.Error = fmt.Errorf("command %q was not successful: exit code %d", command, result.ExitCode)
			return result, nil
		}
		result.Error = fmt.Errorf("command %q failed: %w", command, out.err)
		return result, nil
	}

	s.logger.Info().
		Str("command", command).
		Str("output", result.Output).
		Msg("command executed")

	return result, nil
}

// RunPrivileged sends a password-prompting command through a fresh PTY
// shell and answers the prompt with the login password. It returns the
// shell output read during the handshake.
//
// Each call gets its own shell: sudo caches credentials per tty, and a
// rejected password leaves sudo reading the next line as another attempt.
func (s *Session) RunPrivileged(ctx context.Context, command string, prompt models.PromptConfig) (models.Outcome, string, error) {
	ch, err := s.openShell()
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return models.OutcomeTransportFailure, "", err
		}
		return models.OutcomeTransportFailure, "", &handshake.TransportError{Op: "open shell", Err: err}
	}

	return handshake.RunWithOutput(ctx, ch, command, s.target.Password, prompt)
}

// openShell starts a PTY shell for one privileged command, closing the
// shell left by the previous one.
func (s *Session) openShell() (*shellChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.shell != nil {
		_ = s.shell.Close()
		s.shell = nil
	}

	shell, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := shell.RequestPty("xterm", 80, 40, modes); err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("request for pty failed: %w", err)
	}
	stdin, err := shell.StdinPipe()
	if err != nil {
		_ = shell.Close()
		return nil, err
	}
	stdout, err := shell.StdoutPipe()
	if err != nil {
		_ = shell.Close()
		return nil, err
	}
	if err := shell.Shell(); err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	s.shell = shell
	return newShellChannel(stdin, stdout, shell.Wait), nil
}

// Close ends the shell and the connection. The session cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.shell != nil {
		if err := s.shell.Close(); err != nil && !errors.Is(err, io.EOF) {
			errs = append(errs, err)
		}
	}
	if err := s.client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
