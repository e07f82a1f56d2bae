// Package ssh manages linux hosts over SSH.
package ssh

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Service defines the interface for SSH operations.
type Service interface {
	Execute(ctx context.Context, cfg models.AppConfig, req models.CommandRequest) (*models.CommandResult, error)
	Reboot(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error)
	Shutdown(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error)
	TestConnection(ctx context.Context, cfg models.AppConfig) (*models.CommandResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession is the subset of *ssh.Session used for exec and shell sessions.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	RequestPty(term string, h, w int, modes ssh.TerminalModes) error
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)
	Shell() error
	Wait() error
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

func (s *Impl) buildConfig(cfg models.TargetConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	key := cfg.SSH.PrivateKey
	if len(key) == 0 && cfg.SSH.KeyPath != "" {
		var err error
		key, err = os.ReadFile(cfg.SSH.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.SSH.KeyPath, err)
		}
	}
	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		password := cfg.Password
		auth = append(auth,
			ssh.Password(password),
			// Many servers only offer keyboard-interactive for passwords.
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("no password or private key provided")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via insecure_ignore_host_key
	if !cfg.SSH.InsecureIgnoreHostKey {
		if cfg.SSH.KnownHostsPath == "" {
			return nil, fmt.Errorf("known_hosts path is required unless host key checking is disabled")
		}
		cb, err := knownhosts.New(cfg.SSH.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.SSH.Timeout,
	}, nil
}

// Connect logs in the target and returns a session owned by the caller.
func (s *Impl) Connect(ctx context.Context, cfg models.TargetConfig) (*Session, error) {
	sshConfig, err := s.buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := cfg.SSHAddress()

	// Create client with context timeout
	clientChan := make(chan struct {
		client SSHClient
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- struct {
			client SSHClient
			err    error
		}{client, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			s.logger.Error().Err(res.err).Str("host", cfg.Host).Msg("could not log in host")
			return nil, fmt.Errorf("failed to connect: %w", res.err)
		}
		s.logger.Info().Str("host", cfg.Host).Str("user", cfg.Username).Msg("logged in host")
		return newSession(cfg, res.client, s.logger), nil
	}
}

// Execute runs a non-interactive command.
func (s *Impl) Execute(ctx context.Context, cfg models.AppConfig, req models.CommandRequest) (*models.CommandResult, error) {
	result := &models.CommandResult{Command: req.Command}

	if req.PowerShell {
		s.logger.Warn().Msg("powershell flag ignored for SSH targets")
	}

	session, err := s.Connect(ctx, cfg.Target)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer s.closeSession(session)

	return session.Execute(ctx, req.Command)
}

// Reboot reboots the host through sudo.
func (s *Impl) Reboot(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error) {
	return s.power(ctx, cfg, models.PowerReboot)
}

// Shutdown powers the host off through sudo.
func (s *Impl) Shutdown(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error) {
	return s.power(ctx, cfg, models.PowerShutdown)
}

func (s *Impl) power(ctx context.Context, cfg models.AppConfig, action models.PowerAction) (*models.PowerResult, error) {
	result := &models.PowerResult{
		Action:  action,
		Command: cfg.Power.LinuxCommand(action),
	}

	s.logger.Info().
		Str("host", cfg.Target.Host).
		Int("port", cfg.Target.SSH.Port).
		Str("user", cfg.Target.Username).
		Str("action", string(action)).
		Msg("initiating remote power action")

	session, err := s.Connect(ctx, cfg.Target)
	if err != nil {
		result.Outcome = models.OutcomeTransportFailure
		if ctx.Err() != nil {
			result.Outcome = models.OutcomeCanceled
		}
		result.Error = err
		return result, nil
	}
	defer s.closeSession(session)

	s.logger.Debug().Str("command", result.Command).Msg("sending privileged command")

	result.Outcome, result.Output, result.Error = session.RunPrivileged(ctx, result.Command, cfg.Prompt)
	return result, nil
}

// TestConnection verifies SSH connectivity without changing the host.
func (s *Impl) TestConnection(ctx context.Context, cfg models.AppConfig) (*models.CommandResult, error) {
	s.logger.Debug().
		Str("host", cfg.Target.Host).
		Int("port", cfg.Target.SSH.Port).
		Msg("testing SSH connection")

	return s.Execute(ctx, cfg, models.CommandRequest{Command: "echo OK"})
}

func (s *Impl) closeSession(session *Session) {
	if err := session.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("closing SSH session")
		return
	}
	s.logger.Info().Msg("closed the SSH session")
}
