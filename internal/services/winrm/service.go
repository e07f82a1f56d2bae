// Package winrm manages windows hosts over WinRM.
package winrm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/masterzen/winrm"
	"github.com/rs/zerolog"
)

// Service defines the interface for WinRM operations.
type Service interface {
	Execute(ctx context.Context, cfg models.AppConfig, req models.CommandRequest) (*models.CommandResult, error)
	Reboot(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error)
	Shutdown(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error)
	TestConnection(ctx context.Context, cfg models.AppConfig) (*models.CommandResult, error)
	QueryRegistry(ctx context.Context, cfg models.AppConfig, root models.RegistryRootKey, subkey string) (*models.CommandResult, error)
	DefenderPreferences(ctx context.Context, cfg models.AppConfig) (*models.CommandResult, error)
}

// Client wraps winrm.Client for mocking.
type Client interface {
	RunWithContextWithString(ctx context.Context, command string, stdin string) (string, string, int, error)
}

// ClientFactory creates WinRM clients.
type ClientFactory interface {
	NewClient(endpoint *winrm.Endpoint, user, password string) (Client, error)
}

// DefaultClientFactory is the default WinRM client factory.
type DefaultClientFactory struct{}

// NewClient creates a new WinRM client.
func (f *DefaultClientFactory) NewClient(endpoint *winrm.Endpoint, user, password string) (Client, error) {
	params := winrm.NewParameters(
		fmt.Sprintf("PT%dS", int(endpoint.Timeout.Seconds())),
		"en-US",
		153600,
	)
	client, err := winrm.NewClientWithParameters(endpoint, user, password, params)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Impl implements the WinRM Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new WinRM service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new WinRM service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

func buildEndpoint(cfg models.TargetConfig) *winrm.Endpoint {
	return winrm.NewEndpoint(
		cfg.Host,
		cfg.WinRM.Port,
		cfg.WinRM.HTTPS,
		cfg.WinRM.Insecure,
		nil, nil, nil,
		cfg.WinRM.Timeout,
	)
}

func (s *Impl) logIn(cfg models.TargetConfig) (Client, error) {
	client, err := s.clientFactory.NewClient(buildEndpoint(cfg), cfg.Username, cfg.Password)
	if err != nil {
		s.logger.Error().Err(err).Str("host", cfg.Host).Msg("could not log in host")
		return nil, fmt.Errorf("failed to create WinRM client: %w", err)
	}
	s.logger.Info().
		Str("host", cfg.Host).
		Str("endpoint", cfg.WinRM.String()).
		Msg("logged in host")
	return client, nil
}

// Execute runs a cmd.exe command, or a PowerShell command when requested.
// A non-zero exit code is reported through result.Error.
func (s *Impl) Execute(ctx context.Context, cfg models.AppConfig, req models.CommandRequest) (*models.CommandResult, error) {
	result := &models.CommandResult{Command: req.Command}

	client, err := s.logIn(cfg.Target)
	if err != nil {
		result.Error = err
		return result, nil
	}

	command := req.Command
	if req.PowerShell {
		command = winrm.Powershell(req.Command)
	}

	stdout, stderr, code, err := client.RunWithContextWithString(ctx, command, "")
	if err != nil {
		result.Error = fmt.Errorf("failed to run command %q: %w", req.Command, err)
		return result, nil
	}

	result.CommandRun = true
	result.Output = stdout
	result.ExitCode = code

	if code != 0 {
		s.logger.Error().
			Str("command", req.Command).
			Int("exit_code", code).
			Str("stderr", strings.TrimSpace(stderr)).
			Msg("command was not successful")
		result.Error = fmt.Errorf("command %q was not successful: exit code %d", req.Command, code)
		return result, nil
	}

	s.logger.Info().
		Str("command", req.Command).
		Str("output", result.Output).
		Msg("command executed")

	return result, nil
}

// Reboot restarts the host. Windows waits a grace period unless
// cfg.Power.Immediate is set.
func (s *Impl) Reboot(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error) {
	return s.power(ctx, cfg, models.PowerReboot)
}

// Shutdown powers the host off.
func (s *Impl) Shutdown(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error) {
	return s.power(ctx, cfg, models.PowerShutdown)
}

func (s *Impl) power(ctx context.Context, cfg models.AppConfig, action models.PowerAction) (*models.PowerResult, error) {
	result := &models.PowerResult{
		Action:  action,
		Command: cfg.Power.WindowsCommand(action),
	}

	s.logger.Info().
		Str("host", cfg.Target.Host).
		Str("action", string(action)).
		Bool("immediate", cfg.Power.Immediate).
		Msg("initiating remote power action")

	cmdResult, err := s.Execute(ctx, cfg, models.CommandRequest{Command: result.Command})
	if err != nil {
		return nil, err
	}

	switch {
	case cmdResult.Error == nil:
		result.Outcome = models.OutcomeAccepted
	case ctx.Err() != nil:
		result.Outcome = models.OutcomeCanceled
		result.Error = ctx.Err()
	default:
		result.Outcome = models.OutcomeTransportFailure
		result.Error = cmdResult.Error
	}

	return result, nil
}

// TestConnection verifies WinRM connectivity without changing the host.
func (s *Impl) TestConnection(ctx context.Context, cfg models.AppConfig) (*models.CommandResult, error) {
	s.logger.Debug().
		Str("host", cfg.Target.Host).
		Str("endpoint", cfg.Target.WinRM.String()).
		Msg("testing WinRM connection")

	return s.Execute(ctx, cfg, models.CommandRequest{Command: "echo OK"})
}

// QueryRegistry lists the subkeys and entries under root, optionally
// narrowed to subkey.
func (s *Impl) QueryRegistry(ctx context.Context, cfg models.AppConfig, root models.RegistryRootKey, subkey string) (*models.CommandResult, error) {
	command := fmt.Sprintf(`%s "%s"`, models.WindowsRegistryQuery, root.Path(subkey))
	return s.Execute(ctx, cfg, models.CommandRequest{Command: command})
}

// DefenderPreferences returns the Windows Defender configuration.
func (s *Impl) DefenderPreferences(ctx context.Context, cfg models.AppConfig) (*models.CommandResult, error) {
	return s.Execute(ctx, cfg, models.CommandRequest{Command: models.WindowsDefenderPrefs, PowerShell: true})
}
