// Package runner carries out one hostctl action against the configured target.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/hostctl/internal/models"
	"github.com/fgeck/hostctl/internal/services/ssh"
	"github.com/fgeck/hostctl/internal/services/telegram"
	"github.com/fgeck/hostctl/internal/services/winrm"
	"github.com/fgeck/hostctl/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrWindowsOnly is returned for registry and Defender actions on a linux target.
	ErrWindowsOnly = errors.New("action is only supported on windows targets")
	// ErrWOLNotConfigured is returned when a wake is requested without a wol section.
	ErrWOLNotConfigured = errors.New("wake requested but wol is not configured")
	// ErrUnknownAction is returned for an action kind the runner cannot dispatch.
	ErrUnknownAction = errors.New("unknown action")
)

// Service defines the interface for the action runner.
type Service interface {
	Run(ctx context.Context, cfg models.AppConfig, action models.Action) (*models.RunReport, error)
}

// HostService is the part of a transport shared by SSH and WinRM.
type HostService interface {
	Execute(ctx context.Context, cfg models.AppConfig, req models.CommandRequest) (*models.CommandResult, error)
	Reboot(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error)
	Shutdown(ctx context.Context, cfg models.AppConfig) (*models.PowerResult, error)
	TestConnection(ctx context.Context, cfg models.AppConfig) (*models.CommandResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	sshSvc      ssh.Service
	winrmSvc    winrm.Service
	wolSvc      wol.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
	newRunID    func() string
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		sshSvc:      ssh.New(logger),
		winrmSvc:    winrm.New(logger),
		wolSvc:      wol.New(logger),
		telegramSvc: telegram.New(logger),
		logger:      logger,
		newRunID:    uuid.NewString,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	sshSvc ssh.Service,
	winrmSvc winrm.Service,
	wolSvc wol.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		sshSvc:      sshSvc,
		winrmSvc:    winrmSvc,
		wolSvc:      wolSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
		newRunID:    uuid.NewString,
	}
}

// Run executes one action. The returned report is never nil; its Outcome
// and Output are filled in as far as the action got.
func (s *Impl) Run(ctx context.Context, cfg models.AppConfig, action models.Action) (*models.RunReport, error) {
	startTime := time.Now()
	report := &models.RunReport{
		RunID:  s.newRunID(),
		Action: action.Kind,
		Host:   cfg.Target.Host,
	}

	logger := s.logger.With().
		Str("run_id", report.RunID).
		Str("host", cfg.Target.Host).
		Str("os", cfg.Target.OS).
		Str("action", string(action.Kind)).
		Logger()

	logger.Info().Msg("starting run")

	var command string
	var runErr error

	defer func() {
		report.Duration = time.Since(startTime)
		logOutcome(logger, report, runErr)

		if cfg.Telegram != nil {
			s.sendNotification(ctx, logger, cfg, report, command, startTime, runErr)
		}
	}()

	if action.Wake {
		if err := s.runWOL(ctx, logger, cfg); err != nil {
			runErr = err
			report.Outcome = outcomeFor(ctx, err)
			return report, err
		}
	}

	switch action.Kind {
	case models.ActionExec:
		command = action.Command.Command
		runErr = s.runCommand(report, func() (*models.CommandResult, error) {
			return s.host(cfg).Execute(ctx, cfg, action.Command)
		})
	case models.ActionTest:
		runErr = s.runCommand(report, func() (*models.CommandResult, error) {
			return s.host(cfg).TestConnection(ctx, cfg)
		})
	case models.ActionReboot:
		command, runErr = s.runPower(report, func() (*models.PowerResult, error) {
			return s.host(cfg).Reboot(ctx, cfg)
		})
	case models.ActionShutdown:
		command, runErr = s.runPower(report, func() (*models.PowerResult, error) {
			return s.host(cfg).Shutdown(ctx, cfg)
		})
	case models.ActionRegistry:
		if !cfg.Target.IsWindows() {
			runErr = fmt.Errorf("registry query: %w", ErrWindowsOnly)
			break
		}
		command = action.RegistryKey.Path(action.Subkey)
		runErr = s.runCommand(report, func() (*models.CommandResult, error) {
			return s.winrmSvc.QueryRegistry(ctx, cfg, action.RegistryKey, action.Subkey)
		})
	case models.ActionDefender:
		if !cfg.Target.IsWindows() {
			runErr = fmt.Errorf("defender preferences: %w", ErrWindowsOnly)
			break
		}
		command = models.WindowsDefenderPrefs
		runErr = s.runCommand(report, func() (*models.CommandResult, error) {
			return s.winrmSvc.DefenderPreferences(ctx, cfg)
		})
	default:
		runErr = fmt.Errorf("%w %q", ErrUnknownAction, action.Kind)
	}

	if report.Outcome == models.OutcomeUnknown {
		report.Outcome = outcomeFor(ctx, runErr)
	}

	return report, runErr
}

// host picks the transport for the target's operating system.
func (s *Impl) host(cfg models.AppConfig) HostService {
	if cfg.Target.IsWindows() {
		return s.winrmSvc
	}
	return s.sshSvc
}

func (s *Impl) runCommand(report *models.RunReport, fn func() (*models.CommandResult, error)) error {
	result, err := fn()
	if err != nil {
		return err
	}
	report.Output = result.Output
	return result.Error
}

func (s *Impl) runPower(report *models.RunReport, fn func() (*models.PowerResult, error)) (string, error) {
	result, err := fn()
	if err != nil {
		return "", err
	}
	report.Outcome = result.Outcome
	report.Output = result.Output
	return result.Command, result.Error
}

func (s *Impl) runWOL(ctx context.Context, logger zerolog.Logger, cfg models.AppConfig) error {
	if cfg.WOL == nil {
		return ErrWOLNotConfigured
	}

	result, err := s.wolSvc.Wake(ctx, *cfg.WOL, cfg.Target)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}
	if !result.TargetReady {
		return fmt.Errorf("target did not become ready after WOL")
	}

	logger.Info().
		Bool("packet_sent", result.PacketSent).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}

// outcomeFor classifies actions that do not go through the password handshake.
func outcomeFor(ctx context.Context, err error) models.Outcome {
	switch {
	case err == nil:
		return models.OutcomeAccepted
	case errors.Is(err, ErrWindowsOnly), errors.Is(err, ErrWOLNotConfigured), errors.Is(err, ErrUnknownAction):
		return models.OutcomeInvalidRequest
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeCanceled
	default:
		return models.OutcomeTransportFailure
	}
}

func logOutcome(logger zerolog.Logger, report *models.RunReport, err error) {
	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Str("outcome", report.Outcome.String()).
		Dur("duration", report.Duration).
		Msg("run finished")
}

func (s *Impl) sendNotification(
	ctx context.Context,
	logger zerolog.Logger,
	cfg models.AppConfig,
	report *models.RunReport,
	command string,
	startTime time.Time,
	runErr error,
) {
	msg := models.TelegramMessage{
		Success:   runErr == nil,
		Host:      cfg.Target.Host,
		OS:        cfg.Target.OS,
		Action:    report.Action,
		Command:   command,
		RunID:     report.RunID,
		StartTime: startTime,
		Duration:  report.Duration,
		Outcome:   report.Outcome,
	}
	if runErr != nil {
		msg.ErrorMessage = runErr.Error()
	}

	// A cancelled run is still reported.
	notifyCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		notifyCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
	}

	result, err := s.telegramSvc.SendNotification(notifyCtx, *cfg.Telegram, msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	logger.Debug().Msg("Telegram notification sent")
}
