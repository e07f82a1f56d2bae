package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/hostctl/internal/config"
	"github.com/fgeck/hostctl/internal/models"
	"github.com/fgeck/hostctl/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// loadConfig reads the config file (if any), applies flag overrides and
// returns the unvalidated configuration.
func loadConfig(cmd *cobra.Command) (*models.AppConfig, error) {
	if configFile == "" && !cmd.Flags().Changed("host") {
		return nil, fmt.Errorf("either --config or --host is required")
	}

	parser := config.NewParser()
	if err := parser.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg, err := parser.Load(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	return cfg, nil
}

// needsPassword reports whether the action cannot proceed without a password.
// Linux power actions always need one for sudo, even with key auth.
func needsPassword(cfg *models.AppConfig, action models.Action) bool {
	if cfg.Target.Password != "" {
		return false
	}
	if cfg.Target.IsWindows() || cfg.Target.SSH.KeyPath == "" {
		return true
	}
	return isPowerAction(action.Kind)
}

func isPowerAction(kind models.ActionKind) bool {
	return kind == models.ActionReboot || kind == models.ActionShutdown
}

func promptPassword(cfg *models.AppConfig) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("no password configured and stdin is not a terminal")
	}

	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.Target.Username, cfg.Target.Host)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	cfg.Target.Password = string(password)
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, cancelling")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// runAction loads configuration, runs one action and prints its output.
func runAction(cmd *cobra.Command, action models.Action) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if needsPassword(cfg, action) {
		if err := promptPassword(cfg); err != nil {
			log.Error().Err(err).Msg("password required")
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Debug().
		Str("host", cfg.Target.Host).
		Str("os", cfg.Target.OS).
		Str("user", cfg.Target.Username).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	report, err := runner.New(log.Logger).Run(ctx, *cfg, action)
	if isPowerAction(action.Kind) {
		// Shell output of a power action is only the sudo exchange.
		if report != nil && report.Output != "" {
			log.Debug().Str("output", report.Output).Msg("handshake output")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s of %s %s\n", action.Kind, cfg.Target.Host, report.Outcome)
		return nil
	}

	if report != nil && report.Output != "" {
		fmt.Fprint(cmd.OutOrStdout(), report.Output)
	}
	return err
}
